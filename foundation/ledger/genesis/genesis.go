// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date     time.Time         `json:"date"`
	ChainID  uint16            `json:"chain_id"` // The chain id represents an unique id for this running instance.
	Name     string            `json:"name"`     // Token name for display purposes.
	Symbol   string            `json:"symbol"`   // Token symbol for display purposes.
	Decimals uint8             `json:"decimals"` // Number of decimal places in one token unit.
	Minter   string            `json:"minter"`   // Account allowed to mint new supply.
	PRNGSeed string            `json:"prng_seed"` // Hex seed feeding the per-operation random streams.
	Balances map[string]uint64 `json:"balances"`
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}
