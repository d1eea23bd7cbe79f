// Package nameservice reads the zledger/accounts folder and creates a name
// service lookup for the ledger accounts.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/haventek/ledger/foundation/ledger/account"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[account.Address]string
}

// New constructs a name service with accounts from the zledger/accounts folder.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[account.Address]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".ecdsa" {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return err
		}

		addr := account.FromPublicKey(privateKey.PublicKey)
		ns.accounts[addr] = strings.TrimSuffix(path.Base(fileName), ".ecdsa")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account, falling back to the
// hex form when the account is unnamed.
func (ns *NameService) Lookup(addr account.Address) string {
	name, exists := ns.accounts[addr]
	if !exists {
		return addr.Hex()
	}
	return name
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[account.Address]string {
	cpy := make(map[account.Address]string, len(ns.accounts))
	for addr, name := range ns.accounts {
		cpy[addr] = name
	}
	return cpy
}
