// Package state is the core API for the ledger and implements all the
// business rules and processing around the oblivious settlement buffer.
package state

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/database"
	"github.com/haventek/ledger/foundation/ledger/genesis"
	"github.com/haventek/ledger/foundation/ledger/prng"
	"github.com/haventek/ledger/foundation/ledger/settle"
	"github.com/haventek/ledger/foundation/ledger/signature"
	"github.com/haventek/ledger/foundation/ledger/storage"
)

// keyGenesisApplied marks that the genesis balances have been written.
var keyGenesisApplied = []byte("genesis-applied")

// EventHandler defines a function that is called when events occur in the
// processing of ledger operations.
type EventHandler func(v string, args ...any)

// =============================================================================

// Config represents the configuration required to start the ledger.
type Config struct {
	Genesis   genesis.Genesis
	Storage   storage.KV
	EvHandler EventHandler
}

// State manages the ledger: one logical operation at a time, each committed
// atomically against storage. The settlement buffer is loaded from and
// persisted back to storage inside every operation rather than held in
// memory between calls.
type State struct {
	mu sync.Mutex

	genesis   genesis.Genesis
	kv        storage.KV
	evHandler EventHandler
	seed      []byte
	minter    account.Address
}

// New constructs the ledger state, applying genesis balances the first time
// the ledger runs.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	var minter account.Address
	if cfg.Genesis.Minter != "" {
		var err error
		if minter, err = account.FromHex(cfg.Genesis.Minter); err != nil {
			return nil, fmt.Errorf("invalid minter account: %w", err)
		}
	}

	// Every operation derives its own random stream from this seed, so two
	// nodes replaying the same operations settle the same slots.
	seed := sha256.Sum256([]byte(cfg.Genesis.PRNGSeed))

	s := State{
		genesis:   cfg.Genesis,
		kv:        cfg.Storage,
		evHandler: ev,
		seed:      seed[:],
		minter:    minter,
	}

	if err := s.applyGenesis(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Shutdown cleanly brings the ledger down.
func (s *State) Shutdown() error {
	return s.kv.Close()
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// applyGenesis writes the initial balances and total supply once.
func (s *State) applyGenesis() error {
	applied, err := s.kv.Has(keyGenesisApplied)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	batch := storage.NewBatch(s.kv)
	db := database.New(batch)

	var supply uint64
	for accountStr, balance := range s.genesis.Balances {
		addr, err := account.FromHex(accountStr)
		if err != nil {
			return fmt.Errorf("invalid genesis account %q: %w", accountStr, err)
		}
		if err := db.SaveBalance(addr, balance); err != nil {
			return err
		}
		supply += balance
	}

	if err := db.SaveTotalSupply(supply); err != nil {
		return err
	}
	if err := batch.Put(keyGenesisApplied, []byte{1}); err != nil {
		return err
	}

	s.evHandler("state: genesis applied: accounts[%d] supply[%d]", len(s.genesis.Balances), supply)

	return batch.Commit()
}

// =============================================================================
// Operations

// Receipt reports the public outcome of a committed operation. It carries
// only the global transaction serial, never account placement details.
type Receipt struct {
	TxID uint64 `json:"tx_id"`
}

// Transfer moves funds from the signer to the to account. The signer is
// settled synchronously with the debit; the recipient's credit is deferred
// in the settlement buffer.
func (s *State) Transfer(signedTx SignedTx) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if signedTx.Kind != KindTransfer {
		return Receipt{}, fmt.Errorf("operation kind %q is not a transfer", signedTx.Kind)
	}
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return Receipt{}, err
	}

	from, err := signedTx.FromAccount()
	if err != nil {
		return Receipt{}, fmt.Errorf("invalid signature: %w", err)
	}
	to, err := account.FromHex(signedTx.ToID)
	if err != nil {
		return Receipt{}, err
	}

	batch := storage.NewBatch(s.kv)
	db := database.New(batch)

	txID, err := db.AppendTransaction(database.Transaction{
		Action:    database.ActionTransfer,
		From:      from,
		Sender:    from,
		To:        to,
		Amount:    signedTx.Amount,
		Memo:      signedTx.Memo,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return Receipt{}, err
	}

	rng := s.operationPRNG(signedTx, txID)

	buffer, err := settle.Load(batch)
	if err != nil {
		return Receipt{}, err
	}

	if _, err := buffer.SettleAccount(db, rng, from, txID, signedTx.Amount, KindTransfer); err != nil {
		return Receipt{}, err
	}
	if err := buffer.Credit(db, rng, to, txID, signedTx.Amount); err != nil {
		return Receipt{}, err
	}

	if err := buffer.Save(batch); err != nil {
		return Receipt{}, err
	}
	if err := batch.Commit(); err != nil {
		return Receipt{}, err
	}

	s.evHandler("state: transfer committed: tx[%d]", txID)

	return Receipt{TxID: txID}, nil
}

// Mint creates new supply for the to account. Only the genesis minter may
// mint. The minter is settled when distinct from the recipient so the mint
// lands against a clean history.
func (s *State) Mint(signedTx SignedTx) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if signedTx.Kind != KindMint {
		return Receipt{}, fmt.Errorf("operation kind %q is not a mint", signedTx.Kind)
	}
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return Receipt{}, err
	}

	from, err := signedTx.FromAccount()
	if err != nil {
		return Receipt{}, fmt.Errorf("invalid signature: %w", err)
	}
	if s.minter.IsZero() || from != s.minter {
		return Receipt{}, errors.New("account is not an authorized minter")
	}
	to, err := account.FromHex(signedTx.ToID)
	if err != nil {
		return Receipt{}, err
	}

	batch := storage.NewBatch(s.kv)
	db := database.New(batch)

	// The supply counter saturates rather than wraps; only what fits is
	// actually minted.
	supply, err := db.TotalSupply()
	if err != nil {
		return Receipt{}, err
	}
	minted := signedTx.Amount
	if minted > math.MaxUint64-supply {
		minted = math.MaxUint64 - supply
	}
	if err := db.SaveTotalSupply(supply + minted); err != nil {
		return Receipt{}, err
	}

	txID, err := db.AppendTransaction(database.Transaction{
		Action:    database.ActionMint,
		From:      from,
		Sender:    from,
		To:        to,
		Amount:    minted,
		Memo:      signedTx.Memo,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return Receipt{}, err
	}

	rng := s.operationPRNG(signedTx, txID)

	buffer, err := settle.Load(batch)
	if err != nil {
		return Receipt{}, err
	}

	if from != to {
		if _, err := buffer.SettleAccount(db, rng, from, txID, 0, KindMint); err != nil {
			return Receipt{}, err
		}
	}
	if err := buffer.Credit(db, rng, to, txID, minted); err != nil {
		return Receipt{}, err
	}

	if err := buffer.Save(batch); err != nil {
		return Receipt{}, err
	}
	if err := batch.Commit(); err != nil {
		return Receipt{}, err
	}

	s.evHandler("state: mint committed: tx[%d]", txID)

	return Receipt{TxID: txID}, nil
}

// Burn destroys funds held by the signer, reducing total supply.
func (s *State) Burn(signedTx SignedTx) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if signedTx.Kind != KindBurn {
		return Receipt{}, fmt.Errorf("operation kind %q is not a burn", signedTx.Kind)
	}
	if err := signedTx.Validate(s.genesis.ChainID); err != nil {
		return Receipt{}, err
	}

	from, err := signedTx.FromAccount()
	if err != nil {
		return Receipt{}, fmt.Errorf("invalid signature: %w", err)
	}

	batch := storage.NewBatch(s.kv)
	db := database.New(batch)

	supply, err := db.TotalSupply()
	if err != nil {
		return Receipt{}, err
	}
	if signedTx.Amount > supply {
		return Receipt{}, fmt.Errorf("burning more than the total supply: supply=%d, required=%d", supply, signedTx.Amount)
	}
	if err := db.SaveTotalSupply(supply - signedTx.Amount); err != nil {
		return Receipt{}, err
	}

	txID, err := db.AppendTransaction(database.Transaction{
		Action:    database.ActionBurn,
		From:      from,
		Sender:    from,
		Amount:    signedTx.Amount,
		Memo:      signedTx.Memo,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return Receipt{}, err
	}

	rng := s.operationPRNG(signedTx, txID)

	buffer, err := settle.Load(batch)
	if err != nil {
		return Receipt{}, err
	}

	if _, err := buffer.SettleAccount(db, rng, from, txID, signedTx.Amount, KindBurn); err != nil {
		return Receipt{}, err
	}

	if err := buffer.Save(batch); err != nil {
		return Receipt{}, err
	}
	if err := batch.Commit(); err != nil {
		return Receipt{}, err
	}

	s.evHandler("state: burn committed: tx[%d]", txID)

	return Receipt{TxID: txID}, nil
}

// =============================================================================
// Queries

// Balance returns the account's total balance: the durable amount plus
// anything pending in the settlement buffer.
func (s *State) Balance(addr account.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db := database.New(s.kv)

	balance, err := db.Balance(addr)
	if err != nil {
		return 0, err
	}

	buffer, err := settle.Load(s.kv)
	if err != nil {
		return 0, err
	}

	pending := buffer.EntryAt(buffer.Match(addr)).Amount()
	if pending > math.MaxUint64-balance {
		return math.MaxUint64, nil
	}

	return balance + pending, nil
}

// TotalSupply returns the current total supply of the token.
func (s *State) TotalSupply() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return database.New(s.kv).TotalSupply()
}

// FreeSlots returns the settlement buffer's free-space counter. This is
// public metadata: it changes deterministically with operation count, never
// with which accounts participate.
func (s *State) FreeSlots() (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buffer, err := settle.Load(s.kv)
	if err != nil {
		return 0, err
	}

	return buffer.FreeSlots(), nil
}

// =============================================================================

// operationPRNG derives the deterministic random stream for one operation
// from the ledger seed, the operation's signature and the assigned serial.
func (s *State) operationPRNG(signedTx SignedTx, txID uint64) *prng.PRNG {
	entropy := make([]byte, 0, 73)
	entropy = append(entropy, signature.ToSignatureBytes(signedTx.V, signedTx.R, signedTx.S)...)
	entropy = binary.BigEndian.AppendUint64(entropy, txID)

	return prng.FromSeedEntropy(s.seed, entropy)
}
