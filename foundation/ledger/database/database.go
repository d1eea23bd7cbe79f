// Package database handles all the lower level support for maintaining the
// durable ledger state: account balances, the global transaction record
// table, and the per-account history node and bundle stores.
package database

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/storage"
)

// Key prefixes for the different record families in the KV store.
var (
	keyBalance     = []byte("bal:")
	keyTotalSupply = []byte("supply")
	keyTxCount     = []byte("tx-cnt")
	keyTx          = []byte("tx:")
	keyNodeCount   = []byte("node-cnt")
	keyNode        = []byte("node:")
	keyBundleLen   = []byte("bundle-len:")
	keyBundle      = []byte("bundle:")
	keyAccTxCount  = []byte("acc-tx-cnt:")
)

// Database manages the durable ledger records on top of a key/value store.
type Database struct {
	kv storage.KV
}

// New constructs a database over the specified key/value store.
func New(kv storage.KV) *Database {
	return &Database{kv: kv}
}

// =============================================================================
// Balances

// Balance returns the durable balance for the account. Accounts that never
// settled have a zero balance.
func (db *Database) Balance(addr account.Address) (uint64, error) {
	return db.loadUint64(append(keyBalance, addr[:]...))
}

// SaveBalance stores the durable balance for the account.
func (db *Database) SaveBalance(addr account.Address, amount uint64) error {
	return db.saveUint64(append(keyBalance, addr[:]...), amount)
}

// TotalSupply returns the current total supply of the token.
func (db *Database) TotalSupply() (uint64, error) {
	return db.loadUint64(keyTotalSupply)
}

// SaveTotalSupply stores the total supply of the token.
func (db *Database) SaveTotalSupply(amount uint64) error {
	return db.saveUint64(keyTotalSupply, amount)
}

// =============================================================================
// Low level encoding support

func (db *Database) loadUint64(key []byte) (uint64, error) {
	data, err := db.kv.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("malformed uint64 record: %d bytes", len(data))
	}

	return binary.BigEndian.Uint64(data), nil
}

func (db *Database) saveUint64(key []byte, value uint64) error {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], value)

	return db.kv.Put(key, data[:])
}

func (db *Database) loadUint32(key []byte) (uint32, error) {
	data, err := db.kv.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("malformed uint32 record: %d bytes", len(data))
	}

	return binary.BigEndian.Uint32(data), nil
}

func (db *Database) saveUint32(key []byte, value uint32) error {
	var data [4]byte
	binary.BigEndian.PutUint32(data[:], value)

	return db.kv.Put(key, data[:])
}

func suffixUint64(prefix []byte, id uint64) []byte {
	key := make([]byte, 0, len(prefix)+8)
	key = append(key, prefix...)
	return binary.BigEndian.AppendUint64(key, id)
}

func suffixAddrUint32(prefix []byte, addr account.Address, index uint32) []byte {
	key := make([]byte, 0, len(prefix)+account.AddressBytes+4)
	key = append(key, prefix...)
	key = append(key, addr[:]...)
	return binary.BigEndian.AppendUint32(key, index)
}
