package database

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/haventek/ledger/foundation/ledger/account"
)

// Set of actions a transaction record can represent.
const (
	ActionTransfer = "transfer"
	ActionMint     = "mint"
	ActionBurn     = "burn"
)

// Transaction represents one committed entry in the global transaction
// record table. Records are append-only and identified permanently by their
// serial id, which starts at 1.
type Transaction struct {
	ID        uint64          `json:"id"`
	Action    string          `json:"action"`
	From      account.Address `json:"from"`
	Sender    account.Address `json:"sender"`
	To        account.Address `json:"to"`
	Amount    uint64          `json:"amount"`
	Memo      string          `json:"memo,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AppendTransaction assigns the next serial id to the record and stores it
// in the global transaction table. Returns the assigned id.
func (db *Database) AppendTransaction(tx Transaction) (uint64, error) {
	count, err := db.loadUint64(keyTxCount)
	if err != nil {
		return 0, err
	}

	// Transaction serial ids start at 1. Id 0 means null everywhere a
	// record is referenced.
	id := count + 1
	tx.ID = id

	data, err := json.Marshal(tx)
	if err != nil {
		return 0, err
	}

	if err := db.kv.Put(suffixUint64(keyTx, id), data); err != nil {
		return 0, err
	}
	if err := db.saveUint64(keyTxCount, id); err != nil {
		return 0, err
	}

	return id, nil
}

// Transaction returns the record stored under the specified serial id.
func (db *Database) Transaction(id uint64) (Transaction, error) {
	data, err := db.kv.Get(suffixUint64(keyTx, id))
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction %d: %w", id, err)
	}

	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return Transaction{}, err
	}

	return tx, nil
}

// TransactionCount returns the total number of records in the global
// transaction table.
func (db *Database) TransactionCount() (uint64, error) {
	return db.loadUint64(keyTxCount)
}
