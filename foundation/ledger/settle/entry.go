// Package settle implements the oblivious settlement buffer: a fixed
// capacity set of packed entries accumulating pending credits for a bounded
// set of accounts, flushed to durable balances through code whose memory
// access pattern never depends on which accounts are involved.
package settle

import (
	"errors"
	"fmt"
	"math"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/database"
)

// Field widths for the packed entry layout. These match the deployed
// storage format: changing them changes the meaning of every entry already
// written, so treat them as deployment parameters.
const (
	addressBytes  = account.AddressBytes
	amountBytes   = 8 // u64 covers > 18 trillion units at 6 decimals
	headNodeBytes = 5 // 40 bits allows for over a trillion transactions
	listLenBytes  = 2

	// EntryBytes is the total width of one packed settlement entry.
	EntryBytes = addressBytes + amountBytes + headNodeBytes + listLenBytes
)

// maxHeadNode is the largest node handle representable in the packed field.
const maxHeadNode = 1<<(8*headNodeBytes) - 1

// Overflow of a packed field means the configured widths are too small for
// the deployment's volume. Per the storage contract these are corruption
// conditions, not runtime conditions, so the enclosing operation aborts.
var (
	ErrAmountOverflow = errors.New("pending amount overflows entry field")
	ErrListOverflow   = errors.New("history list overflows entry field")
)

// Entry represents one packed settlement entry: at most one account's not
// yet durably committed balance change. The byte layout is
// account | pending amount | history head node | history list length,
// all big endian.
type Entry [EntryBytes]byte

// NewEntry constructs a zeroed entry tagged with the specified account.
func NewEntry(addr account.Address) Entry {
	var e Entry
	copy(e[:addressBytes], addr[:])

	return e
}

// Account returns the account the entry is tagged with.
func (e Entry) Account() account.Address {
	var addr account.Address
	copy(addr[:], e[:addressBytes])

	return addr
}

func (e *Entry) accountSlice() []byte {
	return e[:addressBytes]
}

func (e *Entry) setAccount(addr account.Address) {
	copy(e[:addressBytes], addr[:])
}

// Amount returns the pending amount accumulated in the entry.
func (e Entry) Amount() uint64 {
	const start = addressBytes

	var v uint64
	for _, b := range e[start : start+amountBytes] {
		v = v<<8 | uint64(b)
	}

	return v
}

func (e *Entry) setAmount(v uint64) {
	const start = addressBytes
	for i := amountBytes - 1; i >= 0; i-- {
		e[start+i] = byte(v)
		v >>= 8
	}
}

// HeadNode returns the handle of the head of the entry's transaction list.
// 0 means the list is empty.
func (e Entry) HeadNode() uint64 {
	const start = addressBytes + amountBytes

	var v uint64
	for _, b := range e[start : start+headNodeBytes] {
		v = v<<8 | uint64(b)
	}

	return v
}

func (e *Entry) setHeadNode(v uint64) error {
	if v > maxHeadNode {
		return fmt.Errorf("node handle %d: %w", v, ErrListOverflow)
	}

	const start = addressBytes + amountBytes
	for i := headNodeBytes - 1; i >= 0; i-- {
		e[start+i] = byte(v)
		v >>= 8
	}

	return nil
}

// ListLen returns the length of the entry's transaction list.
func (e Entry) ListLen() uint16 {
	const start = addressBytes + amountBytes + headNodeBytes

	return uint16(e[start])<<8 | uint16(e[start+1])
}

func (e *Entry) setListLen(v uint16) {
	const start = addressBytes + amountBytes + headNodeBytes

	e[start] = byte(v >> 8)
	e[start+1] = byte(v)
}

// addTransaction appends a history node referencing the transaction to the
// entry's linked list and returns the new head node handle.
func (e *Entry) addTransaction(db *database.Database, txID uint64) (uint64, error) {
	listLen := e.ListLen()
	if listLen == math.MaxUint16 {
		return 0, fmt.Errorf("list length %d: %w", listLen, ErrListOverflow)
	}

	head, err := db.AppendNode(database.Node{
		TxID:     txID,
		Previous: e.HeadNode(),
	})
	if err != nil {
		return 0, err
	}

	if err := e.setHeadNode(head); err != nil {
		return 0, err
	}
	e.setListLen(listLen + 1)

	return head, nil
}

// addAmount folds a credit into the entry's pending amount. Overflow of the
// packed amount field is fatal.
func (e *Entry) addAmount(amount uint64) error {
	current := e.Amount()
	if amount > math.MaxUint64-current {
		return fmt.Errorf("amount %d + %d: %w", current, amount, ErrAmountOverflow)
	}
	e.setAmount(current + amount)

	return nil
}
