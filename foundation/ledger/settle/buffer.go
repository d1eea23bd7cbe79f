package settle

import (
	"errors"
	"fmt"
	"math"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/database"
	"github.com/haventek/ledger/foundation/ledger/oblivious"
	"github.com/haventek/ledger/foundation/ledger/prng"
	"github.com/haventek/ledger/foundation/ledger/storage"
)

const (
	// BufferLen is the number of slots in the buffer, including the
	// reserved sentinel at index 0. Minimum allowable size is 3.
	BufferLen = 65

	// Capacity is the number of slots available for real accounts.
	Capacity = BufferLen - 1

	// MaxListEvents bounds the transaction list of a single entry to what
	// the packed length field can represent.
	MaxListEvents = math.MaxUint16

	// maxDecoyRetries bounds the redraw loop for decoy addresses. With a
	// 160-bit address space a single collision is already astronomically
	// unlikely, so exhausting the bound indicates a broken random source.
	maxDecoyRetries = 64
)

// keyBuffer locates the persisted buffer in the KV store.
var keyBuffer = []byte("settle-buffer")

// ErrDecoyExhausted is returned when a fresh decoy address could not be
// drawn within the retry bound.
var ErrDecoyExhausted = errors.New("decoy address retries exhausted")

// InsufficientFundsError is the only user-facing failure from this package.
// It reports the shortfall between the released balance and the amount the
// operation required.
type InsufficientFundsError struct {
	Op       string
	Balance  uint64
	Required uint64
}

// Error implements the error interface.
func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds to %s: balance=%d, required=%d", e.Op, e.Balance, e.Required)
}

// =============================================================================

// Buffer represents the fixed capacity settlement buffer. Slot 0 is a
// permanently reserved sentinel holding the zero address; it is the default
// target for every non-matching constant-time operation and is never the
// unique match for a real account.
type Buffer struct {
	freeSlots uint16
	entries   [BufferLen]Entry
}

// New constructs a buffer with every slot zeroed and all non-sentinel
// slots free.
func New() *Buffer {
	return &Buffer{
		freeSlots: Capacity,
	}
}

// Load reads the persisted buffer from storage, constructing a fresh one
// the first time the ledger runs.
func Load(kv storage.KV) (*Buffer, error) {
	data, err := kv.Get(keyBuffer)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return New(), nil
		}
		return nil, err
	}

	var b Buffer
	if err := b.UnmarshalBinary(data); err != nil {
		return nil, err
	}

	return &b, nil
}

// Save persists the buffer to storage.
func (b *Buffer) Save(kv storage.KV) error {
	data, err := b.MarshalBinary()
	if err != nil {
		return err
	}

	return kv.Put(keyBuffer, data)
}

// FreeSlots returns the free-space counter. It is non-increasing over the
// life of the ledger and stays at 0 once the buffer saturates.
func (b *Buffer) FreeSlots() uint16 {
	return b.freeSlots
}

// EntryAt returns a copy of the entry in the specified slot.
func (b *Buffer) EntryAt(idx int) Entry {
	return b.entries[idx]
}

// Match scans every slot unconditionally, comparing the account to each
// slot's address in constant time, and combines the at most one match
// arithmetically. Returns 0, the sentinel, when the account is not
// buffered. The scan must visit every slot regardless of where or whether
// a match occurs.
func (b *Buffer) Match(addr account.Address) int {
	matched := 0
	for i := 1; i < BufferLen; i++ {
		eq := oblivious.Equal(addr[:], b.entries[i].accountSlice())

		// An account can occur in at most one slot.
		matched |= i * eq
	}

	return matched
}

// Credit folds a new transaction into the account's buffered entry, or
// establishes one, settling some slot along the way. Every step runs
// unconditionally on every call; only the values fed through the oblivious
// selects differ with the input, so an observer of the access pattern
// learns nothing about which account was credited, whether it was already
// buffered, or how full the buffer is.
func (b *Buffer) Credit(db *database.Database, rng *prng.PRNG, addr account.Address, txID uint64, amount uint64) error {
	idx := b.Match(addr)
	present := oblivious.IsNonzero(int64(idx))

	// The new entry derives from the account's prior entry, or from the
	// sentinel when the account is not buffered.
	candidate := b.entries[idx]
	candidate.setAccount(addr)
	if _, err := candidate.addTransaction(db, txID); err != nil {
		return err
	}
	if err := candidate.addAmount(amount); err != nil {
		return err
	}

	// Pick an entry to exclude from settle selection. When the account is
	// buffered its own slot is excluded; otherwise a random draw keeps the
	// formula shape identical.
	randomExclude, err := oblivious.UniformInRange(rng, 1, BufferLen)
	if err != nil {
		return err
	}
	exclude := oblivious.Select(present, idx, int(randomExclude))

	// Select any other slot in [1, BufferLen) different from exclude,
	// derived arithmetically rather than by redrawing.
	draw, err := oblivious.UniformInRange(rng, 0, BufferLen-2)
	if err != nil {
		return err
	}
	randomSettle := int((draw+uint32(exclude))%(BufferLen-1)) + 1

	// While the buffer has free slots, settle at the next free index
	// instead. Settling an untouched slot flushes a zeroed decoy, so the
	// write pattern stays the same either way.
	underCapacity := oblivious.IsNonzero(int64(b.freeSlots))
	nextFree := BufferLen - int(b.freeSlots)
	settleTarget := oblivious.Select(underCapacity, nextFree, randomSettle)

	// If the account's own list cannot grow any further, settle its slot
	// rather than displacing an unrelated one. addTransaction raises the
	// fatal overflow first, so reaching the bound aborts the operation
	// before a partial self-settle could double apply the pending amount.
	listCanGrow := oblivious.IsNonzero(int64(MaxListEvents) - int64(b.entries[idx].ListLen()))
	settleIdx := oblivious.Select(listCanGrow, settleTarget, idx)

	if err := b.settleSlot(db, settleIdx); err != nil {
		return err
	}

	replacement, err := b.decoyEntry(rng)
	if err != nil {
		return err
	}
	b.entries[settleIdx] = replacement

	// Either update the account's existing slot or take over the slot
	// that was just settled.
	writeIdx := oblivious.Select(present, idx, settleIdx)
	b.entries[writeIdx] = candidate

	// Consume a free slot only while under capacity and only when the
	// account was not already buffered.
	b.freeSlots -= oblivious.SelectUint16(underCapacity, oblivious.SelectUint16(present, 0, 1), 0)

	return nil
}

// Release removes the account's entry from the buffer, if one exists, in
// constant time. Returns the account's balance including any buffered
// amount, and the entry that occupied the slot. The matched slot is
// overwritten with a fresh decoy unconditionally, sentinel included, so the
// same code path runs whether or not the account was buffered.
func (b *Buffer) Release(db *database.Database, rng *prng.PRNG, addr account.Address) (uint64, Entry, error) {
	balance, err := db.Balance(addr)
	if err != nil {
		return 0, Entry{}, err
	}

	idx := b.Match(addr)

	replacement, err := b.decoyEntry(rng)
	if err != nil {
		return 0, Entry{}, err
	}

	// The entry amount is 0 when idx is the sentinel.
	entry := b.entries[idx]
	balance = safeAdd(balance, entry.Amount())
	b.entries[idx] = replacement

	return balance, entry, nil
}

// SettleAccount settles an account that is about to be debited. Any
// buffered credit is released into the available balance first, the debit
// transaction is appended to the released entry's history, and the entry is
// committed as a bundle immediately: debits are never re-buffered because
// the durable balance changes synchronously with this call. Returns the new
// durable balance.
func (b *Buffer) SettleAccount(db *database.Database, rng *prng.PRNG, addr account.Address, txID uint64, amountSpent uint64, op string) (uint64, error) {
	balance, entry, err := b.Release(db, rng, addr)
	if err != nil {
		return 0, err
	}

	head, err := entry.addTransaction(db, txID)
	if err != nil {
		return 0, err
	}

	if err := db.AppendBundle(addr, head, entry.ListLen()); err != nil {
		return 0, err
	}

	if balance < amountSpent {
		return 0, &InsufficientFundsError{Op: op, Balance: balance, Required: amountSpent}
	}
	newBalance := balance - amountSpent

	if err := db.SaveBalance(addr, newBalance); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// settleSlot commits the slot's entry: its transaction list becomes a new
// bundle for the account and its pending amount folds into the account's
// durable balance. Settling a decoy or sentinel slot commits an empty
// bundle and a zero amount for a phantom account, which keeps the write
// pattern uniform.
func (b *Buffer) settleSlot(db *database.Database, idx int) error {
	entry := b.entries[idx]
	addr := entry.Account()

	if err := db.AppendBundle(addr, entry.HeadNode(), entry.ListLen()); err != nil {
		return err
	}

	balance, err := db.Balance(addr)
	if err != nil {
		return err
	}

	return db.SaveBalance(addr, safeAdd(balance, entry.Amount()))
}

// decoyEntry draws a zeroed entry tagged with a fresh random address that
// does not collide with any buffered address. Vacated slots are overwritten
// with these so they are indistinguishable from genuinely pending slots.
func (b *Buffer) decoyEntry(rng *prng.PRNG) (Entry, error) {
	for range maxDecoyRetries {
		addr := randomAddress(rng)
		if b.Match(addr) == 0 {
			return NewEntry(addr), nil
		}
	}

	return Entry{}, ErrDecoyExhausted
}

// randomAddress draws a full-width random account address.
func randomAddress(rng *prng.PRNG) account.Address {
	var addr account.Address
	rng.Read(addr[:])

	return addr
}

// safeAdd adds the amounts, saturating at the maximum representable
// balance the way the durable store contract specifies.
func safeAdd(a uint64, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}

	return a + b
}

// =============================================================================

// bufferBytes is the width of the serialized buffer.
const bufferBytes = 2 + BufferLen*EntryBytes

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (b *Buffer) MarshalBinary() ([]byte, error) {
	data := make([]byte, bufferBytes)
	data[0] = byte(b.freeSlots >> 8)
	data[1] = byte(b.freeSlots)

	for i := range b.entries {
		copy(data[2+i*EntryBytes:], b.entries[i][:])
	}

	return data, nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (b *Buffer) UnmarshalBinary(data []byte) error {
	if len(data) != bufferBytes {
		return fmt.Errorf("malformed settlement buffer: got %d bytes, exp %d", len(data), bufferBytes)
	}

	b.freeSlots = uint16(data[0])<<8 | uint16(data[1])
	for i := range b.entries {
		copy(b.entries[i][:], data[2+i*EntryBytes:2+(i+1)*EntryBytes])
	}

	return nil
}
