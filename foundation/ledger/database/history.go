package database

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/haventek/ledger/foundation/ledger/account"
)

// Node represents one element of a settlement entry's singly linked
// transaction list. Nodes are append-only and identified permanently by
// their serial handle, which starts at 1. A Previous handle of 0 marks the
// end of the list.
type Node struct {
	TxID     uint64
	Previous uint64
}

// Bundle represents one committed batch of history nodes produced by a
// single flush of an account's settlement entry. Offset is the cumulative
// count of the account's transactions before this bundle, so bundles
// partition the account's history with no gaps or overlaps.
type Bundle struct {
	Head   uint64
	Length uint16
	Offset uint32
}

// =============================================================================
// History nodes

// AppendNode stores a new history node and returns its serial handle.
func (db *Database) AppendNode(n Node) (uint64, error) {
	count, err := db.loadUint64(keyNodeCount)
	if err != nil {
		return 0, err
	}

	// Node handles start at 1 so 0 can mean null in entry head pointers.
	id := count + 1

	var data [16]byte
	binary.BigEndian.PutUint64(data[:8], n.TxID)
	binary.BigEndian.PutUint64(data[8:], n.Previous)

	if err := db.kv.Put(suffixUint64(keyNode, id), data[:]); err != nil {
		return 0, err
	}
	if err := db.saveUint64(keyNodeCount, id); err != nil {
		return 0, err
	}

	return id, nil
}

// Node returns the history node stored under the specified handle.
func (db *Database) Node(id uint64) (Node, error) {
	data, err := db.kv.Get(suffixUint64(keyNode, id))
	if err != nil {
		return Node{}, fmt.Errorf("history node %d: %w", id, err)
	}
	if len(data) != 16 {
		return Node{}, fmt.Errorf("malformed history node %d: %d bytes", id, len(data))
	}

	return Node{
		TxID:     binary.BigEndian.Uint64(data[:8]),
		Previous: binary.BigEndian.Uint64(data[8:]),
	}, nil
}

// Materialize walks the linked list from the specified head handle,
// resolving every node against the global transaction table. The result is
// ordered most recent first. A head of 0 yields an empty list.
func (db *Database) Materialize(head uint64) ([]Transaction, error) {
	var txs []Transaction

	for id := head; id != 0; {
		node, err := db.Node(id)
		if err != nil {
			return nil, err
		}

		tx, err := db.Transaction(node.TxID)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)

		id = node.Previous
	}

	return txs, nil
}

// =============================================================================
// Account bundle index

// AppendBundle commits a new bundle for the account. The bundle's offset is
// derived from the previous bundle in O(1), and the account's maintained
// total transaction count grows by the bundle length.
func (db *Database) AppendBundle(addr account.Address, head uint64, length uint16) error {
	countKey := append(append([]byte(nil), keyBundleLen...), addr[:]...)
	count, err := db.loadUint32(countKey)
	if err != nil {
		return err
	}

	bundle := Bundle{Head: head, Length: length}
	if count > 0 {
		last, err := db.Bundle(addr, count-1)
		if err != nil {
			return err
		}
		bundle.Offset = last.Offset + uint32(last.Length)
	}

	var data [14]byte
	binary.BigEndian.PutUint64(data[:8], bundle.Head)
	binary.BigEndian.PutUint16(data[8:10], bundle.Length)
	binary.BigEndian.PutUint32(data[10:], bundle.Offset)

	if err := db.kv.Put(suffixAddrUint32(keyBundle, addr, count), data[:]); err != nil {
		return err
	}
	if err := db.saveUint32(countKey, count+1); err != nil {
		return err
	}

	txCountKey := append(append([]byte(nil), keyAccTxCount...), addr[:]...)
	txCount, err := db.loadUint32(txCountKey)
	if err != nil {
		return err
	}

	// The count saturates rather than wraps so pagination stays in range.
	total := txCount + uint32(length)
	if total < txCount {
		total = math.MaxUint32
	}

	return db.saveUint32(txCountKey, total)
}

// Bundle returns the bundle stored at the specified index for the account.
func (db *Database) Bundle(addr account.Address, index uint32) (Bundle, error) {
	data, err := db.kv.Get(suffixAddrUint32(keyBundle, addr, index))
	if err != nil {
		return Bundle{}, fmt.Errorf("bundle %d for %s: %w", index, addr, err)
	}
	if len(data) != 14 {
		return Bundle{}, fmt.Errorf("malformed bundle %d for %s: %d bytes", index, addr, len(data))
	}

	return Bundle{
		Head:   binary.BigEndian.Uint64(data[:8]),
		Length: binary.BigEndian.Uint16(data[8:10]),
		Offset: binary.BigEndian.Uint32(data[10:]),
	}, nil
}

// BundleCount returns the number of bundles committed for the account.
func (db *Database) BundleCount(addr account.Address) (uint32, error) {
	return db.loadUint32(append(append([]byte(nil), keyBundleLen...), addr[:]...))
}

// AccountTxCount returns the total number of settled transactions for the
// account across all of its bundles.
func (db *Database) AccountTxCount(addr account.Address) (uint32, error) {
	return db.loadUint32(append(append([]byte(nil), keyAccTxCount...), addr[:]...))
}

// FindStartBundle does a binary search over the account's bundle index to
// find the bundle containing the transaction at the specified chronological
// position. Returns the bundle index, the bundle, and the position within
// the bundle's linked list to begin iterating from, or found=false when the
// position is out of range.
func (db *Database) FindStartBundle(addr account.Address, startIdx uint32) (uint32, Bundle, uint32, bool, error) {
	count, err := db.BundleCount(addr)
	if err != nil {
		return 0, Bundle{}, 0, false, err
	}

	lo, hi := uint32(0), count
	for lo < hi {
		mid := lo + (hi-lo)/2

		bundle, err := db.Bundle(addr, mid)
		if err != nil {
			return 0, Bundle{}, 0, false, err
		}

		switch {
		case startIdx >= bundle.Offset && startIdx < bundle.Offset+uint32(bundle.Length):
			// The bundle list materializes most recent first, so convert
			// the chronological position to a list position.
			startAt := uint32(bundle.Length) - (startIdx - bundle.Offset) - 1
			return mid, bundle, startAt, true, nil

		case startIdx < bundle.Offset:
			hi = mid

		default:
			lo = mid + 1
		}
	}

	return 0, Bundle{}, 0, false, nil
}
