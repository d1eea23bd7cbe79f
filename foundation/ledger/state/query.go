package state

import (
	"errors"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/database"
	"github.com/haventek/ledger/foundation/ledger/settle"
)

// Transactions returns one page of the account's history, most recent
// first, along with the account's total transaction count. The page is
// assembled from the account's live buffer list first and then from its
// settled bundles, located by binary search when the page starts past the
// buffered transactions.
func (s *State) Transactions(addr account.Address, page uint32, pageSize uint32) ([]database.Transaction, uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pageSize == 0 {
		return nil, 0, errors.New("invalid page size")
	}

	db := database.New(s.kv)

	buffer, err := settle.Load(s.kv)
	if err != nil {
		return nil, 0, err
	}

	start := page * pageSize
	end := start + pageSize

	// Anything still pending for the account sits at the head of its
	// history.
	idx := buffer.Match(addr)
	entry := buffer.EntryAt(idx)
	buffered := uint32(entry.ListLen())

	var bufferedTxs []database.Transaction
	if idx > 0 && buffered > 0 && start < buffered {
		if head := entry.HeadNode(); head > 0 {
			if bufferedTxs, err = db.Materialize(head); err != nil {
				return nil, 0, err
			}
		}
	}

	settled, err := db.AccountTxCount(addr)
	if err != nil {
		return nil, 0, err
	}

	total := buffered + settled
	if end > total {
		end = total
	}

	var txs []database.Transaction

	switch {
	case start >= end:
		// Page is out of range.

	case end <= buffered:
		// The whole page is still in the buffer.
		txs = bufferedTxs[start:end]

	case start < buffered:
		// The page straddles the buffer and the settled bundles: take the
		// tail of the buffer list and continue backwards from the most
		// recent bundle.
		txs = append(txs, bufferedTxs[start:]...)
		left := (end - start) - uint32(len(txs))

		count, err := db.BundleCount(addr)
		if err != nil {
			return nil, 0, err
		}

		for i := int64(count) - 1; i >= 0 && left > 0; i-- {
			bundle, err := db.Bundle(addr, uint32(i))
			if err != nil {
				return nil, 0, err
			}
			list, err := db.Materialize(bundle.Head)
			if err != nil {
				return nil, 0, err
			}

			if left <= uint32(len(list)) {
				txs = append(txs, list[:left]...)
				break
			}
			txs = append(txs, list...)
			left -= uint32(len(list))
		}

	default:
		// The page is entirely settled. Bundle offsets are chronological
		// while the page index is reverse-chronological, so flip the index
		// before the binary search.
		settledStart := satSub(satSub(settled, start-buffered), 1)

		bundleIdx, bundle, startAt, found, err := db.FindStartBundle(addr, settledStart)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			break
		}

		left := end - start

		list, err := db.Materialize(bundle.Head)
		if err != nil {
			return nil, 0, err
		}

		if startAt+left <= uint32(len(list)) {
			txs = list[startAt : startAt+left]
			break
		}

		txs = append(txs, list[startAt:]...)
		left -= uint32(len(list)) - startAt

		for i := int64(bundleIdx) - 1; i >= 0 && left > 0; i-- {
			earlier, err := db.Bundle(addr, uint32(i))
			if err != nil {
				return nil, 0, err
			}
			list, err := db.Materialize(earlier.Head)
			if err != nil {
				return nil, 0, err
			}

			if left <= uint32(len(list)) {
				txs = append(txs, list[:left]...)
				break
			}
			txs = append(txs, list...)
			left -= uint32(len(list))
		}
	}

	return txs, total, nil
}

// satSub subtracts without wrapping below zero.
func satSub(a uint32, b uint32) uint32 {
	if b > a {
		return 0
	}

	return a - b
}
