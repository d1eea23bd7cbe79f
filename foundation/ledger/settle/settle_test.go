package settle_test

import (
	"errors"
	"testing"
	"time"

	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/database"
	"github.com/haventek/ledger/foundation/ledger/prng"
	"github.com/haventek/ledger/foundation/ledger/settle"
	"github.com/haventek/ledger/foundation/ledger/storage/memory"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

// testAddr produces a distinct non-zero address for each id.
func testAddr(id byte) account.Address {
	var addr account.Address
	addr[0] = 0xaa
	addr[account.AddressBytes-1] = id

	return addr
}

// testRNG returns a deterministic generator for driving the buffer.
func testRNG() *prng.PRNG {
	var seed [prng.SeedBytes]byte
	copy(seed[:], []byte("settlement buffer test seed 0001"))

	return prng.New(seed)
}

// appendTx stores a transaction record so history nodes have something to
// resolve against, returning its serial.
func appendTx(t *testing.T, db *database.Database, from account.Address, to account.Address, amount uint64) uint64 {
	t.Helper()

	id, err := db.AppendTransaction(database.Transaction{
		Action:    database.ActionTransfer,
		From:      from,
		Sender:    from,
		To:        to,
		Amount:    amount,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to append transaction: %v", failed, err)
	}

	return id
}

// =============================================================================

func Test_MatchAndSentinel(t *testing.T) {
	t.Log("Given the need to locate buffered accounts in constant time.")
	{
		db := database.New(memory.New())
		rng := testRNG()
		buffer := settle.New()

		alice := testAddr(1)
		bob := testAddr(2)

		t.Logf("\tTest 0:\tWhen the buffer is empty.")
		{
			if idx := buffer.Match(alice); idx != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould match the sentinel for an unbuffered account: got %d", failed, idx)
			}
			t.Logf("\t%s\tTest 0:\tShould match the sentinel for an unbuffered account.", success)

			if amount := buffer.EntryAt(0).Amount(); amount != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould read a zero pending amount via the sentinel: got %d", failed, amount)
			}
			t.Logf("\t%s\tTest 0:\tShould read a zero pending amount via the sentinel.", success)
		}

		t.Logf("\tTest 1:\tWhen one account is buffered.")
		{
			txID := appendTx(t, db, bob, alice, 1000)
			if err := buffer.Credit(db, rng, alice, txID, 1000); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to credit the account: %v", failed, err)
			}

			idx := buffer.Match(alice)
			if idx == 0 {
				t.Fatalf("\t%s\tTest 1:\tShould match the credited account.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould match the credited account.", success)

			entry := buffer.EntryAt(idx)
			if entry.Account() != alice || entry.Amount() != 1000 || entry.ListLen() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould hold the pending credit: amount %d len %d", failed, entry.Amount(), entry.ListLen())
			}
			t.Logf("\t%s\tTest 1:\tShould hold the pending credit.", success)

			if idx := buffer.Match(bob); idx != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould not match a different account: got %d", failed, idx)
			}
			t.Logf("\t%s\tTest 1:\tShould not match a different account.", success)
		}
	}
}

func Test_CreditAndSettle(t *testing.T) {
	t.Log("Given the need to accumulate credits and settle on debit.")
	{
		kv := memory.New()
		db := database.New(kv)
		rng := testRNG()
		buffer := settle.New()

		alice := testAddr(1)
		bob := testAddr(2)

		t.Logf("\tTest 0:\tWhen crediting a new account.")
		{
			if free := buffer.FreeSlots(); free != settle.Capacity {
				t.Fatalf("\t%s\tTest 0:\tShould start with %d free slots: got %d", failed, settle.Capacity, free)
			}

			txID := appendTx(t, db, bob, alice, 1000)
			if err := buffer.Credit(db, rng, alice, txID, 1000); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to credit the account: %v", failed, err)
			}

			if free := buffer.FreeSlots(); free != settle.Capacity-1 {
				t.Fatalf("\t%s\tTest 0:\tShould consume one free slot: got %d", failed, free)
			}
			t.Logf("\t%s\tTest 0:\tShould consume one free slot.", success)

			balance, err := db.Balance(alice)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to read the balance: %v", failed, err)
			}
			if balance != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould leave the durable balance untouched: got %d", failed, balance)
			}
			t.Logf("\t%s\tTest 0:\tShould leave the durable balance untouched.", success)
		}

		t.Logf("\tTest 1:\tWhen crediting the same account again.")
		{
			txID := appendTx(t, db, bob, alice, 500)
			if err := buffer.Credit(db, rng, alice, txID, 500); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to credit the account: %v", failed, err)
			}

			if free := buffer.FreeSlots(); free != settle.Capacity-1 {
				t.Fatalf("\t%s\tTest 1:\tShould not consume another free slot: got %d", failed, free)
			}
			t.Logf("\t%s\tTest 1:\tShould not consume another free slot.", success)

			entry := buffer.EntryAt(buffer.Match(alice))
			if entry.Amount() != 1500 || entry.ListLen() != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould accumulate into one entry: amount %d len %d", failed, entry.Amount(), entry.ListLen())
			}
			t.Logf("\t%s\tTest 1:\tShould accumulate into one entry.", success)
		}

		t.Logf("\tTest 2:\tWhen the account is debited.")
		{
			txID := appendTx(t, db, alice, bob, 500)
			newBalance, err := buffer.SettleAccount(db, rng, alice, txID, 500, "transfer")
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to settle the account: %v", failed, err)
			}
			if newBalance != 1000 {
				t.Fatalf("\t%s\tTest 2:\tShould leave a durable balance of 1000: got %d", failed, newBalance)
			}
			t.Logf("\t%s\tTest 2:\tShould leave a durable balance of 1000.", success)

			if idx := buffer.Match(alice); idx != 0 {
				t.Fatalf("\t%s\tTest 2:\tShould remove the account from the buffer: got %d", failed, idx)
			}
			t.Logf("\t%s\tTest 2:\tShould remove the account from the buffer.", success)

			count, err := db.BundleCount(alice)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to read the bundle count: %v", failed, err)
			}
			if count != 1 {
				t.Fatalf("\t%s\tTest 2:\tShould commit one bundle: got %d", failed, count)
			}

			bundle, err := db.Bundle(alice, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to read the bundle: %v", failed, err)
			}
			if bundle.Length != 3 || bundle.Offset != 0 {
				t.Fatalf("\t%s\tTest 2:\tShould bundle all three events: length %d offset %d", failed, bundle.Length, bundle.Offset)
			}
			t.Logf("\t%s\tTest 2:\tShould bundle both credits and the debit.", success)

			txs, err := db.Materialize(bundle.Head)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to materialize the bundle: %v", failed, err)
			}
			if len(txs) != 3 || txs[0].Amount != 500 || txs[1].Amount != 500 || txs[2].Amount != 1000 {
				t.Fatalf("\t%s\tTest 2:\tShould list events most recent first: %+v", failed, txs)
			}
			t.Logf("\t%s\tTest 2:\tShould list events most recent first.", success)

			if free := buffer.FreeSlots(); free != settle.Capacity-1 {
				t.Fatalf("\t%s\tTest 2:\tShould never recover free slots: got %d", failed, free)
			}
			t.Logf("\t%s\tTest 2:\tShould never recover free slots.", success)
		}

		t.Logf("\tTest 3:\tWhen debiting more than the account holds.")
		{
			txID := appendTx(t, db, alice, bob, 5000)
			_, err := buffer.SettleAccount(db, rng, alice, txID, 5000, "transfer")

			var insufficient *settle.InsufficientFundsError
			if !errors.As(err, &insufficient) {
				t.Fatalf("\t%s\tTest 3:\tShould get an insufficient funds error: %v", failed, err)
			}
			if insufficient.Balance != 1000 || insufficient.Required != 5000 {
				t.Fatalf("\t%s\tTest 3:\tShould report the shortfall: %v", failed, insufficient)
			}
			t.Logf("\t%s\tTest 3:\tShould report the shortfall.", success)
		}
	}
}

func Test_Saturation(t *testing.T) {
	t.Log("Given the need to keep operating once every slot is occupied.")
	{
		db := database.New(memory.New())
		rng := testRNG()
		buffer := settle.New()

		funder := testAddr(255)

		t.Logf("\tTest 0:\tWhen filling all %d slots with distinct accounts.", settle.Capacity)
		{
			for i := range settle.Capacity {
				addr := testAddr(byte(i + 1))
				txID := appendTx(t, db, funder, addr, uint64(i+1)*10)
				if err := buffer.Credit(db, rng, addr, txID, uint64(i+1)*10); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to credit account %d: %v", failed, i, err)
				}
			}

			if free := buffer.FreeSlots(); free != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould have no free slots left: got %d", failed, free)
			}
			t.Logf("\t%s\tTest 0:\tShould have no free slots left.", success)

			for i := range settle.Capacity {
				if buffer.Match(testAddr(byte(i+1))) == 0 {
					t.Fatalf("\t%s\tTest 0:\tShould still buffer account %d.", failed, i)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould buffer every account.", success)
		}

		t.Logf("\tTest 1:\tWhen crediting one account past capacity.")
		{
			extra := testAddr(100)
			txID := appendTx(t, db, funder, extra, 7777)
			if err := buffer.Credit(db, rng, extra, txID, 7777); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to credit past capacity: %v", failed, err)
			}

			if buffer.Match(extra) == 0 {
				t.Fatalf("\t%s\tTest 1:\tShould buffer the new account.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould buffer the new account.", success)

			// Exactly one prior account was evicted: its pending amount
			// became durable and its slot was taken over.
			var evicted int
			for i := range settle.Capacity {
				addr := testAddr(byte(i + 1))
				if buffer.Match(addr) != 0 {
					continue
				}
				evicted++

				balance, err := db.Balance(addr)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to read the balance: %v", failed, err)
				}
				if balance != uint64(i+1)*10 {
					t.Fatalf("\t%s\tTest 1:\tShould settle the evicted account's full amount: got %d", failed, balance)
				}

				count, err := db.BundleCount(addr)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to read the bundle count: %v", failed, err)
				}
				if count != 1 {
					t.Fatalf("\t%s\tTest 1:\tShould commit the evicted account's bundle: got %d", failed, count)
				}
			}
			if evicted != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould evict exactly one account: got %d", failed, evicted)
			}
			t.Logf("\t%s\tTest 1:\tShould evict exactly one account and settle it in full.", success)

			if free := buffer.FreeSlots(); free != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould stay at zero free slots: got %d", failed, free)
			}
			t.Logf("\t%s\tTest 1:\tShould stay at zero free slots.", success)
		}
	}
}

func Test_Persistence(t *testing.T) {
	t.Log("Given the need to persist the buffer across operations.")
	{
		kv := memory.New()
		db := database.New(kv)
		rng := testRNG()

		alice := testAddr(1)

		t.Logf("\tTest 0:\tWhen no buffer has ever been saved.")
		{
			buffer, err := settle.Load(kv)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to load a fresh buffer: %v", failed, err)
			}
			if buffer.FreeSlots() != settle.Capacity {
				t.Fatalf("\t%s\tTest 0:\tShould construct an empty buffer: free %d", failed, buffer.FreeSlots())
			}
			t.Logf("\t%s\tTest 0:\tShould construct an empty buffer.", success)
		}

		t.Logf("\tTest 1:\tWhen saving and reloading a populated buffer.")
		{
			buffer := settle.New()

			txID := appendTx(t, db, testAddr(2), alice, 250)
			if err := buffer.Credit(db, rng, alice, txID, 250); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to credit the account: %v", failed, err)
			}
			if err := buffer.Save(kv); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to save the buffer: %v", failed, err)
			}

			reloaded, err := settle.Load(kv)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to reload the buffer: %v", failed, err)
			}

			if reloaded.FreeSlots() != buffer.FreeSlots() {
				t.Fatalf("\t%s\tTest 1:\tShould preserve the free slot counter.", failed)
			}
			entry := reloaded.EntryAt(reloaded.Match(alice))
			if entry.Account() != alice || entry.Amount() != 250 || entry.ListLen() != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould preserve the pending entry: amount %d", failed, entry.Amount())
			}
			t.Logf("\t%s\tTest 1:\tShould preserve the buffer byte for byte.", success)
		}
	}
}

func Test_Coalescing(t *testing.T) {
	t.Log("Given the need to coalesce repeated credits into a single settlement.")
	{
		kv := memory.New()
		db := database.New(kv)
		rng := testRNG()
		buffer := settle.New()

		alice := testAddr(1)
		bob := testAddr(2)

		t.Logf("\tTest 0:\tWhen one account is credited ten times.")
		{
			for i := 1; i <= 10; i++ {
				amount := uint64(i) * 100
				txID := appendTx(t, db, bob, alice, amount)
				if err := buffer.Credit(db, rng, alice, txID, amount); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to credit the account: %v", failed, err)
				}
			}

			if got := buffer.FreeSlots(); got != settle.BufferLen-2 {
				t.Fatalf("\t%s\tTest 0:\tShould consume exactly one slot: free %d", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould consume exactly one slot.", success)

			entry := buffer.EntryAt(buffer.Match(alice))
			if entry.Amount() != 5500 {
				t.Fatalf("\t%s\tTest 0:\tShould accumulate the full pending amount: got %d", failed, entry.Amount())
			}
			if entry.ListLen() != 10 {
				t.Fatalf("\t%s\tTest 0:\tShould grow the list once per credit: got %d", failed, entry.ListLen())
			}
			t.Logf("\t%s\tTest 0:\tShould accumulate the full pending amount in one list.", success)
		}

		t.Logf("\tTest 1:\tWhen the account is settled by a debit.")
		{
			txID := appendTx(t, db, alice, bob, 500)
			newBalance, err := buffer.SettleAccount(db, rng, alice, txID, 500, "transfer")
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to settle the account: %v", failed, err)
			}
			if newBalance != 5000 {
				t.Fatalf("\t%s\tTest 1:\tShould fold every credit into the durable balance: got %d", failed, newBalance)
			}
			t.Logf("\t%s\tTest 1:\tShould fold every credit into the durable balance.", success)

			count, err := db.BundleCount(alice)
			if err != nil || count != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould commit exactly one bundle: got %d, %v", failed, count, err)
			}

			bundle, err := db.Bundle(alice, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to read the bundle: %v", failed, err)
			}
			if bundle.Length != 11 || bundle.Offset != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould commit one bundle covering all eleven transactions: len %d off %d", failed, bundle.Length, bundle.Offset)
			}
			t.Logf("\t%s\tTest 1:\tShould commit one bundle covering all eleven transactions.", success)

			txs, err := db.Materialize(bundle.Head)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to materialize the bundle: %v", failed, err)
			}
			if len(txs) != 11 {
				t.Fatalf("\t%s\tTest 1:\tShould materialize eleven transactions: got %d", failed, len(txs))
			}
			if txs[0].Amount != 500 {
				t.Fatalf("\t%s\tTest 1:\tShould list the debit first: got %d", failed, txs[0].Amount)
			}
			for i := 1; i <= 10; i++ {
				want := uint64(11-i) * 100
				if txs[i].Amount != want {
					t.Fatalf("\t%s\tTest 1:\tShould list the credits most recent first: pos %d got %d want %d", failed, i, txs[i].Amount, want)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould list all transactions most recent first.", success)
		}
	}
}

func Test_BalanceContinuity(t *testing.T) {
	t.Log("Given the need to keep an account's total balance stable across unrelated operations.")
	{
		kv := memory.New()
		db := database.New(kv)
		rng := testRNG()
		buffer := settle.New()

		watched := testAddr(1)

		txID := appendTx(t, db, testAddr(2), watched, 700)
		if err := buffer.Credit(db, rng, watched, txID, 700); err != nil {
			t.Fatalf("\t%s\tShould be able to credit the watched account: %v", failed, err)
		}

		total := func() uint64 {
			balance, err := db.Balance(watched)
			if err != nil {
				t.Fatalf("\t%s\tShould be able to read the durable balance: %v", failed, err)
			}
			return balance + buffer.EntryAt(buffer.Match(watched)).Amount()
		}

		t.Logf("\tTest 0:\tWhen 120 other accounts are credited through saturation and eviction.")
		{
			for i := range 120 {
				other := testAddr(byte(100 + i))
				txID := appendTx(t, db, other, other, 50)
				if err := buffer.Credit(db, rng, other, txID, 50); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to credit account %d: %v", failed, i, err)
				}

				if got := total(); got != 700 {
					t.Fatalf("\t%s\tTest 0:\tShould hold the watched total after credit %d: got %d", failed, i, got)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould hold the watched account's total through every credit.", success)
		}
	}
}

func Test_BundlePartition(t *testing.T) {
	t.Log("Given the need to partition an account's history across bundles.")
	{
		kv := memory.New()
		db := database.New(kv)
		rng := testRNG()
		buffer := settle.New()

		alice := testAddr(1)
		bob := testAddr(2)

		cycle := func(credits []uint64, debit uint64) {
			for _, amount := range credits {
				txID := appendTx(t, db, alice, bob, amount)
				if err := buffer.Credit(db, rng, bob, txID, amount); err != nil {
					t.Fatalf("\t%s\tShould be able to credit the account: %v", failed, err)
				}
			}

			txID := appendTx(t, db, bob, alice, debit)
			if _, err := buffer.SettleAccount(db, rng, bob, txID, debit, "transfer"); err != nil {
				t.Fatalf("\t%s\tShould be able to settle the account: %v", failed, err)
			}
		}

		cycle([]uint64{100, 200}, 50)
		cycle([]uint64{10, 20, 30}, 5)
		cycle([]uint64{7}, 1)

		t.Logf("\tTest 0:\tWhen checking the offset partition invariant.")
		{
			count, err := db.BundleCount(bob)
			if err != nil || count != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould have three bundles: got %d, %v", failed, count, err)
			}

			var offset uint32
			for i := range count {
				bundle, err := db.Bundle(bob, i)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to read bundle %d: %v", failed, i, err)
				}
				if bundle.Offset != offset {
					t.Fatalf("\t%s\tTest 0:\tShould chain offsets with no gaps: bundle %d off %d want %d", failed, i, bundle.Offset, offset)
				}
				offset += uint32(bundle.Length)
			}

			txCount, err := db.AccountTxCount(bob)
			if err != nil || txCount != offset {
				t.Fatalf("\t%s\tTest 0:\tShould count every settled transaction: got %d want %d", failed, txCount, offset)
			}
			t.Logf("\t%s\tTest 0:\tShould chain offsets with no gaps or overlaps.", success)
		}

		t.Logf("\tTest 1:\tWhen locating every chronological position.")
		{
			var chrono []database.Transaction
			for i := range uint32(3) {
				bundle, err := db.Bundle(bob, i)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to read bundle %d: %v", failed, i, err)
				}
				txs, err := db.Materialize(bundle.Head)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to materialize bundle %d: %v", failed, i, err)
				}
				for j := len(txs) - 1; j >= 0; j-- {
					chrono = append(chrono, txs[j])
				}
			}
			if len(chrono) != 9 {
				t.Fatalf("\t%s\tTest 1:\tShould materialize nine transactions: got %d", failed, len(chrono))
			}

			for x := range uint32(9) {
				_, bundle, startAt, found, err := db.FindStartBundle(bob, x)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to search position %d: %v", failed, x, err)
				}
				if !found {
					t.Fatalf("\t%s\tTest 1:\tShould find a bundle for position %d.", failed, x)
				}

				txs, err := db.Materialize(bundle.Head)
				if err != nil {
					t.Fatalf("\t%s\tTest 1:\tShould be able to materialize the located bundle: %v", failed, err)
				}
				if txs[startAt].ID != chrono[x].ID {
					t.Fatalf("\t%s\tTest 1:\tShould agree with linear indexing at position %d: got tx %d want %d", failed, x, txs[startAt].ID, chrono[x].ID)
				}
			}
			t.Logf("\t%s\tTest 1:\tShould agree with linear indexing at every position.", success)

			if _, _, _, found, err := db.FindStartBundle(bob, 9); err != nil || found {
				t.Fatalf("\t%s\tTest 1:\tShould not find a bundle past the end: found %v, %v", failed, found, err)
			}
			t.Logf("\t%s\tTest 1:\tShould not find a bundle past the end.", success)
		}
	}
}
