package signature_test

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/haventek/ledger/foundation/ledger/account"
	"github.com/haventek/ledger/foundation/ledger/signature"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// =============================================================================

func Test_Signing(t *testing.T) {
	t.Log("Given the need to sign operations and recover the signing account.")
	{
		value := struct {
			Name string
		}{
			Name: "Bill",
		}

		pk, err := crypto.HexToECDSA(pkHexKey)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the private key: %v", failed, err)
		}
		owner := account.FromPublicKey(pk.PublicKey)

		t.Logf("\tTest 0:\tWhen signing and verifying a value.")
		{
			v, r, s, err := signature.Sign(value, pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the value: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sign the value.", success)

			if err := signature.VerifySignature(v, r, s); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to verify the signature: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to verify the signature.", success)

			addr, err := signature.FromAddress(value, v, r, s)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to recover the from address: %v", failed, err)
			}
			if addr != owner {
				t.Logf("\t\tTest 0:\tgot: %s", addr)
				t.Logf("\t\tTest 0:\texp: %s", owner)
				t.Fatalf("\t%s\tTest 0:\tShould recover the signing account.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould recover the signing account.", success)
		}

		t.Logf("\tTest 1:\tWhen round tripping the signature through its hex form.")
		{
			v, r, s, err := signature.Sign(value, pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to sign the value: %v", failed, err)
			}

			str := signature.SignatureString(v, r, s)
			v2, r2, s2, err := signature.ToVRSFromHexSignature(str)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to decode the hex signature: %v", failed, err)
			}

			if v.Cmp(v2) != 0 || r.Cmp(r2) != 0 || s.Cmp(s2) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould get back the same V, R, S values.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould get back the same V, R, S values.", success)

			addr, err := signature.FromAddress(value, v2, r2, s2)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to recover the from address: %v", failed, err)
			}
			if addr != owner {
				t.Fatalf("\t%s\tTest 1:\tShould recover the signing account from the decoded signature.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould recover the signing account from the decoded signature.", success)
		}
	}
}

func Test_Hash(t *testing.T) {
	t.Log("Given the need to produce stable hashes of operation data.")
	{
		value := struct {
			Name string
		}{
			Name: "Bill",
		}

		t.Logf("\tTest 0:\tWhen hashing the same value twice.")
		{
			h1, err := signature.Hash(value)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to hash the value: %v", failed, err)
			}
			if len(h1) != 32 {
				t.Fatalf("\t%s\tTest 0:\tShould produce a 32 byte hash: got %d", failed, len(h1))
			}
			t.Logf("\t%s\tTest 0:\tShould produce a 32 byte hash.", success)

			h2, err := signature.Hash(value)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to hash the value again: %v", failed, err)
			}
			if !bytes.Equal(h1, h2) {
				t.Fatalf("\t%s\tTest 0:\tShould get the same hash twice.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get the same hash twice.", success)
		}

		t.Logf("\tTest 1:\tWhen hashing a different value.")
		{
			other := struct {
				Name string
			}{
				Name: "Jill",
			}

			h1, err := signature.Hash(value)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to hash the value: %v", failed, err)
			}
			h2, err := signature.Hash(other)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to hash the other value: %v", failed, err)
			}
			if bytes.Equal(h1, h2) {
				t.Fatalf("\t%s\tTest 1:\tShould get a different hash.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould get a different hash.", success)
		}
	}
}
