// Package account provides support for the fixed-width canonical account
// addresses used throughout the ledger.
package account

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// AddressBytes is the canonical width of an account address. The settlement
// entry layout derives its field offsets from this value, so it is a
// deployment parameter rather than something that can change at runtime.
const AddressBytes = 20

// Address represents the canonical form of an account on the ledger.
type Address [AddressBytes]byte

// ZeroAddress is the reserved all-zero address held by the settlement
// buffer's sentinel slot. It is never assigned to a real account.
var ZeroAddress Address

// FromBytes constructs an address from its canonical byte form and validates
// the width.
func FromBytes(b []byte) (Address, error) {
	if len(b) != AddressBytes {
		return Address{}, fmt.Errorf("invalid address length: got %d, exp %d", len(b), AddressBytes)
	}

	var addr Address
	copy(addr[:], b)

	return addr, nil
}

// FromHex converts a hex-encoded string to an address and validates the
// hex-encoded string is formatted correctly.
func FromHex(s string) (Address, error) {
	if has0xPrefix(s) {
		s = s[2:]
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, errors.New("invalid address format")
	}

	return FromBytes(b)
}

// FromPublicKey converts the public key to an account address.
func FromPublicKey(pk ecdsa.PublicKey) Address {
	var addr Address
	copy(addr[:], crypto.PubkeyToAddress(pk).Bytes())

	return addr
}

// Hex returns the 0x prefixed hex encoding of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// IsZero reports whether the address is the reserved zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String implements the fmt.Stringer interface.
func (a Address) String() string {
	return a.Hex()
}

// =============================================================================

// has0xPrefix validates the string starts with a 0x.
func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// MarshalText implements the encoding.TextMarshaler interface so addresses
// serialize as hex in JSON documents.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (a *Address) UnmarshalText(text []byte) error {
	addr, err := FromHex(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}

	*a = addr
	return nil
}
