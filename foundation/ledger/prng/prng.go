// Package prng implements the deterministic pseudo-random generator used by
// the settlement buffer. The generator is a ChaCha20 keystream seeded per
// external operation, so replaying the same operations reproduces the same
// draws while the stream remains unpredictable to outside observers.
package prng

import (
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

// SeedBytes is the width of the generator seed.
const SeedBytes = 32

// PRNG maintains a deterministic stream of random bytes.
type PRNG struct {
	cipher *chacha20.Cipher
}

// New constructs a generator from a raw 32-byte seed.
func New(seed [SeedBytes]byte) *PRNG {
	var nonce [chacha20.NonceSize]byte

	// Key and nonce sizes are fixed so this cannot fail.
	cipher, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		panic(err)
	}

	return &PRNG{cipher: cipher}
}

// FromSeedEntropy constructs a generator keyed by the hash of a long-lived
// seed and per-operation entropy. Every external operation derives its own
// stream this way.
func FromSeedEntropy(seed []byte, entropy []byte) *PRNG {
	h := sha256.New()
	h.Write(seed)
	h.Write(entropy)

	var key [SeedBytes]byte
	copy(key[:], h.Sum(nil))

	return New(key)
}

// Read fills p with the next bytes of the stream.
func (p *PRNG) Read(b []byte) {
	for i := range b {
		b[i] = 0
	}
	p.cipher.XORKeyStream(b, b)
}

// RandBytes returns the next 32 bytes of the stream.
func (p *PRNG) RandBytes() [32]byte {
	var b [32]byte
	p.Read(b[:])
	return b
}

// Uint64 returns the next 8 bytes of the stream as an unsigned integer.
func (p *PRNG) Uint64() uint64 {
	var b [8]byte
	p.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}
