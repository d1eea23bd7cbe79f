// Package storage declares the key/value behavior required by any package
// providing durable storage for the ledger.
package storage

import "errors"

// ErrNotFound is returned when a key does not exist in storage.
var ErrNotFound = errors.New("key not found")

// KV interface represents the behavior required to be implemented by any
// package providing durable key/value support for the ledger.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Close() error
}

// Batcher interface represents optional support for writing a set of keys
// atomically. The disk implementation provides this so an operation's
// mutations commit as one unit.
type Batcher interface {
	PutBatch(writes map[string][]byte) error
}
