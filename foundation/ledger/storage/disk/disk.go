// Package disk implements the storage.KV interface on top of a leveldb
// database on disk.
package disk

import (
	"errors"

	"github.com/haventek/ledger/foundation/ledger/storage"
	"github.com/syndtr/goleveldb/leveldb"
)

// Disk represents the durable key/value store for the ledger. This
// implements the storage.KV and storage.Batcher interfaces.
type Disk struct {
	db *leveldb.DB
}

// New opens or creates the leveldb database at the specified path.
func New(dbPath string) (*Disk, error) {
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, err
	}

	return &Disk{db: db}, nil
}

// Close releases the underlying leveldb resources.
func (d *Disk) Close() error {
	return d.db.Close()
}

// Get returns the value stored under the key.
func (d *Disk) Get(key []byte) ([]byte, error) {
	value, err := d.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	return value, nil
}

// Put stores the value under the key.
func (d *Disk) Put(key []byte, value []byte) error {
	return d.db.Put(key, value, nil)
}

// Has reports whether the key exists.
func (d *Disk) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

// Delete removes the key from the database.
func (d *Disk) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

// PutBatch writes the full set of keys as one atomic leveldb batch.
func (d *Disk) PutBatch(writes map[string][]byte) error {
	batch := new(leveldb.Batch)
	for key, value := range writes {
		batch.Put([]byte(key), value)
	}

	return d.db.Write(batch, nil)
}
