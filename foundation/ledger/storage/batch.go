package storage

// Batch stages writes on top of an underlying KV so an operation either
// commits all of its mutations or none of them. Reads see staged writes
// first, matching the transactional host semantics the settlement buffer
// was designed for.
type Batch struct {
	kv      KV
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewBatch constructs a batch over the specified KV.
func NewBatch(kv KV) *Batch {
	return &Batch{
		kv:      kv,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the staged value for the key if one exists, falling back to
// the underlying KV.
func (b *Batch) Get(key []byte) ([]byte, error) {
	if value, exists := b.writes[string(key)]; exists {
		return append([]byte(nil), value...), nil
	}
	if _, deleted := b.deletes[string(key)]; deleted {
		return nil, ErrNotFound
	}

	return b.kv.Get(key)
}

// Put stages a write for the key.
func (b *Batch) Put(key []byte, value []byte) error {
	delete(b.deletes, string(key))
	b.writes[string(key)] = append([]byte(nil), value...)

	return nil
}

// Has reports whether the key exists in the staged writes or the
// underlying KV.
func (b *Batch) Has(key []byte) (bool, error) {
	if _, exists := b.writes[string(key)]; exists {
		return true, nil
	}
	if _, deleted := b.deletes[string(key)]; deleted {
		return false, nil
	}

	return b.kv.Has(key)
}

// Delete stages a removal of the key.
func (b *Batch) Delete(key []byte) error {
	delete(b.writes, string(key))
	b.deletes[string(key)] = struct{}{}

	return nil
}

// Close discards the staged writes without applying them.
func (b *Batch) Close() error {
	b.writes = make(map[string][]byte)
	b.deletes = make(map[string]struct{})

	return nil
}

// Commit applies the staged writes to the underlying KV. When the KV
// supports batch writes the whole set is applied atomically.
func (b *Batch) Commit() error {
	for key := range b.deletes {
		if err := b.kv.Delete([]byte(key)); err != nil {
			return err
		}
	}

	if batcher, ok := b.kv.(Batcher); ok {
		return batcher.PutBatch(b.writes)
	}

	for key, value := range b.writes {
		if err := b.kv.Put([]byte(key), value); err != nil {
			return err
		}
	}

	return nil
}
