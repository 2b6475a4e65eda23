package tokenstore

import (
	"context"
	"sync"
)

// MemoryTokenStore is an in-memory Store intended for tests and dry runs.
type MemoryTokenStore struct {
	mutex   sync.Mutex
	record  TokenRecord
	present bool
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Load returns the stored record, or ErrNoToken when absent.
func (store *MemoryTokenStore) Load(ctx context.Context) (TokenRecord, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if !store.present {
		return TokenRecord{}, ErrNoToken
	}
	return store.record, nil
}

// Save overwrites the stored record wholesale.
func (store *MemoryTokenStore) Save(ctx context.Context, record TokenRecord) error {
	if !record.complete() {
		return ErrPartialRecord
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.record = record
	store.present = true
	return nil
}

// Clear deletes the stored record.
func (store *MemoryTokenStore) Clear(ctx context.Context) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.record = TokenRecord{}
	store.present = false
	return nil
}
