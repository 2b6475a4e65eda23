package tokenstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoToken indicates no token record is stored.
	ErrNoToken = errors.New("token_store.not_found")
	// ErrPartialRecord indicates a save was attempted with required fields missing.
	ErrPartialRecord = errors.New("token_store.partial_record")
)

// TokenRecord is the persisted OAuth token triple plus its type. A stored record is
// always fully populated; partial records are rejected at save time.
type TokenRecord struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64
	TokenType    string
}

// Expired reports whether the record's expiry is at or before now.
func (record TokenRecord) Expired(now time.Time) bool {
	return record.ExpiresAt <= now.Unix()
}

// ExpiresWithin reports whether the record expires inside the lookahead window.
func (record TokenRecord) ExpiresWithin(now time.Time, window time.Duration) bool {
	return record.ExpiresAt <= now.Add(window).Unix()
}

func (record TokenRecord) complete() bool {
	return record.AccessToken != "" && record.RefreshToken != "" && record.ExpiresAt != 0 && record.TokenType != ""
}

// Store persists at most one token record, overwritten wholesale on every save.
// The client-local analog of browser localStorage under a fixed key.
type Store interface {
	Load(ctx context.Context) (TokenRecord, error)
	Save(ctx context.Context, record TokenRecord) error
	Clear(ctx context.Context) error
}
