package tokenstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func sampleRecord() TokenRecord {
	return TokenRecord{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(6 * time.Hour).Unix(),
		TokenType:    "Bearer",
	}
}

func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, loadErr := store.Load(ctx); !errors.Is(loadErr, ErrNoToken) {
		t.Fatalf("expected ErrNoToken from empty store, got %v", loadErr)
	}

	record := sampleRecord()
	if saveErr := store.Save(ctx, record); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}

	loaded, loadErr := store.Load(ctx)
	if loadErr != nil {
		t.Fatalf("unexpected load error: %v", loadErr)
	}
	if loaded != record {
		t.Fatalf("loaded record differs: got %+v want %+v", loaded, record)
	}

	replacement := record
	replacement.AccessToken = "access-2"
	replacement.RefreshToken = "refresh-2"
	if saveErr := store.Save(ctx, replacement); saveErr != nil {
		t.Fatalf("unexpected overwrite error: %v", saveErr)
	}
	loaded, loadErr = store.Load(ctx)
	if loadErr != nil {
		t.Fatalf("unexpected load error after overwrite: %v", loadErr)
	}
	if loaded != replacement {
		t.Fatalf("overwrite not wholesale: got %+v want %+v", loaded, replacement)
	}

	if clearErr := store.Clear(ctx); clearErr != nil {
		t.Fatalf("unexpected clear error: %v", clearErr)
	}
	if _, loadErr = store.Load(ctx); !errors.Is(loadErr, ErrNoToken) {
		t.Fatalf("expected ErrNoToken after clear, got %v", loadErr)
	}
	if clearErr := store.Clear(ctx); clearErr != nil {
		t.Fatalf("clearing an empty store should not fail: %v", clearErr)
	}
}

func TestMemoryTokenStoreContract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryTokenStore())
}

func TestDatabaseTokenStoreContract(t *testing.T) {
	t.Parallel()
	store, openErr := NewDatabaseTokenStore(context.Background(), filepath.Join(t.TempDir(), "tokens.db"))
	if openErr != nil {
		t.Fatalf("unexpected open error: %v", openErr)
	}
	runStoreContract(t, store)
}

func TestDatabaseTokenStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tokens.db")
	ctx := context.Background()

	first, openErr := NewDatabaseTokenStore(ctx, path)
	if openErr != nil {
		t.Fatalf("unexpected open error: %v", openErr)
	}
	record := sampleRecord()
	if saveErr := first.Save(ctx, record); saveErr != nil {
		t.Fatalf("unexpected save error: %v", saveErr)
	}

	second, reopenErr := NewDatabaseTokenStore(ctx, path)
	if reopenErr != nil {
		t.Fatalf("unexpected reopen error: %v", reopenErr)
	}
	loaded, loadErr := second.Load(ctx)
	if loadErr != nil {
		t.Fatalf("unexpected load error after reopen: %v", loadErr)
	}
	if loaded != record {
		t.Fatalf("record did not survive reopen: got %+v want %+v", loaded, record)
	}
}

func TestSaveRejectsPartialRecords(t *testing.T) {
	t.Parallel()
	store := NewMemoryTokenStore()
	partial := sampleRecord()
	partial.RefreshToken = ""
	if saveErr := store.Save(context.Background(), partial); !errors.Is(saveErr, ErrPartialRecord) {
		t.Fatalf("expected ErrPartialRecord, got %v", saveErr)
	}
	if _, loadErr := store.Load(context.Background()); !errors.Is(loadErr, ErrNoToken) {
		t.Fatalf("partial save must not store anything, got %v", loadErr)
	}
}

func TestRecordExpiryHelpers(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_800_000_000, 0)

	expired := TokenRecord{ExpiresAt: now.Unix()}
	if !expired.Expired(now) {
		t.Fatalf("record expiring exactly now must count as expired")
	}
	live := TokenRecord{ExpiresAt: now.Add(6 * time.Hour).Unix()}
	if live.Expired(now) {
		t.Fatalf("record six hours out must not be expired")
	}
	if live.ExpiresWithin(now, 5*time.Minute) {
		t.Fatalf("record six hours out is not inside the refresh window")
	}
	closeToExpiry := TokenRecord{ExpiresAt: now.Add(2 * time.Minute).Unix()}
	if !closeToExpiry.ExpiresWithin(now, 5*time.Minute) {
		t.Fatalf("record two minutes out must be inside the refresh window")
	}
}
