package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errEmptyDatabasePath = errors.New("token_store.empty_database_path")

// recordKey is the fixed key the single token row is stored under.
const recordKey = "strava_token"

// DatabaseTokenStore persists the token record in a local SQLite database via GORM.
type DatabaseTokenStore struct {
	db *gorm.DB
}

type tokenRow struct {
	RecordKey    string `gorm:"column:record_key;primaryKey"`
	AccessToken  string `gorm:"column:access_token;not null"`
	RefreshToken string `gorm:"column:refresh_token;not null"`
	ExpiresUnix  int64  `gorm:"column:expires_unix;not null"`
	TokenType    string `gorm:"column:token_type;not null"`
}

func (tokenRow) TableName() string {
	return "strava_tokens"
}

// NewDatabaseTokenStore opens (and migrates) the SQLite database at path.
func NewDatabaseTokenStore(ctx context.Context, path string) (*DatabaseTokenStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("token_store.open: %w", errEmptyDatabasePath)
	}
	gormDB, openErr := gorm.Open(sqliteDialector.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("token_store.open: %w", openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&tokenRow{}); migrateErr != nil {
		return nil, fmt.Errorf("token_store.migrate: %w", migrateErr)
	}
	return &DatabaseTokenStore{db: gormDB}, nil
}

// Load returns the stored record, or ErrNoToken when the row is absent.
func (store *DatabaseTokenStore) Load(ctx context.Context) (TokenRecord, error) {
	var row tokenRow
	queryErr := store.db.WithContext(ctx).First(&row, "record_key = ?", recordKey).Error
	if queryErr != nil {
		if errors.Is(queryErr, gorm.ErrRecordNotFound) {
			return TokenRecord{}, ErrNoToken
		}
		return TokenRecord{}, fmt.Errorf("token_store.load: %w", queryErr)
	}
	return TokenRecord{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresAt:    row.ExpiresUnix,
		TokenType:    row.TokenType,
	}, nil
}

// Save overwrites the stored record wholesale.
func (store *DatabaseTokenStore) Save(ctx context.Context, record TokenRecord) error {
	if !record.complete() {
		return ErrPartialRecord
	}
	row := tokenRow{
		RecordKey:    recordKey,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresUnix:  record.ExpiresAt,
		TokenType:    record.TokenType,
	}
	saveErr := store.db.WithContext(ctx).Save(&row).Error
	if saveErr != nil {
		return fmt.Errorf("token_store.save: %w", saveErr)
	}
	return nil
}

// Clear deletes the stored record. Clearing an absent record is not an error.
func (store *DatabaseTokenStore) Clear(ctx context.Context) error {
	deleteErr := store.db.WithContext(ctx).Delete(&tokenRow{}, "record_key = ?", recordKey).Error
	if deleteErr != nil {
		return fmt.Errorf("token_store.clear: %w", deleteErr)
	}
	return nil
}
