package customer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrRecordNotFound is returned when no customer matches the lookup key.
var ErrRecordNotFound = errors.New("customer record not found")

// Record is one persisted customer. Data holds the full creation request
// as JSON; the external key column exists for duplicate detection.
type Record struct {
	CustomerKey string `gorm:"column:customer_key;primaryKey"`
	ExternalKey string `gorm:"column:external_key;uniqueIndex"`
	Data        string `gorm:"column:data"`
}

// TableName maps Record to the customers table.
func (Record) TableName() string {
	return "customers"
}

// Store persists customer records in an embedded SQLite database.
type Store struct {
	db *gorm.DB
}

// NewStore opens (or creates) the database at path and migrates the
// customers table.
func NewStore(path string, maxOpenConns int) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate customers table: %w", err)
	}

	return &Store{db: db}, nil
}

// Create inserts a new customer record.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

// GetByExternalKey retrieves a record by its external (national) key.
func (s *Store) GetByExternalKey(ctx context.Context, externalKey string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("external_key = ?", externalKey).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
