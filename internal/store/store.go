package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"github.com/gmsas95/medtracker/internal/config"
	apperrors "github.com/gmsas95/medtracker/internal/errors"
	"github.com/gmsas95/medtracker/internal/schedule"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store keeps medications in SQLite and small expiring flags in BadgerDB.
type Store struct {
	db     *gorm.DB
	badger *badger.DB
}

// New opens the SQLite and Badger files named by cfg.
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "medtracker.db")
	}
	db, err := openSQLite(sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", 10)
	if err != nil {
		return nil, err
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}
	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return Open(db, badgerDB)
}

// NewMemory opens a throwaway store. Used by tests and dry runs.
func NewMemory() (*Store, error) {
	// A single connection keeps every query on the same in-memory database.
	db, err := openSQLite(":memory:", 1)
	if err != nil {
		return nil, err
	}
	badgerDB, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return Open(db, badgerDB)
}

// Open wraps already opened databases and migrates the schema.
func Open(db *gorm.DB, badgerDB *badger.DB) (*Store, error) {
	if err := db.AutoMigrate(&MedicationRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return &Store{db: db, badger: badgerDB}, nil
}

func openSQLite(dsn string, maxConns int) (*gorm.DB, error) {
	sqliteDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqliteDB.SetMaxOpenConns(maxConns)
	sqliteDB.SetMaxIdleConns(maxConns)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return db, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	var errs []error
	if sqlDB, err := s.db.DB(); err == nil {
		errs = append(errs, sqlDB.Close())
	}
	if s.badger != nil {
		errs = append(errs, s.badger.Close())
	}
	return errors.Join(errs...)
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// ==================== Medication Methods (SQLite) ====================

// List returns the user's medications, newest first.
func (s *Store) List(ctx context.Context, userID string) ([]schedule.Medication, error) {
	var records []MedicationRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "list medications")
	}

	meds := make([]schedule.Medication, 0, len(records))
	for i := range records {
		m, err := records[i].toMedication()
		if err != nil {
			return nil, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "read medication %s", records[i].ID)
		}
		meds = append(meds, m)
	}
	return meds, nil
}

// Count returns how many medications the user has.
func (s *Store) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&MedicationRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "count medications")
	}
	return n, nil
}

func (s *Store) Get(ctx context.Context, id string) (*schedule.Medication, error) {
	var rec MedicationRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, mapErr(err, "get", id)
	}
	m, err := rec.toMedication()
	if err != nil {
		return nil, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "read medication %s", id)
	}
	return &m, nil
}

// Create inserts med and returns the stored copy with id and timestamps set.
func (s *Store) Create(ctx context.Context, med *schedule.Medication) (*schedule.Medication, error) {
	rec, err := toRecord(med)
	if err != nil {
		return nil, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "encode medication %q", med.Name)
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "create medication %q", med.Name)
	}
	m, err := rec.toMedication()
	if err != nil {
		return nil, apperrors.ExternalIO(apperrors.CodeStoreIO, err, "read medication %s", rec.ID)
	}
	return &m, nil
}

// Update applies patch to the stored row and returns the result.
func (s *Store) Update(ctx context.Context, id string, patch schedule.Patch) (*schedule.Medication, error) {
	return s.modify(ctx, id, "update", patch.Apply)
}

// SetTaken replaces the taken map of the stored row.
func (s *Store) SetTaken(ctx context.Context, id string, taken schedule.TakenMap) (*schedule.Medication, error) {
	return s.modify(ctx, id, "update taken of", func(m schedule.Medication) schedule.Medication {
		m.Taken = taken
		return m
	})
}

func (s *Store) modify(ctx context.Context, id, op string, change func(schedule.Medication) schedule.Medication) (*schedule.Medication, error) {
	var updated schedule.Medication
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec MedicationRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		current, err := rec.toMedication()
		if err != nil {
			return err
		}
		updated = change(current)

		next, err := toRecord(&updated)
		if err != nil {
			return err
		}
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		updated.UpdatedAt = next.UpdatedAt
		return nil
	})
	if err != nil {
		return nil, mapErr(err, op, id)
	}
	return &updated, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&MedicationRecord{}, "id = ?", id)
	if res.Error != nil {
		return mapErr(res.Error, "delete", id)
	}
	if res.RowsAffected == 0 {
		return apperrors.NotFound("medication %s not found", id)
	}
	return nil
}

func mapErr(err error, op, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound("medication %s not found", id)
	}
	return apperrors.ExternalIO(apperrors.CodeStoreIO, err, "%s medication %s", op, id)
}

// ==================== Flag Methods (BadgerDB) ====================

// SetFlag records key for ttl. Used to remember which alerts were sent.
func (s *Store) SetFlag(key string, ttl time.Duration) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte("flag:"+key), []byte{1}).WithTTL(ttl)
		return txn.SetEntry(e)
	})
}

// HasFlag reports whether key was set and has not expired.
func (s *Store) HasFlag(key string) (bool, error) {
	err := s.badger.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("flag:" + key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}
