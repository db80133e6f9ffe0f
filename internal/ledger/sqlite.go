package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/compose-network/contract-deployer/internal/failure"
	"github.com/compose-network/contract-deployer/internal/logger"
	gormSQLite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type (
	SQLStore struct {
		db     *gorm.DB
		logger *slog.Logger
	}

	entryRecord struct {
		Network   string `gorm:"primaryKey"`
		Name      string `gorm:"primaryKey"`
		Kind      string
		Status    string `gorm:"index"`
		Address   string
		TxID      string
		Args      string
		Baseline  string
		Error     string
		RunID     string
		Attempts  int
		CreatedAt time.Time `gorm:"autoCreateTime"`
		UpdatedAt time.Time
	}
)

func (entryRecord) TableName() string { return "ledger_entries" }

// NewSQLStore opens (and migrates) the SQLite database at dsn.
func NewSQLStore(dsn string) (*SQLStore, error) {
	if dir := filepath.Dir(dsn); dir != "." && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, failure.LedgerIO("open", fmt.Errorf("failed to create ledger directory '%s': %w", dir, err))
		}
	}

	db, err := gorm.Open(gormSQLite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, failure.LedgerIO("open", fmt.Errorf("failed to open sqlite ledger: %w", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, failure.LedgerIO("open", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&entryRecord{}); err != nil {
		return nil, failure.LedgerIO("open", fmt.Errorf("failed to migrate ledger schema: %w", err))
	}

	return &SQLStore{
		db:     db,
		logger: logger.Named("ledger_sqlite"),
	}, nil
}

func (s *SQLStore) Get(ctx context.Context, network, name string) (Entry, bool, error) {
	var records []entryRecord
	err := s.db.WithContext(ctx).
		Where("network = ? AND name = ?", network, name).
		Limit(1).
		Find(&records).
		Error
	if err != nil {
		return Entry{}, false, failure.LedgerIO("get", err)
	}
	if len(records) == 0 {
		return Entry{}, false, nil
	}
	return records[0].toEntry(), true, nil
}

func (s *SQLStore) Put(ctx context.Context, entry Entry) error {
	record := fromEntry(entry)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "network"},
				{Name: "name"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"kind",
				"status",
				"address",
				"tx_id",
				"args",
				"baseline",
				"error",
				"run_id",
				"attempts",
				"updated_at",
			}),
		}).
		Create(&record).
		Error
	if err != nil {
		return failure.LedgerIO("put", err)
	}

	s.logger.
		With("network", entry.Network).
		With("name", entry.Name).
		With("status", entry.Status).
		Debug("ledger entry written")

	return nil
}

func (s *SQLStore) List(ctx context.Context, network string) ([]Entry, error) {
	var records []entryRecord
	err := s.db.WithContext(ctx).
		Where("network = ?", network).
		Order("created_at, name").
		Find(&records).
		Error
	if err != nil {
		return nil, failure.LedgerIO("list", err)
	}

	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.toEntry())
	}
	return entries, nil
}

func (s *SQLStore) Reset(ctx context.Context, network, name string) error {
	result := s.db.WithContext(ctx).
		Where("network = ? AND name = ?", network, name).
		Delete(&entryRecord{})
	if result.Error != nil {
		return failure.LedgerIO("reset", result.Error)
	}
	if result.RowsAffected == 0 {
		return failure.LedgerIO("reset", fmt.Errorf("%w: '%s' on network '%s'", ErrEntryNotFound, name, network))
	}
	return nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromEntry(e Entry) entryRecord {
	return entryRecord{
		Network:   e.Network,
		Name:      e.Name,
		Kind:      string(e.Kind),
		Status:    string(e.Status),
		Address:   e.Address,
		TxID:      e.TxID,
		Args:      string(e.Args),
		Baseline:  e.Baseline,
		Error:     e.Error,
		RunID:     e.RunID,
		Attempts:  e.Attempts,
		UpdatedAt: e.UpdatedAt,
	}
}

func (r entryRecord) toEntry() Entry {
	e := Entry{
		Network:   r.Network,
		Name:      r.Name,
		Kind:      Kind(r.Kind),
		Status:    Status(r.Status),
		Address:   r.Address,
		TxID:      r.TxID,
		Baseline:  r.Baseline,
		Error:     r.Error,
		RunID:     r.RunID,
		Attempts:  r.Attempts,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Args != "" {
		e.Args = json.RawMessage(r.Args)
	}
	return e
}
