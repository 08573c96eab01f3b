package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/itohio/gopulse/pkg/hrv"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// latestID is the primary key of the single "latest" row.
const latestID = 1

// SnapshotRow holds the columns shared by both tables.
type SnapshotRow struct {
	SessionID   string `gorm:"size:36"`
	CompletedAt time.Time
	Beats       int
	MeanHR      int
	MeanPPI     int
	RMSSD       int
	SDNN        int
}

// Latest is the overwrite-on-save record read back by Load.
type Latest struct {
	ID          uint `gorm:"primaryKey"`
	SnapshotRow `gorm:"embedded"`
}

// Archived is an append-only log of every saved snapshot.
type Archived struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	SnapshotRow `gorm:"embedded"`
}

// TableName overrides the gorm default.
func (Latest) TableName() string { return "latest_snapshot" }

// TableName overrides the gorm default.
func (Archived) TableName() string { return "snapshots" }

func rowFrom(s hrv.Snapshot) SnapshotRow {
	return SnapshotRow{
		SessionID:   s.SessionID,
		CompletedAt: s.Time,
		Beats:       s.Beats,
		MeanHR:      s.MeanHR,
		MeanPPI:     s.MeanPPI,
		RMSSD:       s.RMSSD,
		SDNN:        s.SDNN,
	}
}

func (r SnapshotRow) snapshot() hrv.Snapshot {
	return hrv.Snapshot{
		SessionID: r.SessionID,
		Time:      r.CompletedAt,
		Beats:     r.Beats,
		MeanHR:    r.MeanHR,
		MeanPPI:   r.MeanPPI,
		RMSSD:     r.RMSSD,
		SDNN:      r.SDNN,
	}
}

// SQLStore keeps the latest snapshot in SQLite and archives every save.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQL opens (or creates) the SQLite database at path and migrates it.
func OpenSQL(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	if err := db.AutoMigrate(&Latest{}, &Archived{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Save overwrites the latest row and appends to the archive in one transaction.
func (s *SQLStore) Save(ctx context.Context, snap hrv.Snapshot) error {
	row := rowFrom(snap)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(&Latest{ID: latestID, SnapshotRow: row}).Error; err != nil {
			return err
		}
		return tx.Create(&Archived{SnapshotRow: row}).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the latest snapshot.
func (s *SQLStore) Load(ctx context.Context) (hrv.Snapshot, bool, error) {
	var rec Latest
	err := s.db.WithContext(ctx).First(&rec, latestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return hrv.Snapshot{}, false, nil
	}
	if err != nil {
		return hrv.Snapshot{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return rec.snapshot(), true, nil
}

// List returns up to limit archived snapshots, newest first.
func (s *SQLStore) List(ctx context.Context, limit int) ([]hrv.Snapshot, error) {
	var rows []Archived
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	out := make([]hrv.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.snapshot())
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
