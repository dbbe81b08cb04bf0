package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore keeps the history in PostgreSQL.
type GormStore struct {
	db *gorm.DB
}

// Open connects to databaseURL and migrates the exports table.
func Open(ctx context.Context, databaseURL string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&ExportRecord{}); err != nil {
		return nil, fmt.Errorf("migrate exports: %w", err)
	}
	return NewGormStore(db), nil
}

// NewGormStore wraps an open connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Create implements Store.
func (s *GormStore) Create(ctx context.Context, rec *ExportRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrExportExists
		}
		return err
	}
	return nil
}

// Update implements Store.
func (s *GormStore) Update(ctx context.Context, rec *ExportRecord) error {
	res := s.db.WithContext(ctx).Model(rec).Select("*").Omit("created_at").Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrExportNotFound
	}
	return nil
}

// Get implements Store.
func (s *GormStore) Get(ctx context.Context, id string) (*ExportRecord, error) {
	var rec ExportRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExportNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// List implements Store, newest first.
func (s *GormStore) List(ctx context.Context, limit int) ([]ExportRecord, error) {
	recs := make([]ExportRecord, 0)
	if err := listQuery(s.db.WithContext(ctx), limit).Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

func listQuery(tx *gorm.DB, limit int) *gorm.DB {
	return tx.Model(&ExportRecord{}).Order("created_at DESC").Limit(normalizeLimit(limit))
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
