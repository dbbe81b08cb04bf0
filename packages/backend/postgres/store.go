// Package postgres keeps the export history.
package postgres

import (
	"context"
	"errors"
	"time"
)

var (
	ErrExportExists   = errors.New("export already exists")
	ErrExportNotFound = errors.New("export not found")
)

// Export states recorded in the history.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ExportRecord is one row of the export history.
type ExportRecord struct {
	ID         string    `gorm:"primaryKey;type:text" json:"id"`
	Subject    string    `gorm:"not null" json:"subject"`
	Language   string    `gorm:"not null" json:"language"`
	Slides     int       `gorm:"not null" json:"slides"`
	DurationMs int64     `json:"durationMs"`
	FileName   string    `json:"fileName,omitempty"`
	Location   string    `json:"location,omitempty"`
	Size       int       `json:"size,omitempty"`
	State      string    `gorm:"not null;index" json:"state"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName implements gorm's tabler.
func (ExportRecord) TableName() string {
	return "exports"
}

// Store persists export records.
type Store interface {
	Create(ctx context.Context, rec *ExportRecord) error
	Update(ctx context.Context, rec *ExportRecord) error
	Get(ctx context.Context, id string) (*ExportRecord, error)
	List(ctx context.Context, limit int) ([]ExportRecord, error)
}

const defaultListLimit = 50

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
