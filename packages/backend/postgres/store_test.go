package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	rec := &ExportRecord{ID: "a", Subject: "Tides", Language: "en", Slides: 3, State: StateRunning}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if err := store.Create(ctx, &ExportRecord{ID: "a"}); !errors.Is(err, ErrExportExists) {
		t.Fatalf("expected ErrExportExists, got %v", err)
	}

	rec.State = StateCompleted
	rec.FileName = "tides-1.mp4"
	rec.DurationMs = 19000
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != StateCompleted || got.FileName != "tides-1.mp4" || got.DurationMs != 19000 {
		t.Errorf("unexpected record %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("expected ErrExportNotFound, got %v", err)
	}
	if err := store.Update(ctx, &ExportRecord{ID: "missing"}); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("expected ErrExportNotFound on update, got %v", err)
	}
}

func TestMemoryStore_ListNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i, id := range []string{"first", "second", "third"} {
		rec := &ExportRecord{ID: id, State: StateCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	recs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "third" || recs[1].ID != "second" {
		t.Errorf("unexpected order: %+v", recs)
	}

	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected default limit to return all, got %d", len(all))
	}
}

func TestListQuery(t *testing.T) {
	t.Parallel()

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=slidecast dbname=slidecast sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open dry-run connection: %v", err)
	}

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var recs []ExportRecord
		return listQuery(tx, 0).Find(&recs)
	})
	for _, want := range []string{`FROM "exports"`, "ORDER BY created_at DESC", "LIMIT 50"} {
		if !strings.Contains(sql, want) {
			t.Errorf("expected %q in %s", want, sql)
		}
	}
}

func TestGormStore_Postgres(t *testing.T) {
	dsn := os.Getenv("SLIDECAST_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SLIDECAST_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer store.Close()

	id := uuid.NewString()
	rec := &ExportRecord{ID: id, Subject: "Integration", Language: "en", Slides: 1, State: StateRunning}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, &ExportRecord{ID: id, Subject: "dup", Language: "en", State: StateRunning}); !errors.Is(err, ErrExportExists) {
		t.Fatalf("expected ErrExportExists, got %v", err)
	}

	rec.State = StateFailed
	rec.Error = "recorder: could not acquire stream"
	if err := store.Update(ctx, rec); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.State != StateFailed || got.Error == "" {
		t.Errorf("unexpected record %+v", got)
	}

	if _, err := store.Get(ctx, uuid.NewString()); !errors.Is(err, ErrExportNotFound) {
		t.Errorf("expected ErrExportNotFound, got %v", err)
	}
}
