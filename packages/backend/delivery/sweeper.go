package delivery

import (
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper deletes delivered files older than the retention period.
type Sweeper struct {
	dir       string
	retention time.Duration
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewSweeper creates a sweeper over dir.
func NewSweeper(dir string, retention time.Duration, logger *zap.SugaredLogger) *Sweeper {
	return &Sweeper{dir: dir, retention: retention, logger: logger, now: time.Now}
}

// Sweep removes expired files, abandoned temporaries included, and reports
// how many were deleted.
func (s *Sweeper) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warnw("failed to remove expired export", "error", err, "path", path)
			continue
		}
		removed++
	}
	return removed, nil
}

// Schedule registers the sweep on c with a cron spec such as "@every 1h".
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		removed, err := s.Sweep()
		if err != nil {
			s.logger.Errorw("export sweep failed", "error", err, "dir", s.dir)
			return
		}
		if removed > 0 {
			s.logger.Infow("expired exports removed", "count", removed, "dir", s.dir)
		}
	})
}
