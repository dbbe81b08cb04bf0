package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrDelivery marks a failure to hand the finished file to the user.
var ErrDelivery = errors.New("delivery failed")

// Receipt describes a delivered file.
type Receipt struct {
	Name     string `json:"name"`
	Location string `json:"location"`
	Size     int    `json:"size"`
}

// Sink receives finished exports. Errors wrap ErrDelivery and the data is
// not retried.
type Sink interface {
	Deliver(ctx context.Context, name string, data []byte) (Receipt, error)
}

// FileSink writes exports into a directory. Files appear atomically.
type FileSink struct {
	Dir string
}

// NewFileSink creates a FileSink for dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Deliver implements Sink.
func (s *FileSink) Deliver(ctx context.Context, name string, data []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if name == "" || filepath.Base(name) != name {
		return Receipt{}, fmt.Errorf("%w: invalid file name %q", ErrDelivery, name)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	tmp, err := os.CreateTemp(s.Dir, ".export-*")
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return Receipt{}, fmt.Errorf("%w: write: %v", ErrDelivery, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return Receipt{}, fmt.Errorf("%w: close: %v", ErrDelivery, err)
	}

	dest := filepath.Join(s.Dir, name)
	if err := os.Rename(tmpName, dest); err != nil {
		cleanup()
		return Receipt{}, fmt.Errorf("%w: rename: %v", ErrDelivery, err)
	}
	return Receipt{Name: name, Location: dest, Size: len(data)}, nil
}
