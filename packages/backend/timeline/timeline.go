// Package timeline schedules slides on a contiguous, non-overlapping time line.
package timeline

import (
	"errors"
	"fmt"
)

const (
	// DefaultGapMs is the pause kept on screen after each narration.
	DefaultGapMs int64 = 2000
	// DefaultFallbackMs is the on-screen time of a slide without narration.
	DefaultFallbackMs int64 = 3000
)

// ErrEmpty is returned when there is nothing to schedule.
var ErrEmpty = errors.New("timeline: no slides to schedule")

// Unit is the resolved narration of one slide.
type Unit struct {
	DurationMs int64
	// Narrated is false when the slide has no speakable text.
	Narrated bool
}

// Options tunes the composer.
type Options struct {
	GapMs      int64
	FallbackMs int64
}

// DefaultOptions returns the standard gap and fallback floor.
func DefaultOptions() Options {
	return Options{GapMs: DefaultGapMs, FallbackMs: DefaultFallbackMs}
}

// Entry is the on-screen interval of one slide.
type Entry struct {
	SlideIndex int   `json:"slideIndex"`
	StartMs    int64 `json:"startMs"`
	DurationMs int64 `json:"durationMs"`
}

// EndMs is the exclusive end of the interval.
func (e Entry) EndMs() int64 { return e.StartMs + e.DurationMs }

// Timeline is the ordered schedule of a presentation.
type Timeline struct {
	Entries []Entry `json:"entries"`
	TotalMs int64   `json:"totalMs"`
}

// Compose lays units out back to back in slide order.
func Compose(units []Unit, opts Options) (Timeline, error) {
	if len(units) == 0 {
		return Timeline{}, ErrEmpty
	}
	if opts.GapMs < 0 || opts.FallbackMs < 0 {
		return Timeline{}, fmt.Errorf("timeline: negative gap %d or fallback %d", opts.GapMs, opts.FallbackMs)
	}

	entries := make([]Entry, len(units))
	var start int64
	for i, u := range units {
		if u.DurationMs < 0 {
			return Timeline{}, fmt.Errorf("timeline: slide %d has negative duration %d", i, u.DurationMs)
		}
		dur := opts.FallbackMs
		if u.Narrated {
			dur = u.DurationMs + opts.GapMs
		}
		entries[i] = Entry{SlideIndex: i, StartMs: start, DurationMs: dur}
		start += dur
	}

	return Timeline{Entries: entries, TotalMs: start}, nil
}

// At returns the index of the entry showing at elapsedMs. Offsets before
// zero map to the first entry and offsets past the end to the last.
func (t Timeline) At(elapsedMs int64) int {
	if len(t.Entries) == 0 {
		return -1
	}
	lo, hi := 0, len(t.Entries)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.Entries[mid].StartMs <= elapsedMs {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
