// Package status carries export progress events to whoever is watching.
package status

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Stages of an export, in order.
const (
	StageNarration = "narration"
	StageTimeline  = "timeline"
	StageMix       = "mix"
	StageRecord    = "record"
	StageDeliver   = "deliver"
)

// States of a stage.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// ExportEvent represents a progress update for one export.
type ExportEvent struct {
	ExportID  string    `json:"exportId"`
	Stage     string    `json:"stage"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event ExportEvent) error
}

// LogPublisher writes events to the structured log.
type LogPublisher struct {
	logger *zap.SugaredLogger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.SugaredLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, event ExportEvent) error {
	log := p.logger.Infow
	if event.State == StateFailed {
		log = p.logger.Warnw
	}
	log("export status",
		"exportID", event.ExportID,
		"stage", event.Stage,
		"state", event.State,
		"detail", event.Detail,
	)
	return nil
}

// Fanout publishes to every publisher and returns the first error.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, event ExportEvent) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func channelName(exportID string) string {
	return "slidecast:export:" + exportID + ":status"
}
