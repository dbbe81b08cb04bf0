// Package pipeline turns a deck into a narrated video: narration, timeline,
// mix, record and deliver, emitting progress events as each stage advances.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/clock"
	"slidecast/packages/backend/delivery"
	"slidecast/packages/backend/narration"
	"slidecast/packages/backend/postgres"
	"slidecast/packages/backend/recorder"
	"slidecast/packages/backend/render"
	"slidecast/packages/backend/slide"
	"slidecast/packages/backend/status"
	"slidecast/packages/backend/timeline"
)

// DefaultMaxDurationMs bounds the combined audio buffer to one hour.
const DefaultMaxDurationMs int64 = 60 * 60 * 1000

// Config tunes an Exporter.
type Config struct {
	SampleRate int
	// MaxDurationMs bounds the presentation length; zero means unbounded.
	MaxDurationMs int64
	Timeline      timeline.Options
	Render        render.Options
	FPS           int
	Container     string
	// Language is given to decks that do not name one.
	Language string
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SampleRate:    audio.DefaultSampleRate,
		MaxDurationMs: DefaultMaxDurationMs,
		Timeline:      timeline.DefaultOptions(),
		Render:        render.DefaultOptions(),
		FPS:           recorder.DefaultFPS,
		Container:     recorder.DefaultContainer,
		Language:      slide.DefaultLanguage,
	}
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock sets the clock driving recordings.
func WithClock(c clock.Clock) Option {
	return func(e *Exporter) { e.clock = c }
}

// WithPublisher sets where progress events go.
func WithPublisher(p status.Publisher) Option {
	return func(e *Exporter) { e.publisher = p }
}

// WithHistory records every export in store.
func WithHistory(store postgres.Store) Option {
	return func(e *Exporter) { e.history = store }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(e *Exporter) { e.logger = logger }
}

// Exporter runs exports. It is safe for concurrent use; the narration cache
// is the only state shared between exports.
type Exporter struct {
	cache     *narration.Cache
	encoder   recorder.Encoder
	cfg       Config
	clock     clock.Clock
	publisher status.Publisher
	history   postgres.Store
	logger    *zap.SugaredLogger
	now       func() time.Time
}

// NewExporter creates an Exporter.
func NewExporter(cache *narration.Cache, encoder recorder.Encoder, cfg Config, opts ...Option) *Exporter {
	e := &Exporter{
		cache:   cache,
		encoder: encoder,
		cfg:     cfg,
		clock:   clock.RealClock{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop().Sugar()
	}
	if e.publisher == nil {
		e.publisher = status.NewLogPublisher(e.logger)
	}
	if e.cfg.SampleRate <= 0 {
		e.cfg.SampleRate = audio.DefaultSampleRate
	}
	if e.cfg.Container == "" {
		e.cfg.Container = recorder.DefaultContainer
	}
	if e.cfg.Language == "" {
		e.cfg.Language = slide.DefaultLanguage
	}
	return e
}

// NewExportID returns a fresh export identifier.
func NewExportID() string {
	return uuid.NewString()
}

// Narration is the narration outcome of one slide.
type Narration struct {
	SlideIndex int    `json:"slideIndex"`
	SlideID    string `json:"slideId"`
	Text       string `json:"text"`
	DurationMs int64  `json:"durationMs"`
	// Narrated is false for slides with nothing to say.
	Narrated  bool `json:"narrated"`
	Estimated bool `json:"estimated,omitempty"`

	Clip *audio.Buffer `json:"-"`
}

// Plan is everything an export needs before recording starts.
type Plan struct {
	ExportID   string
	Deck       slide.Deck
	Narrations []Narration
	Timeline   timeline.Timeline
	Audio      *audio.Buffer
}

// Result describes a finished export.
type Result struct {
	ExportID   string           `json:"exportId"`
	Receipt    delivery.Receipt `json:"receipt"`
	DurationMs int64            `json:"durationMs"`
	Slides     int              `json:"slides"`
}

// Narrate fetches the narration of every slide in order. A slide whose
// synthesis fails stays silent with an estimated duration.
func (e *Exporter) Narrate(ctx context.Context, exportID string, deck slide.Deck) ([]Narration, error) {
	e.emit(ctx, exportID, status.StageNarration, status.StateRunning, "")

	total := len(deck.Slides)
	out := make([]Narration, total)
	for i, s := range deck.Slides {
		if err := ctx.Err(); err != nil {
			return nil, e.fail(ctx, exportID, status.StageNarration, err)
		}
		e.emit(ctx, exportID, status.StageNarration, status.StateRunning,
			fmt.Sprintf("generating audio for slide %d/%d", i+1, total))

		n := Narration{SlideIndex: i, SlideID: s.ID, Text: narration.BuildText(s)}
		entry, err := e.cache.GetOrFetch(ctx, s, s.VoiceGender, deck.Language)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, e.fail(ctx, exportID, status.StageNarration, ctxErr)
			}
			e.logger.Warnw("narration synthesis failed, slide stays silent",
				"error", err,
				"exportID", exportID,
				"slide", i+1,
			)
			n.Narrated = true
			n.Estimated = true
			n.DurationMs = narration.EstimateDurationMs(n.Text)
		case entry == nil:
		default:
			n.Narrated = true
			n.Estimated = entry.Estimated
			n.DurationMs = entry.DurationMs
			clip, err := e.cache.ClipFor(ctx, entry)
			if err != nil {
				e.logger.Warnw("narration clip unavailable, slide stays silent",
					"error", err,
					"exportID", exportID,
					"slide", i+1,
				)
			}
			n.Clip = clip
		}
		out[i] = n
	}

	e.emit(ctx, exportID, status.StageNarration, status.StateCompleted, fmt.Sprintf("%d slides", total))
	return out, nil
}

// Prepare narrates deck, lays out the timeline and mixes the combined audio.
func (e *Exporter) Prepare(ctx context.Context, exportID string, deck slide.Deck) (*Plan, error) {
	narrations, err := e.Narrate(ctx, exportID, deck)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, exportID, status.StageTimeline, status.StateRunning, "")
	tl, err := ComposeTimeline(narrations, e.cfg.Timeline)
	if err != nil {
		return nil, e.fail(ctx, exportID, status.StageTimeline, err)
	}
	e.emit(ctx, exportID, status.StageTimeline, status.StateCompleted, fmt.Sprintf("%dms", tl.TotalMs))

	e.emit(ctx, exportID, status.StageMix, status.StateRunning, "")
	clips := make([]*audio.Buffer, len(narrations))
	for i, n := range narrations {
		clips[i] = n.Clip
	}
	opts := audio.MixOptions{SampleRate: e.cfg.SampleRate}
	if e.cfg.MaxDurationMs > 0 {
		opts.MaxFrames = audio.FramesFor(e.cfg.MaxDurationMs, e.cfg.SampleRate)
	}
	buf, err := audio.Mix(clips, tl, opts)
	if err != nil {
		return nil, e.fail(ctx, exportID, status.StageMix, err)
	}
	e.emit(ctx, exportID, status.StageMix, status.StateCompleted, fmt.Sprintf("%d frames", buf.Frames()))

	return &Plan{
		ExportID:   exportID,
		Deck:       deck,
		Narrations: narrations,
		Timeline:   tl,
		Audio:      buf,
	}, nil
}

// ComposeTimeline lays out narrations on a timeline.
func ComposeTimeline(narrations []Narration, opts timeline.Options) (timeline.Timeline, error) {
	units := make([]timeline.Unit, len(narrations))
	for i, n := range narrations {
		units[i] = timeline.Unit{DurationMs: n.DurationMs, Narrated: n.Narrated}
	}
	return timeline.Compose(units, opts)
}

// Export runs the whole pipeline for deck and hands the video to sink.
// An empty exportID gets a fresh one.
func (e *Exporter) Export(ctx context.Context, exportID string, deck slide.Deck, sink delivery.Sink) (*Result, error) {
	if exportID == "" {
		exportID = NewExportID()
	}

	rec := &postgres.ExportRecord{
		ID:       exportID,
		Subject:  deck.Subject,
		Language: deck.Language,
		Slides:   len(deck.Slides),
		State:    postgres.StateRunning,
	}
	e.record(ctx, rec, true)

	result, err := e.export(ctx, exportID, deck, sink)
	if err != nil {
		rec.State = postgres.StateFailed
		rec.Error = err.Error()
		e.record(context.WithoutCancel(ctx), rec, false)
		return nil, err
	}

	rec.State = postgres.StateCompleted
	rec.DurationMs = result.DurationMs
	rec.FileName = result.Receipt.Name
	rec.Location = result.Receipt.Location
	rec.Size = result.Receipt.Size
	e.record(ctx, rec, false)
	return result, nil
}

func (e *Exporter) export(ctx context.Context, exportID string, deck slide.Deck, sink delivery.Sink) (*Result, error) {
	plan, err := e.Prepare(ctx, exportID, deck)
	if err != nil {
		return nil, err
	}

	data, err := e.Record(ctx, plan)
	if err != nil {
		return nil, err
	}

	e.emit(ctx, exportID, status.StageDeliver, status.StateRunning, "")
	name := delivery.FileName(deck.Subject, e.now(), e.cfg.Container)
	receipt, err := sink.Deliver(ctx, name, data)
	if err != nil {
		return nil, e.fail(ctx, exportID, status.StageDeliver, err)
	}
	e.emit(ctx, exportID, status.StageDeliver, status.StateCompleted, receipt.Name)

	return &Result{
		ExportID:   exportID,
		Receipt:    receipt,
		DurationMs: plan.Timeline.TotalMs,
		Slides:     len(deck.Slides),
	}, nil
}

// Record paints and plays plan in real time and returns the encoded video.
func (e *Exporter) Record(ctx context.Context, plan *Plan) ([]byte, error) {
	exportID := plan.ExportID
	e.emit(ctx, exportID, status.StageRecord, status.StateRunning, "")

	renderer, err := render.New(e.cfg.Render, e.logger)
	if err != nil {
		return nil, e.fail(ctx, exportID, status.StageRecord, err)
	}
	renderer.Preload(ctx, plan.Deck.Slides)

	scene, err := render.NewScene(renderer, plan.Deck.Slides, plan.Timeline)
	if err != nil {
		return nil, e.fail(ctx, exportID, status.StageRecord, err)
	}

	rec := recorder.New(e.encoder, e.clock, recorder.Options{
		FPS:       e.cfg.FPS,
		Container: e.cfg.Container,
		OnState: func(s recorder.State) {
			e.emit(ctx, exportID, status.StageRecord, status.StateRunning, s.String())
		},
	}, e.logger)

	data, err := rec.Record(ctx, scene, plan.Audio)
	if err != nil {
		return nil, e.fail(ctx, exportID, status.StageRecord, err)
	}
	e.emit(ctx, exportID, status.StageRecord, status.StateCompleted, fmt.Sprintf("%d bytes", len(data)))
	return data, nil
}

// Config returns the exporter settings.
func (e *Exporter) Config() Config {
	return e.cfg
}

// History returns the configured export history, if any.
func (e *Exporter) History() postgres.Store {
	return e.history
}

func (e *Exporter) record(ctx context.Context, rec *postgres.ExportRecord, create bool) {
	if e.history == nil {
		return
	}
	var err error
	if create {
		// Queued exports already have a record.
		if err = e.history.Create(ctx, rec); errors.Is(err, postgres.ErrExportExists) {
			err = e.history.Update(ctx, rec)
		}
	} else {
		err = e.history.Update(ctx, rec)
	}
	if err != nil {
		e.logger.Warnw("failed to record export", "error", err, "exportID", rec.ID)
	}
}

func (e *Exporter) emit(ctx context.Context, exportID, stage, state, detail string) {
	event := status.ExportEvent{
		ExportID:  exportID,
		Stage:     stage,
		State:     state,
		Detail:    detail,
		Timestamp: e.now().UTC(),
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warnw("failed to publish export status", "error", err, "exportID", exportID, "stage", stage)
	}
}

func (e *Exporter) fail(ctx context.Context, exportID, stage string, err error) error {
	e.emit(ctx, exportID, stage, status.StateFailed, err.Error())
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", stage, err)
}
