package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"slidecast/packages/backend/delivery"
	"slidecast/packages/backend/di"
	"slidecast/packages/backend/pipeline"
	"slidecast/packages/backend/postgres"
	queuepkg "slidecast/packages/backend/queue"
	"slidecast/packages/backend/slide"
)

type stubConsumer struct {
	mu   sync.Mutex
	jobs []*queuepkg.ExportJob
	errs []error
}

func (c *stubConsumer) Pop(ctx context.Context, _ time.Duration) (*queuepkg.ExportJob, error) {
	c.mu.Lock()
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		c.mu.Unlock()
		return nil, err
	}
	if len(c.jobs) > 0 {
		job := c.jobs[0]
		c.jobs = c.jobs[1:]
		c.mu.Unlock()
		return job, nil
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

type recordingExporter struct {
	mu        sync.Mutex
	ids       []string
	languages []string
	err       error
}

func (e *recordingExporter) Export(_ context.Context, exportID string, deck slide.Deck, _ delivery.Sink) (*pipeline.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, exportID)
	e.languages = append(e.languages, deck.Language)
	if e.err != nil {
		return nil, e.err
	}
	return &pipeline.Result{ExportID: exportID, Slides: len(deck.Slides)}, nil
}

func (e *recordingExporter) exported() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.ids...)
}

func runUntil(t *testing.T, p *exportProcessor, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			cancel()
			<-done
			t.Fatal("timed out waiting for the worker")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestExportProcessor_RunsQueuedJobs(t *testing.T) {
	t.Parallel()

	deck := slide.Deck{Subject: "Queued", Slides: []slide.Slide{{Title: "One"}}}
	consumer := &stubConsumer{
		errs: []error{errors.New("connection reset")},
		jobs: []*queuepkg.ExportJob{
			{ExportID: "bad", Deck: slide.Deck{}},
			{ExportID: "job-1", Deck: deck, EnqueuedAt: time.Now()},
		},
	}
	exporter := &recordingExporter{}
	p := &exportProcessor{
		consumer:    consumer,
		exporter:    exporter,
		pollTimeout: 10 * time.Millisecond,
		logger:      zaptest.NewLogger(t).Sugar(),
	}

	runUntil(t, p, func() bool { return len(exporter.exported()) == 1 })

	if got := exporter.exported(); got[0] != "job-1" {
		t.Errorf("expected job-1 to be exported, got %v", got)
	}
}

func TestExportProcessor_RejectedJobMarkedFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	history := postgres.NewMemoryStore()
	if err := history.Create(ctx, &postgres.ExportRecord{ID: "bad", State: postgres.StateQueued}); err != nil {
		t.Fatal(err)
	}

	deck := slide.Deck{Subject: "Fine", Slides: []slide.Slide{{Title: "One"}}}
	consumer := &stubConsumer{jobs: []*queuepkg.ExportJob{
		{ExportID: "bad", Deck: slide.Deck{Subject: "Empty"}},
		{ExportID: "unknown", Deck: slide.Deck{Subject: "Empty"}},
		{ExportID: "good", Deck: deck},
	}}
	exporter := &recordingExporter{}
	p := &exportProcessor{
		consumer: consumer,
		exporter: exporter,
		history:  history,
		language: "ar",
		logger:   zaptest.NewLogger(t).Sugar(),
	}

	runUntil(t, p, func() bool { return len(exporter.exported()) == 1 })

	for _, id := range []string{"bad", "unknown"} {
		rec, err := history.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if rec.State != postgres.StateFailed || rec.Error == "" {
			t.Errorf("%s: expected failed record with an error, got %+v", id, rec)
		}
	}

	exporter.mu.Lock()
	defer exporter.mu.Unlock()
	if exporter.languages[0] != "ar" {
		t.Errorf("expected configured default language, got %q", exporter.languages[0])
	}
}

func TestExportProcessor_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	deck := slide.Deck{Subject: "Retry", Slides: []slide.Slide{{Title: "One"}}}
	consumer := &stubConsumer{jobs: []*queuepkg.ExportJob{
		{ExportID: "a", Deck: deck},
		{ExportID: "b", Deck: deck},
	}}
	exporter := &recordingExporter{err: errors.New("recorder: could not acquire stream")}
	p := &exportProcessor{consumer: consumer, exporter: exporter, logger: zaptest.NewLogger(t).Sugar()}

	runUntil(t, p, func() bool { return len(exporter.exported()) == 2 })
}

func TestExportProcessor_WritesVideoFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := di.NewTestContainer()
	deck := slide.Deck{Subject: "Worker Output", Slides: []slide.Slide{{Title: "Hello"}}}
	consumer := &stubConsumer{jobs: []*queuepkg.ExportJob{{ExportID: "real", Deck: deck}}}
	p := &exportProcessor{
		consumer: consumer,
		exporter: c.Exporter,
		sink:     delivery.NewFileSink(dir),
		logger:   zaptest.NewLogger(t).Sugar(),
	}

	runUntil(t, p, func() bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "worker-output-*.mp4"))
		return len(matches) == 1
	})

	matches, _ := filepath.Glob(filepath.Join(dir, "worker-output-*.mp4"))
	info, err := os.Stat(matches[0])
	if err != nil || info.Size() == 0 {
		t.Errorf("expected a non-empty video file, got %v, %v", info, err)
	}
}
