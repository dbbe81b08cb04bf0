// Package main contains the export worker entry point. The worker pops export
// jobs queued by the API and writes the finished videos to the output
// directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"slidecast/packages/backend/config"
	"slidecast/packages/backend/delivery"
	"slidecast/packages/backend/di"
	"slidecast/packages/backend/logging"
	"slidecast/packages/backend/pipeline"
	"slidecast/packages/backend/postgres"
	queuepkg "slidecast/packages/backend/queue"
	"slidecast/packages/backend/slide"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.NewViper(), *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	container, err := di.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("failed to build dependencies", "error", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Errorw("failed to close dependencies", "error", err)
		}
	}()
	if container.Queue == nil {
		logger.Fatalw("worker requires redis.addr to receive export jobs")
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		logger.Fatalw("failed to create output directory", "error", err, "dir", cfg.Output.Dir)
	}

	scheduler := cron.New()
	sweeper := delivery.NewSweeper(cfg.Output.Dir, cfg.Output.Retention, logger)
	if _, err := sweeper.Schedule(scheduler, cfg.Output.Sweep); err != nil {
		logger.Fatalw("failed to schedule output sweeper", "error", err, "spec", cfg.Output.Sweep)
	}
	scheduler.Start()
	defer scheduler.Stop()

	processor := &exportProcessor{
		consumer:    container.Queue,
		exporter:    container.Exporter,
		sink:        delivery.NewFileSink(cfg.Output.Dir),
		history:     container.History,
		language:    cfg.Speech.Language,
		pollTimeout: cfg.Queue.PollTimeout,
		logger:      logger,
	}

	logger.Infow("worker starting", "queue", cfg.Queue.Name, "outputDir", cfg.Output.Dir)

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(ctx)
	}()

	<-signals
	logger.Infow("worker shutdown signal received")
	cancel()
	<-done

	if err := container.ReleaseCache(context.Background()); err != nil {
		logger.Warnw("failed to clear narration cache", "error", err)
	}
	logger.Infow("worker stopped")
}

type jobConsumer interface {
	Pop(ctx context.Context, timeout time.Duration) (*queuepkg.ExportJob, error)
}

type deckExporter interface {
	Export(ctx context.Context, exportID string, deck slide.Deck, sink delivery.Sink) (*pipeline.Result, error)
}

type exportProcessor struct {
	consumer    jobConsumer
	exporter    deckExporter
	sink        delivery.Sink
	history     postgres.Store
	language    string
	pollTimeout time.Duration
	logger      *zap.SugaredLogger
}

// Run processes jobs one at a time until ctx is cancelled. An export in
// progress is cancelled with ctx.
func (p *exportProcessor) Run(ctx context.Context) {
	timeout := p.pollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.consumer.Pop(ctx, timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			p.logger.Errorw("failed to pop export job", "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		if job == nil {
			continue
		}

		p.process(ctx, job)
	}
}

func (p *exportProcessor) process(ctx context.Context, job *queuepkg.ExportJob) {
	logger := p.logger.With("exportID", job.ExportID)

	deck := job.Deck
	if err := deck.Normalize(p.language); err != nil {
		logger.Errorw("rejected export job", "error", err)
		p.reject(ctx, job, err)
		return
	}

	logger.Infow("export job received", "subject", deck.Subject, "slides", len(deck.Slides), "waited", time.Since(job.EnqueuedAt).String())
	result, err := p.exporter.Export(ctx, job.ExportID, deck, p.sink)
	if err != nil {
		logger.Errorw("export failed", "error", err)
		return
	}
	logger.Infow("export delivered", "file", result.Receipt.Location, "bytes", result.Receipt.Size, "durationMs", result.DurationMs)
}

// reject marks the history record of a job that never started as failed.
func (p *exportProcessor) reject(ctx context.Context, job *queuepkg.ExportJob, cause error) {
	if p.history == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	rec := &postgres.ExportRecord{
		ID:       job.ExportID,
		Subject:  job.Deck.Subject,
		Language: job.Deck.Language,
		Slides:   len(job.Deck.Slides),
		State:    postgres.StateFailed,
		Error:    "invalid deck: " + cause.Error(),
	}
	err := p.history.Update(ctx, rec)
	if errors.Is(err, postgres.ErrExportNotFound) {
		err = p.history.Create(ctx, rec)
	}
	if err != nil {
		p.logger.Warnw("failed to record rejected export", "error", err, "exportID", job.ExportID)
	}
}
