package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/delivery"
	"slidecast/packages/backend/di"
	"slidecast/packages/backend/narration"
	"slidecast/packages/backend/pipeline"
	"slidecast/packages/backend/postgres"
	queuepkg "slidecast/packages/backend/queue"
	"slidecast/packages/backend/recorder"
	"slidecast/packages/backend/slide"
	"slidecast/packages/backend/status"
	"slidecast/packages/backend/timeline"
)

const maxDeckBytes = 4 << 20

var exportIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

type jobQueue interface {
	Enqueue(ctx context.Context, job queuepkg.ExportJob) error
}

type statusSubscriber interface {
	Subscribe(ctx context.Context, exportID string) (status.Stream, error)
}

type server struct {
	exporter   *pipeline.Exporter
	cache      *narration.Cache
	history    postgres.Store
	queue      jobQueue
	subscriber statusSubscriber
	outputDir  string
	now        func() time.Time
	logger     *zap.SugaredLogger
}

func newServer(c *di.Container, outputDir string, logger *zap.SugaredLogger) *server {
	s := &server{
		exporter:  c.Exporter,
		cache:     c.Cache,
		history:   c.History,
		outputDir: outputDir,
		now:       time.Now,
		logger:    logger,
	}
	if c.Queue != nil {
		s.queue = c.Queue
	}
	if c.Subscriber != nil {
		s.subscriber = c.Subscriber
	}
	return s
}

func (s *server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", s.health)

	r.POST("/exports", s.createExport)
	r.GET("/exports", s.listExports)
	r.GET("/exports/:id", s.getExport)
	r.GET("/exports/:id/events", s.exportEvents)
	r.GET("/exports/:id/download", s.downloadExport)

	r.POST("/narration/durations", s.narrationDurations)
	r.POST("/narration/wav", s.narrationWAV)
	return r
}

func (s *server) health(c *gin.Context) {
	health := s.cache.Source().Health()
	code := http.StatusOK
	state := "ok"
	if !health.Healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{
		"status": state,
		"source": health,
		"cache":  s.cache.Stats(),
	})
}

// readDeck decodes the request body as a YAML or JSON deck. A voice query
// parameter narrates every slide with the same voice.
func (s *server) readDeck(c *gin.Context) (slide.Deck, error) {
	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxDeckBytes)
	deck, err := slide.DecodeDeck(body, s.exporter.Config().Language)
	if err != nil {
		return slide.Deck{}, fmt.Errorf("invalid deck: %w", err)
	}
	if v := c.Query("voice"); v != "" {
		if err := deck.ApplyVoice(slide.Voice(v)); err != nil {
			return slide.Deck{}, err
		}
	}
	return deck, nil
}

func (s *server) createExport(c *gin.Context) {
	deck, err := s.readDeck(c)
	if err != nil {
		writeError(c, s.logger, http.StatusBadRequest, err)
		return
	}

	if c.Query("async") == "true" {
		s.enqueueExport(c, deck)
		return
	}

	sink := newResponseSink(c.Writer)
	result, err := s.exporter.Export(c.Request.Context(), "", deck, sink)
	if err != nil {
		if sink.Started() {
			s.logger.Errorw("download interrupted", "error", err)
			return
		}
		writeError(c, s.logger, statusFor(err), err)
		return
	}
	s.logger.Infow("export downloaded", "exportID", result.ExportID, "file", result.Receipt.Name, "bytes", result.Receipt.Size)
}

func (s *server) enqueueExport(c *gin.Context, deck slide.Deck) {
	if s.queue == nil {
		writeError(c, s.logger, http.StatusServiceUnavailable, errors.New("async exports require redis"))
		return
	}

	ctx := c.Request.Context()
	id := pipeline.NewExportID()
	rec := &postgres.ExportRecord{
		ID:       id,
		Subject:  deck.Subject,
		Language: deck.Language,
		Slides:   len(deck.Slides),
		State:    postgres.StateQueued,
	}
	if err := s.history.Create(ctx, rec); err != nil {
		s.logger.Warnw("failed to record queued export", "error", err, "exportID", id)
	}

	if err := s.queue.Enqueue(ctx, queuepkg.ExportJob{ExportID: id, Deck: deck, EnqueuedAt: s.now().UTC()}); err != nil {
		s.logger.Errorw("failed to enqueue export job", "error", err, "exportID", id)
		rec.State = postgres.StateFailed
		rec.Error = "failed to enqueue export job"
		if updateErr := s.history.Update(ctx, rec); updateErr != nil {
			s.logger.Warnw("failed to record enqueue failure", "error", updateErr, "exportID", id)
		}
		writeError(c, s.logger, http.StatusInternalServerError, errors.New("failed to enqueue export job"))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"exportId": id,
		"state":    postgres.StateQueued,
		"events":   "/exports/" + id + "/events",
	})
}

func (s *server) listExports(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(c, s.logger, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	recs, err := s.history.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, s.logger, http.StatusInternalServerError, fmt.Errorf("failed to list exports: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"exports": recs})
}

func (s *server) loadExport(c *gin.Context) (*postgres.ExportRecord, bool) {
	id := c.Param("id")
	if !exportIDPattern.MatchString(id) {
		writeError(c, s.logger, http.StatusBadRequest, errors.New("invalid export id"))
		return nil, false
	}
	rec, err := s.history.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, s.logger, statusFor(err), err)
		return nil, false
	}
	return rec, true
}

func (s *server) getExport(c *gin.Context) {
	if rec, ok := s.loadExport(c); ok {
		c.JSON(http.StatusOK, rec)
	}
}

func (s *server) downloadExport(c *gin.Context) {
	rec, ok := s.loadExport(c)
	if !ok {
		return
	}
	if rec.State != postgres.StateCompleted || rec.FileName == "" || filepath.Base(rec.FileName) != rec.FileName {
		writeError(c, s.logger, http.StatusConflict, fmt.Errorf("export %s is %s", rec.ID, rec.State))
		return
	}
	path := filepath.Join(s.outputDir, rec.FileName)
	if _, err := os.Stat(path); err != nil {
		writeError(c, s.logger, http.StatusGone, fmt.Errorf("export %s is no longer available", rec.ID))
		return
	}
	c.FileAttachment(path, rec.FileName)
}

type durationsResponse struct {
	Slides   []pipeline.Narration `json:"slides"`
	Timeline timeline.Timeline    `json:"timeline"`
	Cache    narration.CacheStats `json:"cache"`
}

func (s *server) narrationDurations(c *gin.Context) {
	deck, err := s.readDeck(c)
	if err != nil {
		writeError(c, s.logger, http.StatusBadRequest, err)
		return
	}

	narrations, err := s.exporter.Narrate(c.Request.Context(), pipeline.NewExportID(), deck)
	if err != nil {
		writeError(c, s.logger, statusFor(err), err)
		return
	}
	tl, err := pipeline.ComposeTimeline(narrations, s.exporter.Config().Timeline)
	if err != nil {
		writeError(c, s.logger, statusFor(err), err)
		return
	}

	c.JSON(http.StatusOK, durationsResponse{Slides: narrations, Timeline: tl, Cache: s.cache.Stats()})
}

func (s *server) narrationWAV(c *gin.Context) {
	deck, err := s.readDeck(c)
	if err != nil {
		writeError(c, s.logger, http.StatusBadRequest, err)
		return
	}

	plan, err := s.exporter.Prepare(c.Request.Context(), pipeline.NewExportID(), deck)
	if err != nil {
		writeError(c, s.logger, statusFor(err), err)
		return
	}

	name := delivery.FileName(deck.Subject, s.now(), "wav")
	c.Header("Content-Type", delivery.ContentType("wav"))
	c.Header("Content-Disposition", delivery.AttachmentHeader(name))
	c.Status(http.StatusOK)
	if err := audio.WriteWAV(c.Writer, plan.Audio); err != nil {
		s.logger.Errorw("failed to write wav response", "error", err)
	}
}

func writeError(c *gin.Context, logger *zap.SugaredLogger, code int, err error) {
	if code >= http.StatusInternalServerError {
		logger.Errorw("request failed", "error", err, "path", c.Request.URL.Path, "status", code)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, postgres.ErrExportNotFound):
		return http.StatusNotFound
	case errors.Is(err, timeline.ErrEmpty):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrBufferTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, recorder.ErrAcquisition):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
