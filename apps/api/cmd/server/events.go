package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"slidecast/packages/backend/status"
)

// exportEvents streams the progress of one export as server-sent events
// until the export completes or fails.
func (s *server) exportEvents(c *gin.Context) {
	if s.subscriber == nil {
		writeError(c, s.logger, http.StatusServiceUnavailable, errors.New("status streams require redis"))
		return
	}

	exportID := c.Param("id")
	if !exportIDPattern.MatchString(exportID) {
		writeError(c, s.logger, http.StatusBadRequest, errors.New("invalid export id"))
		return
	}

	ctx := c.Request.Context()
	stream, err := s.subscriber.Subscribe(ctx, exportID)
	if err != nil {
		s.logger.Errorw("failed to subscribe to status stream", "error", err, "exportID", exportID)
		writeError(c, s.logger, http.StatusInternalServerError, errors.New("failed to subscribe to status stream"))
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			s.logger.Errorw("failed to close status stream", "error", err, "exportID", exportID)
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	events, errs := stream.Events(), stream.Errors()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent("status", event)
			c.Writer.Flush()
			if terminal(event) {
				return
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				s.logger.Errorw("status stream error", "error", err, "exportID", exportID)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func terminal(event status.ExportEvent) bool {
	if event.State == status.StateFailed {
		return true
	}
	return event.Stage == status.StageDeliver && event.State == status.StateCompleted
}
