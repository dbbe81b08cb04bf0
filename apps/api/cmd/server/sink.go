package main

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"slidecast/packages/backend/delivery"
)

// responseSink delivers an export as the HTTP response, which the browser
// saves as a download.
type responseSink struct {
	w       http.ResponseWriter
	started bool
}

func newResponseSink(w http.ResponseWriter) *responseSink {
	return &responseSink{w: w}
}

// Started reports whether any part of the response was written.
func (s *responseSink) Started() bool {
	return s.started
}

func (s *responseSink) Deliver(ctx context.Context, name string, data []byte) (delivery.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return delivery.Receipt{}, fmt.Errorf("%w: %v", delivery.ErrDelivery, err)
	}

	h := s.w.Header()
	h.Set("Content-Type", delivery.ContentType(filepath.Ext(name)))
	h.Set("Content-Disposition", delivery.AttachmentHeader(name))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	s.w.WriteHeader(http.StatusOK)
	s.started = true

	if _, err := s.w.Write(data); err != nil {
		return delivery.Receipt{}, fmt.Errorf("%w: %v", delivery.ErrDelivery, err)
	}
	return delivery.Receipt{Name: name, Location: "response", Size: len(data)}, nil
}
