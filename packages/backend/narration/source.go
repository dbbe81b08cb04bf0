// Package narration turns slides into spoken audio: it builds the narration
// text, fetches speech from a Source, resolves exact durations and caches the
// result by content.
package narration

import (
	"context"
	"errors"

	"slidecast/packages/backend/slide"
)

// ErrSynthesis marks a failed request to the speech service.
var ErrSynthesis = errors.New("narration: speech synthesis failed")

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Source requests synthesized speech. The returned bytes are opaque; they are
// only interpreted by the Resolver. Errors wrap ErrSynthesis.
type Source interface {
	Synthesize(ctx context.Context, text, language string, voice slide.Voice) ([]byte, error)

	// Health returns the current health status of the source.
	Health() HealthStatus
}
