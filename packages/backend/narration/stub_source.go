package narration

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/slide"
)

// StubSourceConfig configures the stub source behavior.
type StubSourceConfig struct {
	// ProcessingDelay simulates synthesis time.
	ProcessingDelay time.Duration
	// SampleRate of the generated WAV clips.
	SampleRate int
	// WordDuration is the spoken length of one five-character word.
	WordDuration time.Duration
}

// DefaultStubSourceConfig returns sensible defaults for development and tests.
func DefaultStubSourceConfig() *StubSourceConfig {
	return &StubSourceConfig{
		SampleRate:   22050,
		WordDuration: 400 * time.Millisecond,
	}
}

// StubSource is an offline Source returning deterministic mono WAV tones
// whose length follows the text length.
type StubSource struct {
	config *StubSourceConfig
	calls  atomic.Int64
}

// NewStubSource creates a stub source. If config is nil, defaults are used.
func NewStubSource(config *StubSourceConfig) *StubSource {
	if config == nil {
		config = DefaultStubSourceConfig()
	}
	return &StubSource{config: config}
}

// Synthesize implements Source.
func (s *StubSource) Synthesize(ctx context.Context, text, _ string, voice slide.Voice) ([]byte, error) {
	s.calls.Add(1)

	if s.config.ProcessingDelay > 0 {
		select {
		case <-time.After(s.config.ProcessingDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrSynthesis, ctx.Err())
		}
	}

	words := len(text) / 5
	if words < 1 {
		words = 1
	}
	duration := time.Duration(words) * s.config.WordDuration

	freq := 330.0
	if voice == slide.VoiceMale {
		freq = 220.0
	}

	frames := int(duration.Seconds() * float64(s.config.SampleRate))
	buf := audio.NewBuffer(1, frames, s.config.SampleRate)
	for i := range buf.Channels[0] {
		buf.Channels[0][i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/float64(s.config.SampleRate)))
	}
	return audio.EncodeWAV(buf), nil
}

// Calls reports how many synthesis requests were made.
func (s *StubSource) Calls() int64 {
	return s.calls.Load()
}

// Health implements Source.
func (s *StubSource) Health() HealthStatus {
	return HealthStatus{Healthy: true, Message: "stub source ready"}
}
