package narration

import (
	"context"
	"unicode/utf8"

	"go.uber.org/zap"

	"slidecast/packages/backend/audio"
)

const (
	// MinEstimateMs is the floor of the reading-speed estimate.
	MinEstimateMs int64 = 3000
	charsPerWord        = 5
	wordsPerMinute      = 150
)

// EstimateDurationMs guesses the spoken length of text at 150 words per
// minute and five characters per word, never below MinEstimateMs.
func EstimateDurationMs(text string) int64 {
	chars := int64(utf8.RuneCountInString(text))
	est := chars * 60000 / (charsPerWord * wordsPerMinute)
	if est < MinEstimateMs {
		return MinEstimateMs
	}
	return est
}

// Resolution is the duration of one narration clip.
type Resolution struct {
	DurationMs int64
	// Clip is nil when the audio could not be decoded.
	Clip *audio.Buffer
	// Estimated is true when DurationMs comes from the text heuristic.
	Estimated bool
}

// Resolver measures narration audio by decoding it.
type Resolver struct {
	decoder audio.Decoder
	logger  *zap.SugaredLogger
}

// NewResolver creates a resolver.
func NewResolver(decoder audio.Decoder, logger *zap.SugaredLogger) *Resolver {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Resolver{decoder: decoder, logger: logger}
}

// Resolve decodes data for an exact, sample-accurate duration. Undecodable
// audio is not an error: the duration falls back to the estimate for text.
func (r *Resolver) Resolve(ctx context.Context, data []byte, text string) Resolution {
	clip, err := r.decoder.Decode(ctx, data)
	if err == nil && clip.SampleRate > 0 {
		return Resolution{DurationMs: clip.DurationMs(), Clip: clip}
	}

	est := EstimateDurationMs(text)
	r.logger.Warnw("narration audio undecodable, using estimate",
		"error", err,
		"bytes", len(data),
		"estimateMs", est,
	)
	return Resolution{DurationMs: est, Estimated: true}
}

// Decode exposes the underlying decoder for clips that were cached without
// their samples.
func (r *Resolver) Decode(ctx context.Context, data []byte) (*audio.Buffer, error) {
	return r.decoder.Decode(ctx, data)
}
