package audio

import (
	"errors"
	"fmt"

	"slidecast/packages/backend/timeline"
)

// OutputChannels is the channel count of the combined buffer.
const OutputChannels = 2

// ErrBufferTooLarge is returned when the combined buffer would exceed the
// configured frame bound.
var ErrBufferTooLarge = errors.New("audio: combined buffer too large")

// MixOptions controls the combined buffer.
type MixOptions struct {
	SampleRate int
	// MaxFrames bounds the allocation; zero means unbounded.
	MaxFrames int64
}

// Mix places clips[i] at the start of timeline entry i in one stereo buffer
// of ceil(total/1000*rate) frames. Nil clips stay silent. Mono clips feed
// both output channels. Samples are copied unscaled and anything running past
// the end of the buffer is dropped.
func Mix(clips []*Buffer, tl timeline.Timeline, opts MixOptions) (*Buffer, error) {
	if len(clips) != len(tl.Entries) {
		return nil, fmt.Errorf("audio: %d clips for %d timeline entries", len(clips), len(tl.Entries))
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	frames := FramesFor(tl.TotalMs, rate)
	if opts.MaxFrames > 0 && frames > opts.MaxFrames {
		return nil, fmt.Errorf("%w: %d frames exceeds limit of %d", ErrBufferTooLarge, frames, opts.MaxFrames)
	}

	out := NewBuffer(OutputChannels, int(frames), rate)
	for i, clip := range clips {
		if clip.NumChannels() == 0 || clip.Frames() == 0 {
			continue
		}
		if err := clip.validate(); err != nil {
			return nil, fmt.Errorf("audio: clip %d: %w", i, err)
		}
		src := Resample(clip, rate)
		offset := int(tl.Entries[i].StartMs * int64(rate) / 1000)
		for c := 0; c < OutputChannels; c++ {
			in := src.Channels[0]
			if c < src.NumChannels() {
				in = src.Channels[c]
			}
			if offset < len(out.Channels[c]) {
				copy(out.Channels[c][offset:], in)
			}
		}
	}
	return out, nil
}
