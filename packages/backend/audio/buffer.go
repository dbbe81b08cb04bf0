// Package audio holds the sample-level stages of an export: decoding narration
// clips, mixing them onto the timeline and serializing the result as WAV.
package audio

import (
	"errors"
	"fmt"
)

// DefaultSampleRate is the rate of the combined export buffer.
const DefaultSampleRate = 44100

// ErrDecode marks bytes that could not be turned into samples.
var ErrDecode = errors.New("audio: decode failed")

// Buffer is planar float32 PCM. Channels[c][i] is frame i of channel c and
// every channel has the same length.
type Buffer struct {
	SampleRate int
	Channels   [][]float32
}

// NewBuffer allocates a zero-filled (silent) buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Channels: make([][]float32, channels)}
	for c := range b.Channels {
		b.Channels[c] = make([]float32, frames)
	}
	return b
}

// NumChannels returns the channel count.
func (b *Buffer) NumChannels() int {
	if b == nil {
		return 0
	}
	return len(b.Channels)
}

// Frames returns the number of samples per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// DurationMs is frames/sampleRate in milliseconds, rounded to the nearest ms.
func (b *Buffer) DurationMs() int64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	frames := int64(b.Frames())
	rate := int64(b.SampleRate)
	return (frames*1000 + rate/2) / rate
}

func (b *Buffer) validate() error {
	if b == nil {
		return errors.New("audio: nil buffer")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", b.SampleRate)
	}
	n := b.Frames()
	for c, ch := range b.Channels {
		if len(ch) != n {
			return fmt.Errorf("audio: channel %d has %d frames, expected %d", c, len(ch), n)
		}
	}
	return nil
}

// FramesFor converts a duration to a frame count, rounding up.
func FramesFor(durationMs int64, sampleRate int) int64 {
	if durationMs <= 0 || sampleRate <= 0 {
		return 0
	}
	return (durationMs*int64(sampleRate) + 999) / 1000
}
