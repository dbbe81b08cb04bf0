package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Decoder decodes MPEG-1/2 layer III audio. The decoder always yields
// 16-bit little-endian stereo.
type MP3Decoder struct{}

// Decode implements Decoder.
func (MP3Decoder) Decode(_ context.Context, data []byte) (*Buffer, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return fromS16LE(pcm, 2, dec.SampleRate())
}

// fromS16LE converts interleaved signed 16-bit little-endian PCM.
func fromS16LE(pcm []byte, channels, sampleRate int) (*Buffer, error) {
	if channels < 1 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid pcm layout %d ch @ %d Hz", ErrDecode, channels, sampleRate)
	}
	blockAlign := channels * 2
	frames := len(pcm) / blockAlign
	buf := NewBuffer(channels, frames, sampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			p := i*blockAlign + c*2
			v := int16(uint16(pcm[p]) | uint16(pcm[p+1])<<8)
			buf.Channels[c][i] = float32(v) / (1 << 15)
		}
	}
	return buf, nil
}
