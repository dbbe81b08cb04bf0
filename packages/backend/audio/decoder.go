package audio

import (
	"bytes"
	"context"
	"fmt"
)

// Decoder turns encoded audio bytes into samples. Errors wrap ErrDecode.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Buffer, error)
}

// AutoDecoder sniffs the container and dispatches to the matching decoder.
// Formats it does not recognize, and recognized ones that fail, go to
// Fallback when it is set.
type AutoDecoder struct {
	WAV      Decoder
	MP3      Decoder
	Fallback Decoder
}

// NewAutoDecoder wires the built-in WAV and MP3 decoders. fallback may be nil.
func NewAutoDecoder(fallback Decoder) *AutoDecoder {
	return &AutoDecoder{WAV: WAVDecoder{}, MP3: MP3Decoder{}, Fallback: fallback}
}

// Decode implements Decoder.
func (d *AutoDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	var primary Decoder
	switch {
	case isWAV(data):
		primary = d.WAV
	case isMP3(data):
		primary = d.MP3
	}

	if primary != nil {
		buf, err := primary.Decode(ctx, data)
		if err == nil || d.Fallback == nil {
			return buf, err
		}
	}
	if d.Fallback == nil {
		return nil, fmt.Errorf("%w: unrecognized format", ErrDecode)
	}
	return d.Fallback.Decode(ctx, data)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")) {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}
