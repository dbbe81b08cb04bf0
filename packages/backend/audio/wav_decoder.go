package audio

import (
	"bytes"
	"context"
	"fmt"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavFormatPCM = 1

// WAVDecoder decodes integer PCM RIFF/WAVE data.
type WAVDecoder struct{}

// Decode implements Decoder.
func (WAVDecoder) Decode(_ context.Context, data []byte) (*Buffer, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav container", ErrDecode)
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, fmt.Errorf("%w: unsupported wav format %d", ErrDecode, dec.WavAudioFormat)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return fromIntBuffer(pcm)
}

func fromIntBuffer(pcm *goaudio.IntBuffer) (*Buffer, error) {
	if pcm == nil || pcm.Format == nil || pcm.Format.NumChannels < 1 || pcm.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing pcm format", ErrDecode)
	}

	var offset, scale float32
	switch pcm.SourceBitDepth {
	case 8:
		offset, scale = 128, 128
	case 16:
		scale = 1 << 15
	case 24:
		scale = 1 << 23
	case 32:
		scale = 1 << 31
	default:
		return nil, fmt.Errorf("%w: unsupported bit depth %d", ErrDecode, pcm.SourceBitDepth)
	}

	channels := pcm.Format.NumChannels
	frames := len(pcm.Data) / channels
	buf := NewBuffer(channels, frames, pcm.Format.SampleRate)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			buf.Channels[c][i] = (float32(pcm.Data[i*channels+c]) - offset) / scale
		}
	}
	return buf, nil
}
