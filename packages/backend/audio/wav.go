package audio

import (
	"encoding/binary"
	"io"
)

const (
	wavHeaderSize    = 44
	wavBitsPerSample = 16
)

// EncodeWAV serializes b as canonical 16-bit PCM RIFF/WAVE:
// a 44-byte header followed by interleaved little-endian samples.
func EncodeWAV(b *Buffer) []byte {
	channels := b.NumChannels()
	frames := b.Frames()
	dataLen := frames * channels * 2

	out := make([]byte, wavHeaderSize, wavHeaderSize+dataLen)
	putWAVHeader(out, channels, b.SampleRate, dataLen)
	return AppendPCM16(out, b, 0, frames)
}

// WriteWAV writes EncodeWAV(b) to w.
func WriteWAV(w io.Writer, b *Buffer) error {
	_, err := w.Write(EncodeWAV(b))
	return err
}

func putWAVHeader(h []byte, channels, sampleRate, dataLen int) {
	blockAlign := channels * wavBitsPerSample / 8
	le := binary.LittleEndian

	copy(h[0:4], "RIFF")
	le.PutUint32(h[4:8], uint32(wavHeaderSize+dataLen-8))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	le.PutUint32(h[16:20], 16)
	le.PutUint16(h[20:22], wavFormatPCM)
	le.PutUint16(h[22:24], uint16(channels))
	le.PutUint32(h[24:28], uint32(sampleRate))
	le.PutUint32(h[28:32], uint32(sampleRate*blockAlign))
	le.PutUint16(h[32:34], uint16(blockAlign))
	le.PutUint16(h[34:36], wavBitsPerSample)
	copy(h[36:40], "data")
	le.PutUint32(h[40:44], uint32(dataLen))
}

// Quantize clamps v to [-1, 1] and scales it to int16, using 0x8000 for
// negative and 0x7FFF for positive values. The fraction is truncated.
func Quantize(v float32) int16 {
	switch {
	case v != v:
		return 0
	case v < -1:
		v = -1
	case v > 1:
		v = 1
	}
	if v < 0 {
		return int16(v * 0x8000)
	}
	return int16(v * 0x7FFF)
}

// AppendPCM16 appends frames [from, to) of b to dst as interleaved signed
// 16-bit little-endian samples.
func AppendPCM16(dst []byte, b *Buffer, from, to int) []byte {
	if from < 0 {
		from = 0
	}
	if n := b.Frames(); to > n {
		to = n
	}
	for i := from; i < to; i++ {
		for _, ch := range b.Channels {
			s := uint16(Quantize(ch[i]))
			dst = append(dst, byte(s), byte(s>>8))
		}
	}
	return dst
}

// SilencePCM16 returns frames of interleaved 16-bit silence.
func SilencePCM16(frames, channels int) []byte {
	if frames <= 0 || channels <= 0 {
		return nil
	}
	return make([]byte, frames*channels*2)
}
