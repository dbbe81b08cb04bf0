package audio

import "math"

// Resample converts b to sampleRate by linear interpolation. b is returned
// as is when the rates already match.
func Resample(b *Buffer, sampleRate int) *Buffer {
	if b == nil || sampleRate <= 0 || b.SampleRate == sampleRate || b.SampleRate <= 0 {
		return b
	}

	src := b.Frames()
	ratio := float64(b.SampleRate) / float64(sampleRate)
	frames := int(math.Round(float64(src) / ratio))
	out := NewBuffer(b.NumChannels(), frames, sampleRate)
	if src == 0 {
		return out
	}

	for i := 0; i < frames; i++ {
		pos := float64(i) * ratio
		i0 := int(pos)
		if i0 >= src-1 {
			for c, ch := range b.Channels {
				out.Channels[c][i] = ch[src-1]
			}
			continue
		}
		frac := float32(pos - float64(i0))
		for c, ch := range b.Channels {
			out.Channels[c][i] = ch[i0] + (ch[i0+1]-ch[i0])*frac
		}
	}
	return out
}
