package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpegDecoder shells out to ffmpeg for containers the built-in decoders
// do not handle (ogg, aac, flac, ...). Output is resampled to SampleRate.
type FFmpegDecoder struct {
	Path       string
	SampleRate int
}

// Decode implements Decoder.
func (d FFmpegDecoder) Decode(ctx context.Context, data []byte) (*Buffer, error) {
	path := d.Path
	if path == "" {
		path = "ffmpeg"
	}
	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	if _, err := exec.LookPath(path); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg unavailable: %v", ErrDecode, err)
	}

	cmd := exec.CommandContext(ctx, path,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", "2", "-ar", strconv.Itoa(rate),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecode, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no samples", ErrDecode)
	}
	return fromS16LE(stdout.Bytes(), 2, rate)
}
