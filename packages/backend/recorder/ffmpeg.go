package recorder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FFmpegEncoder muxes the raw tracks with an ffmpeg child process. Video is
// fed on stdin and audio on an extra pipe (fd 3).
type FFmpegEncoder struct {
	Path   string
	logger *zap.SugaredLogger
}

// NewFFmpegEncoder creates an encoder using the ffmpeg binary at path
// ("ffmpeg" when empty).
func NewFFmpegEncoder(path string, logger *zap.SugaredLogger) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FFmpegEncoder{Path: path, logger: logger}
}

func codecArgs(container string) ([]string, error) {
	switch container {
	case "mp4":
		return []string{
			"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-b:a", "192k",
			"-movflags", "+faststart",
		}, nil
	case "webm":
		return []string{
			"-c:v", "libvpx-vp9", "-b:v", "0", "-crf", "32", "-pix_fmt", "yuv420p",
			"-c:a", "libopus", "-b:a", "128k",
		}, nil
	default:
		return nil, fmt.Errorf("unsupported container %q", container)
	}
}

// Open implements Encoder.
func (e *FFmpegEncoder) Open(ctx context.Context, spec StreamSpec) (Session, error) {
	codecs, err := codecArgs(spec.Container)
	if err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(e.Path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	dir, err := os.MkdirTemp("", "slidecast-rec-*")
	if err != nil {
		return nil, err
	}
	output := filepath.Join(dir, "out."+spec.Container)

	audioR, audioW, err := os.Pipe()
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo", "-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", strconv.Itoa(spec.FPS),
		"-i", "pipe:0",
		"-f", "s16le", "-ar", strconv.Itoa(spec.SampleRate), "-ac", strconv.Itoa(spec.Channels),
		"-i", "pipe:3",
	}
	args = append(args, codecs...)
	args = append(args, output)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.ExtraFiles = []*os.File{audioR}
	stderr := &boundedBuffer{limit: 8 << 10}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = audioR.Close()
		_ = audioW.Close()
		_ = os.RemoveAll(dir)
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		_ = audioR.Close()
		_ = audioW.Close()
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	// the child holds its own copy of the read end
	_ = audioR.Close()

	e.logger.Infow("ffmpeg recording session opened",
		"container", spec.Container,
		"size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"fps", spec.FPS,
	)

	return &ffmpegSession{
		cmd:    cmd,
		video:  stdin,
		audio:  audioW,
		dir:    dir,
		output: output,
		stderr: stderr,
	}, nil
}

type ffmpegSession struct {
	cmd    *exec.Cmd
	video  io.WriteCloser
	audio  *os.File
	dir    string
	output string
	stderr *boundedBuffer

	once sync.Once
}

func (s *ffmpegSession) Video() io.Writer { return s.video }

func (s *ffmpegSession) Audio() io.Writer { return s.audio }

func (s *ffmpegSession) Close() ([]byte, error) {
	var (
		data []byte
		err  = fmt.Errorf("session already released")
	)
	s.once.Do(func() {
		defer os.RemoveAll(s.dir)

		_ = s.video.Close()
		_ = s.audio.Close()
		if werr := s.cmd.Wait(); werr != nil {
			err = fmt.Errorf("ffmpeg: %w: %s", werr, strings.TrimSpace(s.stderr.String()))
			return
		}
		data, err = os.ReadFile(s.output)
	})
	return data, err
}

func (s *ffmpegSession) Abort() error {
	var err error
	s.once.Do(func() {
		defer os.RemoveAll(s.dir)

		_ = s.video.Close()
		_ = s.audio.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		if werr := s.cmd.Wait(); werr != nil && !isKilled(werr) {
			err = werr
		}
	})
	return err
}

func isKilled(err error) bool {
	exitErr, ok := err.(*exec.ExitError)
	return ok && !exitErr.Exited()
}

// boundedBuffer keeps the first limit bytes written to it.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
