// Package recorder captures a painted scene and a live audio buffer into one
// encoded audio/video stream in real time.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/clock"
)

// ErrAcquisition is returned when the encoder cannot be set up.
var ErrAcquisition = errors.New("recorder: could not acquire stream")

// State is the lifecycle of one recording.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateRecording
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Scene paints the frame for an elapsed offset.
type Scene interface {
	PaintAt(dst *image.RGBA, elapsedMs int64)
	NewFrame() *image.RGBA
	Size() (width, height int)
	DurationMs() int64
}

// Options tunes a Recorder.
type Options struct {
	FPS       int
	Container string
	// AudioTick is how often the audio player feeds the encoder.
	AudioTick time.Duration
	// OnState observes every state transition.
	OnState func(State)
}

const (
	DefaultFPS       = 30
	DefaultContainer = "mp4"
	defaultAudioTick = 20 * time.Millisecond
)

// Recorder drives the render loop and the audio player from one clock.
// A Recorder performs a single recording.
type Recorder struct {
	encoder Encoder
	clock   clock.Clock
	opts    Options
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	state State
}

// New creates a recorder in StateIdle.
func New(encoder Encoder, clk clock.Clock, opts Options, logger *zap.SugaredLogger) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Container == "" {
		opts.Container = DefaultContainer
	}
	if opts.AudioTick <= 0 {
		opts.AudioTick = defaultAudioTick
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{encoder: encoder, clock: clk, opts: opts, logger: logger}
}

// State returns the current state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
	if r.opts.OnState != nil {
		r.opts.OnState(s)
	}
}

// Record plays scene and buf together from time zero until the scene's
// duration has elapsed and returns the encoded output. On any failure or
// cancellation the partial output is discarded.
func (r *Recorder) Record(ctx context.Context, scene Scene, buf *audio.Buffer) ([]byte, error) {
	if r.State() != StateIdle {
		return nil, fmt.Errorf("recorder: already used (state %s)", r.State())
	}
	r.setState(StatePreparing)

	totalMs := scene.DurationMs()
	if totalMs <= 0 || buf == nil || buf.SampleRate <= 0 || buf.NumChannels() == 0 {
		r.setState(StateFailed)
		return nil, fmt.Errorf("recorder: nothing to record")
	}

	width, height := scene.Size()
	spec := StreamSpec{
		Width:      width,
		Height:     height,
		FPS:        r.opts.FPS,
		SampleRate: buf.SampleRate,
		Channels:   buf.NumChannels(),
		Container:  r.opts.Container,
	}

	session, err := r.encoder.Open(ctx, spec)
	if err != nil {
		r.setState(StateFailed)
		return nil, fmt.Errorf("%w: %v", ErrAcquisition, err)
	}
	finished := false
	defer func() {
		if !finished {
			if err := session.Abort(); err != nil {
				r.logger.Warnw("failed to abort recording session", "error", err)
			}
		}
	}()

	r.setState(StateRecording)
	start := r.clock.Now()
	r.logger.Infow("recording started",
		"durationMs", totalMs,
		"width", width,
		"height", height,
		"fps", r.opts.FPS,
		"sampleRate", buf.SampleRate,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.runVideo(gctx, start, scene, totalMs, session.Video())
	})
	g.Go(func() error {
		return r.runAudio(gctx, start, buf, totalMs, session.Audio())
	})
	if err := g.Wait(); err != nil {
		r.setState(StateFailed)
		return nil, fmt.Errorf("recorder: %w", err)
	}

	r.setState(StateFinalizing)
	finished = true
	out, err := session.Close()
	if err != nil {
		r.setState(StateFailed)
		return nil, fmt.Errorf("recorder: finalize: %w", err)
	}

	r.setState(StateDone)
	r.logger.Infow("recording finished", "durationMs", totalMs, "bytes", len(out))
	return out, nil
}

// runVideo writes frame i, painted for elapsed i/fps, once the clock passes
// that offset. When elapsed reaches the total, every remaining frame is
// written in the same tick.
func (r *Recorder) runVideo(ctx context.Context, start time.Time, scene Scene, totalMs int64, w io.Writer) error {
	fps := int64(r.opts.FPS)
	total := ceilDiv(totalMs*fps, 1000)
	frame := scene.NewFrame()
	var written int64

	emit := func(upto int64) error {
		for ; written < upto && written < total; written++ {
			scene.PaintAt(frame, written*1000/fps)
			if _, err := w.Write(frame.Pix); err != nil {
				return fmt.Errorf("write video frame %d: %w", written, err)
			}
		}
		return nil
	}

	ticks, stop := r.clock.Tick(time.Second / time.Duration(fps))
	defer stop()

	if err := emit(1); err != nil {
		return err
	}
	for written < total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticks:
			elapsed := now.Sub(start).Milliseconds()
			if elapsed >= totalMs {
				return emit(total)
			}
			if err := emit(elapsed*fps/1000 + 1); err != nil {
				return err
			}
		}
	}
	return nil
}

// runAudio plays buf by writing every sample whose time has come. The stream
// is padded with silence to exactly the total duration.
func (r *Recorder) runAudio(ctx context.Context, start time.Time, buf *audio.Buffer, totalMs int64, w io.Writer) error {
	rate := int64(buf.SampleRate)
	total := audio.FramesFor(totalMs, buf.SampleRate)
	var written int64
	step := rate / 10
	if step < 1 {
		step = 1
	}
	chunk := make([]byte, 0, int(step)*buf.NumChannels()*2)

	emit := func(upto int64) error {
		if upto > total {
			upto = total
		}
		for written < upto {
			end := upto
			if limit := written + step; end > limit {
				end = limit
			}
			chunk = audio.AppendPCM16(chunk[:0], buf, int(written), int(end))
			if short := int(end-written) - len(chunk)/(2*buf.NumChannels()); short > 0 {
				chunk = append(chunk, audio.SilencePCM16(short, buf.NumChannels())...)
			}
			if _, err := w.Write(chunk); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			written = end
		}
		return nil
	}

	ticks, stop := r.clock.Tick(r.opts.AudioTick)
	defer stop()

	for written < total {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticks:
			elapsed := now.Sub(start).Milliseconds()
			if elapsed >= totalMs {
				return emit(total)
			}
			if err := emit(elapsed * rate / 1000); err != nil {
				return err
			}
		}
	}
	return nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
