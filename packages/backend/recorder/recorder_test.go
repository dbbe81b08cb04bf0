package recorder

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/clock"
)

type fakeScene struct {
	durationMs int64

	mu      sync.Mutex
	painted []int64
}

func (s *fakeScene) PaintAt(dst *image.RGBA, elapsedMs int64) {
	s.mu.Lock()
	s.painted = append(s.painted, elapsedMs)
	s.mu.Unlock()
	for i := range dst.Pix {
		dst.Pix[i] = byte(elapsedMs / 100)
	}
}

func (s *fakeScene) NewFrame() *image.RGBA { return image.NewRGBA(image.Rect(0, 0, 4, 2)) }

func (s *fakeScene) Size() (int, int) { return 4, 2 }

func (s *fakeScene) DurationMs() int64 { return s.durationMs }

func rampBuffer(frames, rate int) *audio.Buffer {
	buf := audio.NewBuffer(2, frames, rate)
	for i := 0; i < frames; i++ {
		buf.Channels[0][i] = float32(i%100) / 100
		buf.Channels[1][i] = -float32(i%50) / 50
	}
	return buf
}

func newStepRecorder(t *testing.T, enc Encoder, states *[]State) *Recorder {
	t.Helper()
	opts := Options{FPS: 10}
	if states != nil {
		opts.OnState = func(s State) { *states = append(*states, s) }
	}
	return New(enc, clock.NewStepClock(time.Unix(0, 0)), opts, zaptest.NewLogger(t).Sugar())
}

func TestRecorder_RecordsBothTracksToTheEnd(t *testing.T) {
	t.Parallel()

	enc := NewMemoryEncoder()
	var states []State
	rec := newStepRecorder(t, enc, &states)

	scene := &fakeScene{durationMs: 1000}
	buf := rampBuffer(1000, 1000)

	out, err := rec.Record(context.Background(), scene, buf)
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	session := enc.Sessions()[0]
	if session.Spec.FPS != 10 || session.Spec.SampleRate != 1000 || session.Spec.Channels != 2 || session.Spec.Container != "mp4" {
		t.Errorf("unexpected stream spec %+v", session.Spec)
	}
	if got := session.VideoFrames(); got != 10 {
		t.Errorf("expected 10 frames, got %d", got)
	}

	want := audio.AppendPCM16(nil, buf, 0, 1000)
	if !bytes.Equal(session.AudioPCM(), want) {
		t.Errorf("audio track differs from the combined buffer (%d vs %d bytes)", len(session.AudioPCM()), len(want))
	}
	if len(out) != len(want)+10*4*2*4 {
		t.Errorf("unexpected output size %d", len(out))
	}

	for i, e := range scene.painted {
		if e != int64(i)*100 {
			t.Fatalf("frame %d painted for %dms, expected %dms", i, e, i*100)
		}
	}

	wantStates := []State{StatePreparing, StateRecording, StateFinalizing, StateDone}
	if len(states) != len(wantStates) {
		t.Fatalf("expected states %v, got %v", wantStates, states)
	}
	for i := range wantStates {
		if states[i] != wantStates[i] {
			t.Errorf("state %d: expected %s, got %s", i, wantStates[i], states[i])
		}
	}
	if rec.State() != StateDone {
		t.Errorf("expected done, got %s", rec.State())
	}
}

func TestRecorder_PadsShortAudio(t *testing.T) {
	t.Parallel()

	enc := NewMemoryEncoder()
	rec := newStepRecorder(t, enc, nil)
	buf := rampBuffer(250, 1000)

	if _, err := rec.Record(context.Background(), &fakeScene{durationMs: 1000}, buf); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	pcm := enc.Sessions()[0].AudioPCM()
	if len(pcm) != 1000*2*2 {
		t.Fatalf("expected %d bytes, got %d", 1000*2*2, len(pcm))
	}
	if !bytes.Equal(pcm[:250*4], audio.AppendPCM16(nil, buf, 0, 250)) {
		t.Error("expected buffer samples first")
	}
	if !bytes.Equal(pcm[250*4:], make([]byte, 750*4)) {
		t.Error("expected silence padding")
	}
}

func TestRecorder_AcquisitionFailure(t *testing.T) {
	t.Parallel()

	enc := NewMemoryEncoder()
	enc.OpenErr = errors.New("no h264 encoder")
	rec := newStepRecorder(t, enc, nil)

	_, err := rec.Record(context.Background(), &fakeScene{durationMs: 1000}, rampBuffer(10, 1000))
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition, got %v", err)
	}
	if rec.State() != StateFailed {
		t.Errorf("expected failed, got %s", rec.State())
	}
}

type stalledClock struct{}

func (stalledClock) Now() time.Time { return time.Unix(0, 0) }

func (stalledClock) Tick(time.Duration) (<-chan time.Time, func()) {
	return make(chan time.Time), func() {}
}

func TestRecorder_CancellationAbortsSession(t *testing.T) {
	t.Parallel()

	enc := NewMemoryEncoder()
	rec := New(enc, stalledClock{}, Options{FPS: 10}, zaptest.NewLogger(t).Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	out, err := rec.Record(ctx, &fakeScene{durationMs: 60000}, rampBuffer(10, 1000))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if out != nil {
		t.Error("partial output must be discarded")
	}
	if rec.State() != StateFailed {
		t.Errorf("expected failed, got %s", rec.State())
	}
	closed, aborted := enc.Sessions()[0].Released()
	if closed || !aborted {
		t.Errorf("expected aborted session, got closed=%v aborted=%v", closed, aborted)
	}
}

type brokenEncoder struct{ session *MemorySession }

type brokenSession struct{ *MemorySession }

func (brokenSession) Video() io.Writer { return failingWriter{} }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func (e *brokenEncoder) Open(_ context.Context, spec StreamSpec) (Session, error) {
	e.session = &MemorySession{Spec: spec}
	return brokenSession{e.session}, nil
}

func TestRecorder_WriteFailureAborts(t *testing.T) {
	t.Parallel()

	enc := &brokenEncoder{}
	rec := newStepRecorder(t, enc, nil)

	_, err := rec.Record(context.Background(), &fakeScene{durationMs: 1000}, rampBuffer(1000, 1000))
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, aborted := enc.session.Released(); !aborted {
		t.Error("expected session to be aborted")
	}
}

func TestRecorder_SingleUseAndValidation(t *testing.T) {
	t.Parallel()

	rec := newStepRecorder(t, NewMemoryEncoder(), nil)
	if _, err := rec.Record(context.Background(), &fakeScene{durationMs: 100}, rampBuffer(100, 1000)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if _, err := rec.Record(context.Background(), &fakeScene{durationMs: 100}, rampBuffer(100, 1000)); err == nil {
		t.Error("expected error when reusing a recorder")
	}

	empty := newStepRecorder(t, NewMemoryEncoder(), nil)
	if _, err := empty.Record(context.Background(), &fakeScene{}, rampBuffer(1, 1000)); err == nil {
		t.Error("expected error for empty scene")
	}
	if empty.State() != StateFailed {
		t.Errorf("expected failed, got %s", empty.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	names := []string{"idle", "preparing", "recording", "finalizing", "done", "failed"}
	for i, name := range names {
		if got := State(i).String(); got != name {
			t.Errorf("state %d: expected %q, got %q", i, name, got)
		}
	}
	if !strings.HasPrefix(State(42).String(), "state(") {
		t.Error("expected fallback name for unknown state")
	}
}
