package recorder

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// StreamSpec describes the raw tracks handed to an encoder. Video is RGBA
// frames of Width x Height at FPS; audio is interleaved signed 16-bit
// little-endian PCM.
type StreamSpec struct {
	Width      int
	Height     int
	FPS        int
	SampleRate int
	Channels   int
	Container  string
}

// Encoder acquires a recording session.
type Encoder interface {
	Open(ctx context.Context, spec StreamSpec) (Session, error)
}

// Session is one live recording. Exactly one of Close or Abort releases it.
type Session interface {
	Video() io.Writer
	Audio() io.Writer
	// Close finalizes the stream and returns the encoded file.
	Close() ([]byte, error)
	// Abort releases every resource and discards partial output.
	Abort() error
}

// MemoryEncoder records raw tracks in memory. It is used by tests and by
// development setups without ffmpeg.
type MemoryEncoder struct {
	// OpenErr is returned from Open when set.
	OpenErr error

	mu       sync.Mutex
	sessions []*MemorySession
}

// NewMemoryEncoder creates a MemoryEncoder.
func NewMemoryEncoder() *MemoryEncoder {
	return &MemoryEncoder{}
}

// Open implements Encoder.
func (e *MemoryEncoder) Open(_ context.Context, spec StreamSpec) (Session, error) {
	if e.OpenErr != nil {
		return nil, e.OpenErr
	}
	s := &MemorySession{Spec: spec}
	e.mu.Lock()
	e.sessions = append(e.sessions, s)
	e.mu.Unlock()
	return s, nil
}

// Sessions returns every session opened so far.
func (e *MemoryEncoder) Sessions() []*MemorySession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*MemorySession(nil), e.sessions...)
}

// MemorySession accumulates the raw tracks.
type MemorySession struct {
	Spec StreamSpec

	mu      sync.Mutex
	video   []byte
	audio   []byte
	closed  bool
	aborted bool
}

type trackWriter struct {
	s   *MemorySession
	dst *[]byte
}

func (w trackWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	if w.s.closed || w.s.aborted {
		return 0, io.ErrClosedPipe
	}
	*w.dst = append(*w.dst, p...)
	return len(p), nil
}

// Video implements Session.
func (s *MemorySession) Video() io.Writer { return trackWriter{s: s, dst: &s.video} }

// Audio implements Session.
func (s *MemorySession) Audio() io.Writer { return trackWriter{s: s, dst: &s.audio} }

// Close implements Session. The returned blob is the raw audio track
// followed by the raw video track.
func (s *MemorySession) Close() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.aborted {
		return nil, fmt.Errorf("memory session already released")
	}
	s.closed = true
	out := make([]byte, 0, len(s.audio)+len(s.video))
	out = append(out, s.audio...)
	return append(out, s.video...), nil
}

// Abort implements Session.
func (s *MemorySession) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
	s.video, s.audio = nil, nil
	return nil
}

// VideoFrames reports how many whole frames were written.
func (s *MemorySession) VideoFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := s.Spec.Width * s.Spec.Height * 4
	if size == 0 {
		return 0
	}
	return len(s.video) / size
}

// AudioPCM returns a copy of the audio track.
func (s *MemorySession) AudioPCM() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.audio...)
}

// Released reports whether the session was closed or aborted, and which.
func (s *MemorySession) Released() (closed, aborted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed, s.aborted
}
