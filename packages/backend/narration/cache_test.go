package narration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/slide"
)

type fakeSource struct {
	calls atomic.Int64
	delay time.Duration
	data  []byte
	err   error
}

func (f *fakeSource) Synthesize(ctx context.Context, _, _ string, _ slide.Voice) ([]byte, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeSource) Health() HealthStatus { return HealthStatus{Healthy: true} }

func newTestCache(t *testing.T, src Source) (*Cache, *MemoryStore) {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()
	store := NewMemoryStore()
	return NewCache(src, NewResolver(audio.NewAutoDecoder(nil), logger), store, logger), store
}

func oneSecondWAV() []byte {
	return audio.EncodeWAV(audio.NewBuffer(1, 8000, 8000))
}

func TestCache_FetchesOncePerKey(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: oneSecondWAV()}
	cache, _ := newTestCache(t, src)
	ctx := context.Background()
	s := slide.Slide{Title: "Hello", Bullets: []string{"world"}}

	first, err := cache.GetOrFetch(ctx, s, slide.VoiceFemale, "en")
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	second, err := cache.GetOrFetch(ctx, s, slide.VoiceFemale, "en")
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}

	if src.calls.Load() != 1 {
		t.Errorf("expected one synthesis call, got %d", src.calls.Load())
	}
	if first != second {
		t.Error("expected the cached entry to be returned")
	}
	if first.DurationMs != 1000 || first.Estimated || len(first.Audio) == 0 {
		t.Errorf("unexpected entry %+v", first)
	}

	stats := cache.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Fetches != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestCache_KeyIncludesVoiceAndLanguage(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: oneSecondWAV()}
	cache, store := newTestCache(t, src)
	ctx := context.Background()
	s := slide.Slide{Title: "Hello"}

	for _, req := range []struct {
		voice slide.Voice
		lang  string
	}{{slide.VoiceFemale, "en"}, {slide.VoiceMale, "en"}, {slide.VoiceMale, "de"}, {slide.VoiceMale, "de"}} {
		if _, err := cache.GetOrFetch(ctx, s, req.voice, req.lang); err != nil {
			t.Fatalf("GetOrFetch failed: %v", err)
		}
	}

	if src.calls.Load() != 3 || store.Len() != 3 {
		t.Errorf("expected 3 calls and entries, got %d and %d", src.calls.Load(), store.Len())
	}
}

func TestCache_SharedNarrationAcrossSlides(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: oneSecondWAV()}
	cache, _ := newTestCache(t, src)
	ctx := context.Background()

	a := slide.Slide{ID: "a", SlideNumber: 1, Title: "Repeat me"}
	b := slide.Slide{ID: "b", SlideNumber: 7, Title: "Repeat me", Background: "#ffffff"}

	ea, _ := cache.GetOrFetch(ctx, a, slide.VoiceMale, "en")
	eb, _ := cache.GetOrFetch(ctx, b, slide.VoiceMale, "en")

	if src.calls.Load() != 1 {
		t.Errorf("expected one synthesis call, got %d", src.calls.Load())
	}
	if ea == nil || ea != eb {
		t.Error("expected both slides to share one entry")
	}
}

func TestCache_EmptyNarration(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: oneSecondWAV()}
	cache, store := newTestCache(t, src)

	e, err := cache.GetOrFetch(context.Background(), slide.Slide{Bullets: []string{" "}}, slide.VoiceMale, "en")
	if err != nil || e != nil {
		t.Fatalf("expected nil entry and error, got %+v, %v", e, err)
	}
	if src.calls.Load() != 0 || store.Len() != 0 {
		t.Errorf("expected no call and no write, got %d calls and %d entries", src.calls.Load(), store.Len())
	}
}

func TestCache_SynthesisFailureNotCached(t *testing.T) {
	t.Parallel()

	src := &fakeSource{err: ErrSynthesis}
	cache, store := newTestCache(t, src)
	ctx := context.Background()
	s := slide.Slide{Title: "Offline"}

	for i := 0; i < 2; i++ {
		_, err := cache.GetOrFetch(ctx, s, slide.VoiceMale, "en")
		if !errors.Is(err, ErrSynthesis) {
			t.Fatalf("expected ErrSynthesis, got %v", err)
		}
	}
	if src.calls.Load() != 2 || store.Len() != 0 {
		t.Errorf("expected retries without caching, got %d calls and %d entries", src.calls.Load(), store.Len())
	}
}

func TestCache_DecodeFailureCachedAsEstimate(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: []byte("garbage")}
	cache, _ := newTestCache(t, src)
	ctx := context.Background()
	s := slide.Slide{Title: "Unplayable"}

	e, err := cache.GetOrFetch(ctx, s, slide.VoiceMale, "en")
	if err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if !e.Estimated || len(e.Audio) != 0 || e.DurationMs != MinEstimateMs {
		t.Errorf("unexpected entry %+v", e)
	}

	if _, err := cache.GetOrFetch(ctx, s, slide.VoiceMale, "en"); err != nil {
		t.Fatalf("GetOrFetch failed: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Errorf("expected one synthesis call, got %d", src.calls.Load())
	}

	clip, err := cache.ClipFor(ctx, e)
	if err != nil || clip != nil {
		t.Errorf("expected silent clip, got %v, %v", clip, err)
	}
}

func TestCache_ConcurrentRequestsShareFetch(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: oneSecondWAV(), delay: 20 * time.Millisecond}
	cache, _ := newTestCache(t, src)
	s := slide.Slide{Title: "Busy"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrFetch(context.Background(), s, slide.VoiceFemale, "en"); err != nil {
				t.Errorf("GetOrFetch failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if src.calls.Load() != 1 {
		t.Errorf("expected one synthesis call, got %d", src.calls.Load())
	}
}

func TestCache_ClipForDecodesStoredAudio(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, &fakeSource{})
	e := &Entry{Audio: oneSecondWAV(), DurationMs: 1000}

	clip, err := cache.ClipFor(context.Background(), e)
	if err != nil {
		t.Fatalf("ClipFor failed: %v", err)
	}
	if clip.Frames() != 8000 {
		t.Errorf("expected 8000 frames, got %d", clip.Frames())
	}
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	src := &fakeSource{data: oneSecondWAV()}
	cache, store := newTestCache(t, src)
	ctx := context.Background()

	_, _ = cache.GetOrFetch(ctx, slide.Slide{Title: "x"}, slide.VoiceMale, "en")
	if err := cache.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d", store.Len())
	}
	_, _ = cache.GetOrFetch(ctx, slide.Slide{Title: "x"}, slide.VoiceMale, "en")
	if src.calls.Load() != 2 {
		t.Errorf("expected refetch after clear, got %d calls", src.calls.Load())
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	if Key("ab", "c", "en") == Key("a", "bc", "en") {
		t.Error("key parts must be separated")
	}
	if len(Key("x", slide.VoiceMale, "en")) != 64 {
		t.Error("expected hex sha256 key")
	}
}

func TestCache_Duration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	cache, _ := newTestCache(t, &fakeSource{data: oneSecondWAV()})
	if got, err := cache.Duration(ctx, slide.Slide{Title: "Hi"}, slide.VoiceFemale, "en"); err != nil || got != 1000 {
		t.Errorf("expected 1000ms, got %d, %v", got, err)
	}
	if got, err := cache.Duration(ctx, slide.Slide{}, slide.VoiceFemale, "en"); err != nil || got != 0 {
		t.Errorf("expected zero for a silent slide, got %d, %v", got, err)
	}

	failing, _ := newTestCache(t, &fakeSource{err: ErrSynthesis})
	got, err := failing.Duration(ctx, slide.Slide{Title: "Hi"}, slide.VoiceFemale, "en")
	if !errors.Is(err, ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	if got != MinEstimateMs {
		t.Errorf("expected estimate %d, got %d", MinEstimateMs, got)
	}
}
