package narration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/slide"
)

// Entry is one cached narration clip. Entries are immutable once stored.
type Entry struct {
	Key  string `json:"key"`
	Text string `json:"text"`
	// Audio is empty when the synthesized bytes could not be decoded.
	Audio      []byte `json:"audio,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Estimated  bool   `json:"estimated,omitempty"`

	// Clip holds decoded samples when the entry came from this process.
	Clip *audio.Buffer `json:"-"`
}

// Store is a content-addressed entry store.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Put stores e under key unless the key is already present.
	Put(ctx context.Context, key string, e *Entry) error
	Clear(ctx context.Context) error
}

// Key returns the content address of a narration request.
func Key(text string, voice slide.Voice, language string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(language))
	return hex.EncodeToString(h.Sum(nil))
}

// CacheStats counts cache traffic.
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Fetches int64 `json:"fetches"`
}

// Cache fetches narration through a Source and remembers it by content.
// Concurrent requests for the same key share one fetch.
type Cache struct {
	source   Source
	resolver *Resolver
	store    Store
	logger   *zap.SugaredLogger
	group    singleflight.Group

	hits, misses, fetches atomic.Int64
}

// NewCache creates a cache.
func NewCache(source Source, resolver *Resolver, store Store, logger *zap.SugaredLogger) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Cache{source: source, resolver: resolver, store: store, logger: logger}
}

// GetOrFetch returns the narration of s for voice and language. It returns
// nil without calling the source when the slide has nothing to say.
// Synthesis failures are returned and not cached; undecodable audio is
// cached with an estimated duration and no audio.
func (c *Cache) GetOrFetch(ctx context.Context, s slide.Slide, voice slide.Voice, language string) (*Entry, error) {
	text := BuildText(s)
	if text == "" {
		return nil, nil
	}
	key := Key(text, voice, language)

	if e, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.Warnw("narration cache read failed", "error", err, "key", key)
	} else if ok {
		c.hits.Add(1)
		return e, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		if e, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return e, nil
		}
		return c.fetch(ctx, key, text, voice, language)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

func (c *Cache) fetch(ctx context.Context, key, text string, voice slide.Voice, language string) (*Entry, error) {
	c.fetches.Add(1)
	data, err := c.source.Synthesize(ctx, text, language, voice)
	if err != nil {
		return nil, fmt.Errorf("synthesize %s: %w", key[:12], err)
	}

	res := c.resolver.Resolve(ctx, data, text)
	e := &Entry{
		Key:        key,
		Text:       text,
		DurationMs: res.DurationMs,
		Estimated:  res.Estimated,
		Clip:       res.Clip,
	}
	if !res.Estimated {
		e.Audio = data
	}

	if err := c.store.Put(ctx, key, e); err != nil {
		c.logger.Warnw("narration cache write failed", "error", err, "key", key)
	}
	return e, nil
}

// Duration returns the playback duration of the narration of s, or zero when
// the slide has nothing to say. When synthesis fails the estimated duration
// is returned together with the error.
func (c *Cache) Duration(ctx context.Context, s slide.Slide, voice slide.Voice, language string) (int64, error) {
	e, err := c.GetOrFetch(ctx, s, voice, language)
	if err != nil {
		return EstimateDurationMs(BuildText(s)), err
	}
	if e == nil {
		return 0, nil
	}
	return e.DurationMs, nil
}

// ClipFor returns the decoded samples of e, decoding stored audio when the
// entry was loaded without them. It returns nil for silent entries.
func (c *Cache) ClipFor(ctx context.Context, e *Entry) (*audio.Buffer, error) {
	if e == nil || len(e.Audio) == 0 {
		return nil, nil
	}
	if e.Clip != nil {
		return e.Clip, nil
	}
	return c.resolver.Decode(ctx, e.Audio)
}

// Clear drops every cached entry. It is called when the session ends.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Fetches: c.fetches.Load()}
}

// Source returns the underlying speech source.
func (c *Cache) Source() Source {
	return c.source
}
