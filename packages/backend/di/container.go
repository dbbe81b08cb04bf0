package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"slidecast/packages/backend/audio"
	"slidecast/packages/backend/clock"
	"slidecast/packages/backend/config"
	"slidecast/packages/backend/narration"
	"slidecast/packages/backend/pipeline"
	"slidecast/packages/backend/postgres"
	"slidecast/packages/backend/queue"
	"slidecast/packages/backend/recorder"
	"slidecast/packages/backend/render"
	"slidecast/packages/backend/slide"
	"slidecast/packages/backend/status"
	"slidecast/packages/backend/timeline"
)

// Container holds all service dependencies of the export pipeline.
// It enables dependency injection for both production and test environments.
type Container struct {
	Logger     *zap.SugaredLogger
	Source     narration.Source
	Decoder    audio.Decoder
	Store      narration.Store
	Cache      *narration.Cache
	Encoder    recorder.Encoder
	Clock      clock.Clock
	Publisher  status.Publisher
	History    postgres.Store
	Exporter   *pipeline.Exporter
	Redis      *redis.Client
	Queue      *queue.RedisQueue
	Subscriber *status.RedisSubscriber

	closers []func() error
}

// ContainerOption configures a container during construction.
type ContainerOption func(*Container)

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) ContainerOption {
	return func(c *Container) { c.Logger = l }
}

// WithSource sets the speech source.
func WithSource(s narration.Source) ContainerOption {
	return func(c *Container) { c.Source = s }
}

// WithDecoder sets the audio decoder used to resolve narration durations.
func WithDecoder(d audio.Decoder) ContainerOption {
	return func(c *Container) { c.Decoder = d }
}

// WithStore sets the narration cache store.
func WithStore(s narration.Store) ContainerOption {
	return func(c *Container) { c.Store = s }
}

// WithEncoder sets the video encoder.
func WithEncoder(e recorder.Encoder) ContainerOption {
	return func(c *Container) { c.Encoder = e }
}

// WithClock sets the recording clock.
func WithClock(clk clock.Clock) ContainerOption {
	return func(c *Container) { c.Clock = clk }
}

// WithPublisher sets the status publisher.
func WithPublisher(p status.Publisher) ContainerOption {
	return func(c *Container) { c.Publisher = p }
}

// WithHistory sets the export history store.
func WithHistory(h postgres.Store) ContainerOption {
	return func(c *Container) { c.History = h }
}

// WithRedis sets the Redis client used for the queue and status streams.
func WithRedis(rdb *redis.Client, queueName string) ContainerOption {
	return func(c *Container) {
		c.Redis = rdb
		c.Queue = queue.NewRedisQueue(rdb, queueName)
		c.Subscriber = status.NewRedisSubscriber(rdb)
	}
}

// NewContainer creates a container with the given options and fills the
// remaining dependencies with in-process implementations.
func NewContainer(cfg pipeline.Config, opts ...ContainerOption) *Container {
	c := &Container{}
	for _, opt := range opts {
		opt(c)
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	if c.Source == nil {
		c.Source = narration.NewStubSource(nil)
	}
	if c.Decoder == nil {
		c.Decoder = audio.NewAutoDecoder(nil)
	}
	if c.Store == nil {
		c.Store = narration.NewMemoryStore()
	}
	if c.Encoder == nil {
		c.Encoder = recorder.NewMemoryEncoder()
	}
	if c.Clock == nil {
		c.Clock = clock.RealClock{}
	}
	if c.Publisher == nil {
		c.Publisher = status.NewLogPublisher(c.Logger)
	}
	if c.History == nil {
		c.History = postgres.NewMemoryStore()
	}

	c.Cache = narration.NewCache(c.Source, narration.NewResolver(c.Decoder, c.Logger), c.Store, c.Logger)
	c.Exporter = pipeline.NewExporter(c.Cache, c.Encoder, cfg,
		pipeline.WithClock(c.Clock),
		pipeline.WithPublisher(c.Publisher),
		pipeline.WithHistory(c.History),
		pipeline.WithLogger(c.Logger),
	)
	return c
}

// NewTestContainer creates a container with all stub implementations
// for testing without external dependencies. Recordings run on a step clock
// so they finish as fast as frames can be painted. opts override the stubs.
func NewTestContainer(opts ...ContainerOption) *Container {
	cfg := pipeline.DefaultConfig()
	cfg.SampleRate = 8000
	cfg.FPS = 5
	cfg.Render = render.Options{Width: 64, Height: 36, Background: render.DefaultBackground}

	defaults := []ContainerOption{
		WithSource(narration.NewStubSource(&narration.StubSourceConfig{
			SampleRate:   8000,
			WordDuration: 200 * time.Millisecond,
		})),
		WithClock(clock.NewStepClock(time.Unix(0, 0))),
	}
	return NewContainer(cfg, append(defaults, opts...)...)
}

// Build wires the production container described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	opts := []ContainerOption{WithLogger(logger)}
	var closers []func() error
	fail := func(err error) (*Container, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, rdb.Close)
		opts = append(opts,
			WithRedis(rdb, cfg.Queue.Name),
			WithPublisher(status.Fanout{status.NewLogPublisher(logger), status.NewRedisPublisher(rdb)}),
		)
	}

	source, err := NewSource(cfg.Speech)
	if err != nil {
		return fail(err)
	}
	opts = append(opts,
		WithSource(source),
		WithDecoder(audio.NewAutoDecoder(&audio.FFmpegDecoder{Path: cfg.Audio.FFmpegPath, SampleRate: cfg.Audio.SampleRate})),
	)

	switch cfg.Cache.Backend {
	case config.CacheRedis:
		if rdb == nil {
			return fail(errors.New("cache backend redis requires redis.addr"))
		}
		opts = append(opts, WithStore(narration.NewRedisStore(rdb, cfg.Cache.Prefix, cfg.Cache.TTL)))
	default:
		opts = append(opts, WithStore(narration.NewMemoryStore()))
	}

	switch cfg.Video.Encoder {
	case config.EncoderMemory:
		opts = append(opts, WithEncoder(recorder.NewMemoryEncoder()))
	default:
		opts = append(opts, WithEncoder(recorder.NewFFmpegEncoder(cfg.Audio.FFmpegPath, logger)))
	}

	if cfg.Video.Realtime {
		opts = append(opts, WithClock(clock.RealClock{}))
	} else {
		opts = append(opts, WithClock(clock.NewStepClock(time.Now())))
	}

	if cfg.Database.URL != "" {
		store, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, store.Close)
		opts = append(opts, WithHistory(store))
	}

	c := NewContainer(PipelineConfig(cfg), opts...)
	c.closers = closers
	return c, nil
}

// NewSource builds the configured speech source.
func NewSource(cfg config.SpeechConfig) (narration.Source, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return narration.NewOpenAISource(narration.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
			Voices: map[slide.Voice]string{
				slide.VoiceMale:   cfg.OpenAI.VoiceMale,
				slide.VoiceFemale: cfg.OpenAI.VoiceFemale,
			},
		}), nil
	case config.ProviderHTTP:
		return narration.NewHTTPSource(narration.HTTPConfig{
			URL:   cfg.HTTP.URL,
			Token: cfg.HTTP.Token,
			Models: map[slide.Voice]string{
				slide.VoiceMale:   cfg.HTTP.ModelMale,
				slide.VoiceFemale: cfg.HTTP.ModelFemale,
			},
			Timeout: cfg.HTTP.Timeout,
		}), nil
	case config.ProviderStub, "":
		return narration.NewStubSource(nil), nil
	default:
		return nil, fmt.Errorf("unsupported speech provider %q", cfg.Provider)
	}
}

// PipelineConfig converts configuration into exporter settings.
func PipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		SampleRate:    cfg.Audio.SampleRate,
		MaxDurationMs: cfg.Audio.MaxDuration.Milliseconds(),
		Timeline: timeline.Options{
			GapMs:      cfg.Timeline.Gap.Milliseconds(),
			FallbackMs: cfg.Timeline.Fallback.Milliseconds(),
		},
		Render: render.Options{
			Width:        cfg.Video.Width,
			Height:       cfg.Video.Height,
			Background:   cfg.Video.Background,
			AssetsDir:    cfg.Video.AssetsDir,
			AllowedHosts: cfg.Video.BackgroundHosts,
		},
		FPS:       cfg.Video.FPS,
		Container: cfg.Video.Container,
		Language:  cfg.Speech.Language,
	}
}

// ReleaseCache drops narration clips held by this process. A Redis store is
// shared with other processes and expires through its TTL instead.
func (c *Container) ReleaseCache(ctx context.Context) error {
	if _, shared := c.Store.(*narration.RedisStore); shared {
		return nil
	}
	return c.Cache.Clear(ctx)
}

// Close releases connections opened by Build.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
