// Package config loads slidecast settings from defaults, an optional YAML
// file, an optional .env file and SLIDECAST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"slidecast/packages/backend/slide"
)

// EnvPrefix prefixes every environment override, e.g. SLIDECAST_SERVER_ADDR.
const EnvPrefix = "SLIDECAST"

// Speech providers.
const (
	ProviderStub   = "stub"
	ProviderOpenAI = "openai"
	ProviderHTTP   = "http"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Video encoders.
const (
	EncoderFFmpeg = "ffmpeg"
	EncoderMemory = "memory"
)

type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Speech   SpeechConfig   `mapstructure:"speech"`
	Audio    AudioConfig    `mapstructure:"audio"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Video    VideoConfig    `mapstructure:"video"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Output   OutputConfig   `mapstructure:"output"`
	Queue    QueueConfig    `mapstructure:"queue"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type SpeechConfig struct {
	Provider string       `mapstructure:"provider"`
	Language string       `mapstructure:"language"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
	HTTP     HTTPConfig   `mapstructure:"http"`
}

type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	VoiceMale   string `mapstructure:"voice_male"`
	VoiceFemale string `mapstructure:"voice_female"`
}

type HTTPConfig struct {
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	ModelMale   string        `mapstructure:"model_male"`
	ModelFemale string        `mapstructure:"model_female"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type AudioConfig struct {
	SampleRate  int           `mapstructure:"sample_rate"`
	MaxDuration time.Duration `mapstructure:"max_duration"`
	FFmpegPath  string        `mapstructure:"ffmpeg_path"`
}

type TimelineConfig struct {
	Gap      time.Duration `mapstructure:"gap"`
	Fallback time.Duration `mapstructure:"fallback"`
}

type VideoConfig struct {
	Width     int    `mapstructure:"width"`
	Height    int    `mapstructure:"height"`
	FPS       int    `mapstructure:"fps"`
	Container string `mapstructure:"container"`
	Encoder   string `mapstructure:"encoder"`
	// Realtime records against the wall clock; false renders as fast as
	// the encoder accepts frames.
	Realtime   bool   `mapstructure:"realtime"`
	Background string `mapstructure:"background"`
	// AssetsDir holds the local image backgrounds decks may reference.
	AssetsDir string `mapstructure:"assets_dir"`
	// BackgroundHosts lists the hosts remote image backgrounds may come from.
	BackgroundHosts []string `mapstructure:"background_hosts"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type OutputConfig struct {
	Dir       string        `mapstructure:"dir"`
	Retention time.Duration `mapstructure:"retention"`
	Sweep     string        `mapstructure:"sweep"`
}

type QueueConfig struct {
	Name        string        `mapstructure:"name"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("speech.provider", ProviderStub)
	v.SetDefault("speech.language", "en")
	v.SetDefault("speech.openai.api_key", "")
	v.SetDefault("speech.openai.base_url", "")
	v.SetDefault("speech.openai.model", "gpt-4o-mini-tts")
	v.SetDefault("speech.openai.voice_male", "onyx")
	v.SetDefault("speech.openai.voice_female", "nova")
	v.SetDefault("speech.http.url", "https://api.deepgram.com/v1/speak")
	v.SetDefault("speech.http.token", "")
	v.SetDefault("speech.http.model_male", "aura-orion-en")
	v.SetDefault("speech.http.model_female", "aura-asteria-en")
	v.SetDefault("speech.http.timeout", 60*time.Second)

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.max_duration", time.Hour)
	v.SetDefault("audio.ffmpeg_path", "ffmpeg")

	v.SetDefault("timeline.gap", 2*time.Second)
	v.SetDefault("timeline.fallback", 3*time.Second)

	v.SetDefault("video.width", 1920)
	v.SetDefault("video.height", 1080)
	v.SetDefault("video.fps", 30)
	v.SetDefault("video.container", "mp4")
	v.SetDefault("video.encoder", EncoderFFmpeg)
	v.SetDefault("video.realtime", true)
	v.SetDefault("video.background", "#1E293B")
	v.SetDefault("video.assets_dir", "")
	v.SetDefault("video.background_hosts", []string{})

	v.SetDefault("cache.backend", CacheMemory)
	v.SetDefault("cache.prefix", "slidecast:narration:")
	v.SetDefault("cache.ttl", 24*time.Hour)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("database.url", "")

	v.SetDefault("output.dir", "exports")
	v.SetDefault("output.retention", 24*time.Hour)
	v.SetDefault("output.sweep", "@every 1h")

	v.SetDefault("queue.name", "slidecast:exports")
	v.SetDefault("queue.poll_timeout", 5*time.Second)
}

// NewViper returns a viper instance with defaults and environment binding.
// A .env file in the working directory is loaded first when present.
func NewViper() *viper.Viper {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path (or SLIDECAST_CONFIG) into v
// and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerations and bounds.
func (c *Config) Validate() error {
	switch c.Speech.Provider {
	case ProviderStub, ProviderOpenAI, ProviderHTTP:
	default:
		return fmt.Errorf("unsupported speech provider %q", c.Speech.Provider)
	}
	if !slide.ValidLanguage(c.Speech.Language) {
		return fmt.Errorf("speech.language %q is not a language tag like en or ar-SA", c.Speech.Language)
	}
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("unsupported cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == CacheRedis && c.Redis.Addr == "" {
		return errors.New("cache backend redis requires redis.addr")
	}
	switch c.Video.Encoder {
	case EncoderFFmpeg, EncoderMemory:
	default:
		return fmt.Errorf("unsupported video encoder %q", c.Video.Encoder)
	}
	switch c.Video.Container {
	case "mp4", "webm":
	default:
		return fmt.Errorf("unsupported video container %q", c.Video.Container)
	}
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 || c.Video.FPS <= 0 {
		return errors.New("video width, height and fps must be positive")
	}
	if c.Timeline.Gap < 0 || c.Timeline.Fallback < 0 {
		return errors.New("timeline durations must not be negative")
	}
	return nil
}
