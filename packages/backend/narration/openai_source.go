package narration

import (
	"context"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"slidecast/packages/backend/slide"
)

// OpenAIConfig configures the OpenAI speech source.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint; empty uses the default.
	BaseURL string
	Model   string
	// Voices maps narrator voices to OpenAI voice names.
	Voices map[slide.Voice]string
}

// DefaultOpenAIVoices is the narrator mapping used when none is configured.
var DefaultOpenAIVoices = map[slide.Voice]string{
	slide.VoiceMale:   "onyx",
	slide.VoiceFemale: "nova",
}

// OpenAISource synthesizes MP3 speech with the OpenAI audio API.
type OpenAISource struct {
	client openai.Client
	model  string
	voices map[slide.Voice]string
	keyed  bool
}

// NewOpenAISource creates a source from cfg.
func NewOpenAISource(cfg OpenAIConfig) *OpenAISource {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = openai.SpeechModelTTS1
	}
	voices := cfg.Voices
	if len(voices) == 0 {
		voices = DefaultOpenAIVoices
	}

	return &OpenAISource{
		client: openai.NewClient(opts...),
		model:  model,
		voices: voices,
		keyed:  cfg.APIKey != "",
	}
}

// Synthesize implements Source. The speech API detects the language from
// the input text, so language is not sent.
func (s *OpenAISource) Synthesize(ctx context.Context, text, _ string, voice slide.Voice) ([]byte, error) {
	name, ok := s.voices[voice]
	if !ok {
		return nil, fmt.Errorf("%w: no openai voice for %q", ErrSynthesis, voice)
	}

	resp, err := s.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          s.model,
		Voice:          openai.AudioSpeechNewParamsVoice(name),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read openai response: %v", ErrSynthesis, err)
	}
	return data, nil
}

// Health implements Source.
func (s *OpenAISource) Health() HealthStatus {
	if !s.keyed {
		return HealthStatus{Healthy: false, Message: "openai api key not configured"}
	}
	return HealthStatus{Healthy: true, Message: "openai speech ready"}
}
