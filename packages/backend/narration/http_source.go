package narration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"slidecast/packages/backend/slide"
)

// HTTPConfig configures a generic text-to-speech HTTP endpoint that accepts
// a JSON body {"text": ...} and answers with audio bytes.
type HTTPConfig struct {
	URL   string
	Token string
	// Models maps voices to the endpoint's model query parameter.
	Models  map[slide.Voice]string
	Timeout time.Duration
}

// DefaultHTTPModels matches Deepgram's Aura voices.
var DefaultHTTPModels = map[slide.Voice]string{
	slide.VoiceMale:   "aura-orion-en",
	slide.VoiceFemale: "aura-asteria-en",
}

// HTTPSource posts narration text to an HTTP speech endpoint.
type HTTPSource struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPSource creates an HTTPSource.
func NewHTTPSource(cfg HTTPConfig) *HTTPSource {
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultHTTPModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &HTTPSource{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Synthesize implements Source.
func (s *HTTPSource) Synthesize(ctx context.Context, text, language string, voice slide.Voice) ([]byte, error) {
	endpoint, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %v", ErrSynthesis, err)
	}
	q := endpoint.Query()
	if model, ok := s.cfg.Models[voice]; ok {
		q.Set("model", model)
	}
	if language != "" {
		q.Set("language", language)
	}
	endpoint.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Token "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s - %s", ErrSynthesis, resp.Status, bytes.TrimSpace(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSynthesis, err)
	}
	return data, nil
}

// Health implements Source.
func (s *HTTPSource) Health() HealthStatus {
	if s.cfg.URL == "" {
		return HealthStatus{Healthy: false, Message: "speech endpoint not configured"}
	}
	return HealthStatus{Healthy: true, Message: "http speech ready"}
}
