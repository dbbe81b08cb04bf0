package narration

import (
	"context"
	"strings"
	"testing"

	"slidecast/packages/backend/audio"
)

func TestEstimateDurationMs(t *testing.T) {
	t.Parallel()

	if got := EstimateDurationMs(""); got != MinEstimateMs {
		t.Errorf("empty text: expected floor, got %d", got)
	}

	// 750 characters is 150 words, one minute
	if got := EstimateDurationMs(strings.Repeat("a", 750)); got != 60000 {
		t.Errorf("expected 60000 for 150 words, got %d", got)
	}

	prev := int64(0)
	for n := 0; n <= 2000; n += 7 {
		got := EstimateDurationMs(strings.Repeat("x", n))
		if got < MinEstimateMs {
			t.Fatalf("length %d: estimate %d below floor", n, got)
		}
		if got < prev {
			t.Fatalf("length %d: estimate decreased from %d to %d", n, prev, got)
		}
		prev = got
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	r := NewResolver(audio.NewAutoDecoder(nil), nil)
	ctx := context.Background()

	wav := audio.EncodeWAV(audio.NewBuffer(1, 11025, 22050))
	res := r.Resolve(ctx, wav, "ignored")
	if res.Estimated || res.DurationMs != 500 || res.Clip == nil {
		t.Errorf("expected exact 500ms decode, got %+v", res)
	}

	text := strings.Repeat("word ", 100)
	res = r.Resolve(ctx, []byte("definitely not audio"), text)
	if !res.Estimated || res.Clip != nil {
		t.Errorf("expected estimate without clip, got %+v", res)
	}
	if res.DurationMs != EstimateDurationMs(text) {
		t.Errorf("expected %d, got %d", EstimateDurationMs(text), res.DurationMs)
	}
}
