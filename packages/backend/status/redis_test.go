package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap/zaptest"
)

func TestChannelName(t *testing.T) {
	got := channelName("export123")
	if got != "slidecast:export:export123:status" {
		t.Fatalf("unexpected channel name: %s", got)
	}
}

func TestRedisPublisherAndSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := NewRedisSubscriber(rdb).Subscribe(ctx, "export123")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stream.Close()

	event := ExportEvent{
		ExportID:  "export123",
		Stage:     StageNarration,
		State:     StateRunning,
		Detail:    "generating audio for slide 1/3",
		Timestamp: time.Unix(1700000000, 0).UTC(),
	}
	if err := NewRedisPublisher(rdb).Publish(ctx, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case got := <-stream.Events():
		if got.Detail != event.Detail || got.Stage != event.Stage || !got.Timestamp.Equal(event.Timestamp) {
			t.Errorf("unexpected event: %+v", got)
		}
	case err := <-stream.Errors():
		t.Fatalf("stream error: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestRedisPublisher_RequiresExportID(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if err := NewRedisPublisher(rdb).Publish(context.Background(), ExportEvent{Stage: StageMix}); err == nil {
		t.Fatal("expected error for missing export id")
	}
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, ExportEvent) error {
	f.calls++
	return errors.New("unavailable")
}

func TestFanout(t *testing.T) {
	t.Parallel()

	a, b := &failingPublisher{}, &failingPublisher{}
	fan := Fanout{NewLogPublisher(zaptest.NewLogger(t).Sugar()), a, b}

	if err := fan.Publish(context.Background(), ExportEvent{ExportID: "x", State: StateFailed}); err == nil {
		t.Error("expected first error to be returned")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected every publisher to be called, got %d and %d", a.calls, b.calls)
	}
}
