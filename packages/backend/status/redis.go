package status

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// RedisPublisher publishes events on a per-export Redis channel.
type RedisPublisher struct {
	rdb *redis.Client
}

// NewRedisPublisher creates a RedisPublisher.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, event ExportEvent) error {
	if event.ExportID == "" {
		return fmt.Errorf("export id required")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if err := p.rdb.Publish(ctx, channelName(event.ExportID), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Stream is a live subscription to one export's events.
type Stream interface {
	Events() <-chan ExportEvent
	Errors() <-chan error
	Close() error
}

// RedisSubscriber subscribes to export channels.
type RedisSubscriber struct {
	rdb *redis.Client
}

// NewRedisSubscriber creates a RedisSubscriber.
func NewRedisSubscriber(rdb *redis.Client) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb}
}

// Subscribe returns a stream of events for exportID. The subscription is
// confirmed before Subscribe returns.
func (s *RedisSubscriber) Subscribe(ctx context.Context, exportID string) (Stream, error) {
	pubsub := s.rdb.Subscribe(ctx, channelName(exportID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	stream := &redisStream{
		pubsub: pubsub,
		events: make(chan ExportEvent, 8),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
	go stream.run(ctx)
	return stream, nil
}

type redisStream struct {
	pubsub    *redis.PubSub
	events    chan ExportEvent
	errors    chan error
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisStream) Events() <-chan ExportEvent { return s.events }

func (s *redisStream) Errors() <-chan error { return s.errors }

func (s *redisStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

func (s *redisStream) run(ctx context.Context) {
	defer close(s.events)
	defer close(s.errors)

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			var event ExportEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				s.errors <- fmt.Errorf("unmarshal status event: %w", err)
				return
			}
			select {
			case s.events <- event:
			case <-s.done:
				return
			case <-ctx.Done():
				_ = s.Close()
				return
			}
		}
	}
}
