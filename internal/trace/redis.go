package trace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisSink appends events to a Redis list, one list per correlation id.
type RedisSink struct {
	client  *backend.Client
	prefix  string
	maxLen  int64
	timeout time.Duration
	owned   bool
}

type RedisOption func(*RedisSink)

// WithPrefix sets the key prefix for event lists.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSink) {
		s.prefix = prefix
	}
}

// WithMaxLen caps each list to its most recent n events.
func WithMaxLen(n int64) RedisOption {
	return func(s *RedisSink) {
		s.maxLen = n
	}
}

// WithTimeout bounds each write.
func WithTimeout(d time.Duration) RedisOption {
	return func(s *RedisSink) {
		s.timeout = d
	}
}

// NewRedisSink connects to the server at address.
func NewRedisSink(address, password string, db int, opts ...RedisOption) *RedisSink {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	s := NewRedisSinkFromClient(rdb, opts...)
	s.owned = true
	return s
}

// NewRedisSinkFromClient wraps an existing client. The caller keeps
// ownership of client.
func NewRedisSinkFromClient(client *backend.Client, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		client:  client,
		prefix:  "cognos:trace:",
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the list key holding the events of a run.
func (s *RedisSink) Key(correlationID string) string {
	return s.prefix + correlationID
}

// Write implements Sink.
func (s *RedisSink) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Kind, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.Key(ev.CorrelationID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	if s.maxLen > 0 {
		pipe.LTrim(ctx, key, -s.maxLen, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push %s: %w", key, err)
	}
	return nil
}

// Events reads back the events stored for a run.
func (s *RedisSink) Events(ctx context.Context, correlationID string) ([]Event, error) {
	raw, err := s.client.LRange(ctx, s.Key(correlationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis read: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		var ev Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Close closes the client when the sink created it.
func (s *RedisSink) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
