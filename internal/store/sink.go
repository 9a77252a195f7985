package store

import (
	"context"
	"time"

	"github.com/roach88/cognos/internal/trace"
)

// Sink adapts a Store to trace.Sink. Each event is stored under its
// correlation id, which the runtime sets to the run id.
type Sink struct {
	store   *Store
	timeout time.Duration
}

// Sink returns a trace sink writing into s. The sink does not own the
// store; close the store separately.
func (s *Store) Sink() *Sink {
	return &Sink{store: s, timeout: 5 * time.Second}
}

// Write implements trace.Sink.
func (k *Sink) Write(ev trace.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	return k.store.WriteEvent(ctx, ev)
}
