package trace

import (
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// Sink receives events. Implementations must be safe for concurrent use:
// parallel branches emit from their own goroutines.
type Sink interface {
	Write(Event) error
}

// Tracer stamps and dispatches events. A nil *Tracer is valid and discards
// everything, so callers never need to check.
type Tracer struct {
	sink   Sink
	level  Level
	clock  *Clock
	runID  string
	now    func() time.Time
	start  time.Time
	turn   atomic.Int64
	logger *slog.Logger
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithLevel sets the payload level.
func WithLevel(l Level) Option {
	return func(t *Tracer) { t.level = l }
}

// WithClock sets the sequence clock.
func WithClock(c *Clock) Option {
	return func(t *Tracer) { t.clock = c }
}

// WithIDGenerator sets the generator used for the run's correlation id.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Tracer) { t.runID = g.Generate() }
}

// WithNow overrides the wall clock. Tests pin it for stable output.
func WithNow(now func() time.Time) Option {
	return func(t *Tracer) { t.now = now }
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracer) { t.logger = l }
}

// New creates a tracer writing to sink.
func New(sink Sink, opts ...Option) *Tracer {
	t := &Tracer{
		sink:  sink,
		level: LevelMetrics,
		clock: NewClock(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.runID == "" {
		t.runID = UUIDv7Generator{}.Generate()
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.start = t.now()
	return t
}

// RunID returns the correlation id shared by every event of this tracer.
func (t *Tracer) RunID() string {
	if t == nil {
		return ""
	}
	return t.runID
}

// Level returns the configured level.
func (t *Tracer) Level() Level {
	if t == nil {
		return LevelMetrics
	}
	return t.level
}

// Full reports whether payload text should be recorded.
func (t *Tracer) Full() bool { return t.Level() == LevelFull }

// NextTurn advances the turn counter. Called once per generation.
func (t *Tracer) NextTurn() int64 {
	if t == nil {
		return 0
	}
	return t.turn.Add(1)
}

// Turn returns the current turn.
func (t *Tracer) Turn() int64 {
	if t == nil {
		return 0
	}
	return t.turn.Load()
}

// Emit records an event. Sink failures are logged and never returned:
// tracing must not change program behaviour.
func (t *Tracer) Emit(kind Kind, fields Fields) {
	t.emit(kind, fields, nil)
}

// EmitError records an event that carries an error.
func (t *Tracer) EmitError(kind Kind, fields Fields, err error) {
	t.emit(kind, fields, err)
}

func (t *Tracer) emit(kind Kind, fields Fields, err error) {
	if t == nil || t.sink == nil {
		return
	}
	now := t.now()
	ev := Event{
		Kind:          kind,
		TS:            now,
		ElapsedMS:     now.Sub(t.start).Milliseconds(),
		Turn:          t.turn.Load(),
		Seq:           t.clock.Next(),
		CorrelationID: t.runID,
		Fields:        fields,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if werr := t.sink.Write(ev); werr != nil {
		t.logger.Warn("trace sink write failed", "kind", kind, "seq", ev.Seq, "error", werr)
	}
}

// Close closes the sink if it implements io.Closer.
func (t *Tracer) Close() error {
	if t == nil || t.sink == nil {
		return nil
	}
	if c, ok := t.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
