// Package telemetry records pipeline stage events. Emission is
// fire-and-forget: a slow or failing sink must never block or fail a query.
package telemetry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is one stage transition within a query pipeline.
type Event struct {
	QueryID  string
	Stage    string
	Status   string // started, completed, failed
	Metadata map[string]any
	Duration time.Duration
	At       time.Time
}

// Tracker receives stage events. Implementations must be non-blocking and
// must not panic.
type Tracker interface {
	StageStarted(queryID, stage string, metadata map[string]any)
	StageCompleted(queryID, stage string, metadata map[string]any, d time.Duration)
	StageFailed(queryID, stage string, err error, d time.Duration)
}

// NopTracker drops all events.
type NopTracker struct{}

func (NopTracker) StageStarted(string, string, map[string]any)                 {}
func (NopTracker) StageCompleted(string, string, map[string]any, time.Duration) {}
func (NopTracker) StageFailed(string, string, error, time.Duration)             {}

// LogTracker writes events to a zerolog logger through a buffered channel.
// Events are dropped when the buffer is full rather than blocking the
// pipeline.
type LogTracker struct {
	ch  chan Event
	log zerolog.Logger
}

// NewLogTracker starts the drain goroutine. Close releases it.
func NewLogTracker(log zerolog.Logger, buffer int) *LogTracker {
	if buffer <= 0 {
		buffer = 256
	}
	t := &LogTracker{ch: make(chan Event, buffer), log: log}
	go t.drain()
	return t
}

func (t *LogTracker) drain() {
	for e := range t.ch {
		ev := t.log.Debug().
			Str("query_id", e.QueryID).
			Str("stage", e.Stage).
			Str("status", e.Status).
			Dur("duration", e.Duration)
		for k, v := range e.Metadata {
			ev = ev.Interface(k, v)
		}
		ev.Msg("pipeline stage")
	}
}

func (t *LogTracker) emit(e Event) {
	e.At = time.Now()
	select {
	case t.ch <- e:
	default:
		// Telemetry loss is acceptable; query latency is not.
	}
}

func (t *LogTracker) StageStarted(queryID, stage string, md map[string]any) {
	t.emit(Event{QueryID: queryID, Stage: stage, Status: "started", Metadata: md})
}

func (t *LogTracker) StageCompleted(queryID, stage string, md map[string]any, d time.Duration) {
	t.emit(Event{QueryID: queryID, Stage: stage, Status: "completed", Metadata: md, Duration: d})
}

func (t *LogTracker) StageFailed(queryID, stage string, err error, d time.Duration) {
	t.emit(Event{QueryID: queryID, Stage: stage, Status: "failed", Metadata: map[string]any{"error": err.Error()}, Duration: d})
}

// Close stops the drain goroutine. Pending events are flushed.
func (t *LogTracker) Close() { close(t.ch) }

// MemoryTracker stores events in memory for tests.
type MemoryTracker struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryTracker() *MemoryTracker { return &MemoryTracker{} }

func (m *MemoryTracker) record(e Event) {
	e.At = time.Now()
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *MemoryTracker) StageStarted(queryID, stage string, md map[string]any) {
	m.record(Event{QueryID: queryID, Stage: stage, Status: "started", Metadata: md})
}

func (m *MemoryTracker) StageCompleted(queryID, stage string, md map[string]any, d time.Duration) {
	m.record(Event{QueryID: queryID, Stage: stage, Status: "completed", Metadata: md, Duration: d})
}

func (m *MemoryTracker) StageFailed(queryID, stage string, err error, d time.Duration) {
	m.record(Event{QueryID: queryID, Stage: stage, Status: "failed", Metadata: map[string]any{"error": err.Error()}, Duration: d})
}

// Events returns a copy of everything recorded so far.
func (m *MemoryTracker) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}
