package routing

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// queryPreviewLen bounds how much query text a decision record keeps.
const queryPreviewLen = 120

// DecisionLog is an append-only ring of routing decisions for telemetry.
// Records are never mutated after append; old entries are overwritten once
// capacity wraps.
type DecisionLog struct {
	mu      sync.Mutex
	entries []types.RoutingDecisionRecord
	next    int
	full    bool
}

// NewDecisionLog creates a ring holding up to capacity records.
func NewDecisionLog(capacity int) *DecisionLog {
	if capacity <= 0 {
		capacity = 128
	}
	return &DecisionLog{entries: make([]types.RoutingDecisionRecord, capacity)}
}

// Record appends one decision.
func (l *DecisionLog) Record(query string, a Assessment) {
	preview := query
	if len(preview) > queryPreviewLen {
		cut := queryPreviewLen
		// Back off to a rune boundary so the preview stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	rec := types.RoutingDecisionRecord{
		Query:          preview,
		Tier:           a.Tier,
		Classification: string(a.Classification),
		Score:          a.Score,
		TimestampUnix:  time.Now().Unix(),
	}
	l.mu.Lock()
	l.entries[l.next] = rec
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
	l.mu.Unlock()
}

// Recent returns up to n most recent decisions, newest first.
func (l *DecisionLog) Recent(n int) []types.RoutingDecisionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]types.RoutingDecisionRecord, 0, n)
	for i := 0; i < n; i++ {
		idx := (l.next - 1 - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
