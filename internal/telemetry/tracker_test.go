package telemetry

import (
	"errors"
	"testing"
	"time"
)

func TestMemoryTrackerRecordsInOrder(t *testing.T) {
	m := NewMemoryTracker()
	m.StageStarted("q1", "route", nil)
	m.StageCompleted("q1", "route", map[string]any{"tier": "fast"}, time.Millisecond)
	m.StageFailed("q1", "select", errors.New("no models"), time.Millisecond)

	events := m.Events()
	if len(events) != 3 {
		t.Fatalf("recorded %d events, want 3", len(events))
	}
	if events[0].Status != "started" || events[1].Status != "completed" || events[2].Status != "failed" {
		t.Fatalf("statuses = %s/%s/%s", events[0].Status, events[1].Status, events[2].Status)
	}
	if events[2].Metadata["error"] != "no models" {
		t.Fatalf("failure metadata = %v", events[2].Metadata)
	}
}

func TestMemoryTrackerEventsCopied(t *testing.T) {
	m := NewMemoryTracker()
	m.StageStarted("q1", "route", nil)
	events := m.Events()
	events[0].Stage = "mutated"
	if m.Events()[0].Stage != "route" {
		t.Fatal("Events leaked internal slice")
	}
}

func TestNopTrackerIsSafe(t *testing.T) {
	// NopTracker must accept anything without panicking.
	var tr Tracker = NopTracker{}
	tr.StageStarted("", "", nil)
	tr.StageCompleted("", "", nil, 0)
	tr.StageFailed("", "", errors.New("x"), 0)
}
