package gcp

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/logging"

	"github.com/andywolf/spiralsync/internal/journal"
)

type fakeEntryLogger struct {
	mu       sync.Mutex
	entries  []logging.Entry
	flushes  int
	flushErr error
}

func (f *fakeEntryLogger) Log(e logging.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeEntryLogger) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func testEvent(t journal.EventType) journal.DriftEvent {
	return journal.DriftEvent{
		ID:        "evt-1",
		Seq:       4,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		AgentID:   "Z",
		Type:      t,
		Value:     0.3,
	}
}

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		eventType journal.EventType
		want      logging.Severity
	}{
		{journal.EventCollapse, logging.Critical},
		{journal.EventStabilityDegradation, logging.Warning},
		{journal.EventTimestampDrift, logging.Notice},
		{journal.EventType("other"), logging.Default},
	}
	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := SeverityFor(tt.eventType); got != tt.want {
				t.Errorf("SeverityFor(%q) = %v, want %v", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestCloudSink_Write(t *testing.T) {
	fake := &fakeEntryLogger{}
	sink := newCloudSinkWithLogger(fake, WithLabels(map[string]string{"run_id": "r1"}))

	if err := sink.Write(testEvent(journal.EventCollapse)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if len(fake.entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(fake.entries))
	}
	e := fake.entries[0]
	if e.Severity != logging.Critical {
		t.Errorf("Severity = %v, want Critical", e.Severity)
	}
	if e.InsertID != "evt-1" {
		t.Errorf("InsertID = %q", e.InsertID)
	}
	wantLabels := map[string]string{
		"component":  "spiralsync",
		"run_id":     "r1",
		"agent_id":   "Z",
		"event_type": "collapse",
	}
	for k, v := range wantLabels {
		if e.Labels[k] != v {
			t.Errorf("Labels[%q] = %q, want %q", k, e.Labels[k], v)
		}
	}
	if payload, ok := e.Payload.(journal.DriftEvent); !ok || payload.Value != 0.3 {
		t.Errorf("Payload = %#v", e.Payload)
	}
}

func TestCloudSink_Close(t *testing.T) {
	fake := &fakeEntryLogger{flushErr: errors.New("flush failed")}
	closed := 0
	sink := newCloudSinkWithLogger(fake)
	sink.closeFn = func() error { closed++; return nil }

	if err := sink.Close(); err == nil {
		t.Error("Close() expected flush error")
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if closed != 1 || fake.flushes != 1 {
		t.Errorf("closed = %d, flushes = %d, want 1 and 1", closed, fake.flushes)
	}
	if err := sink.Write(testEvent(journal.EventCollapse)); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write() after Close() error = %v, want ErrSinkClosed", err)
	}
	if err := sink.Flush(); err != nil {
		t.Errorf("Flush() after Close() error = %v", err)
	}
}

func TestCloudSink_AsJournalSink(t *testing.T) {
	fake := &fakeEntryLogger{}
	j := journal.New(journal.WithSink(newCloudSinkWithLogger(fake)))

	if _, err := j.Append("X", journal.EventTimestampDrift, 60); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := j.Append("X", journal.EventStabilityDegradation, 0.8); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(fake.entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(fake.entries))
	}
	if fake.entries[1].Severity != logging.Warning {
		t.Errorf("second entry severity = %v", fake.entries[1].Severity)
	}
}

func TestAgentSink_Write(t *testing.T) {
	var buf bytes.Buffer
	sink := NewAgentSink(&buf)

	if err := sink.Write(testEvent(journal.EventStabilityDegradation)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry["severity"] != "WARNING" {
		t.Errorf("severity = %v", entry["severity"])
	}
	if entry["time"] != "2025-03-01T12:00:00Z" {
		t.Errorf("time = %v", entry["time"])
	}
	labels, _ := entry["logging.googleapis.com/labels"].(map[string]any)
	if labels["agent_id"] != "Z" {
		t.Errorf("labels = %v", labels)
	}
	event, _ := entry["event"].(map[string]any)
	if event["event_type"] != "stability_degradation" {
		t.Errorf("event = %v", event)
	}
}
