package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFilename is the default filename for the exported drift log.
const DefaultFilename = "drift_log.jsonl"

// FileSink writes DriftEvents to a JSONL file, one event per line.
// It is safe for concurrent use from multiple goroutines.
type FileSink struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

var _ Sink = (*FileSink)(nil)

// NewFileSink creates a FileSink writing to dir/drift_log.jsonl.
// If the file already exists, new events are appended.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	path := filepath.Join(dir, DefaultFilename)

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open drift log: %w", err)
	}

	return &FileSink{
		path:   path,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write appends a single event and flushes it to disk.
func (s *FileSink) Write(event DriftEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("drift log %s is closed", s.path)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	return nil
}

// Close flushes any remaining data and closes the file. Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	if err := s.writer.Flush(); err != nil {
		// Still try to close the file even if flush fails
		_ = s.file.Close()
		s.file = nil
		return fmt.Errorf("failed to flush before close: %w", err)
	}

	if err := s.file.Close(); err != nil {
		s.file = nil
		return fmt.Errorf("failed to close drift log: %w", err)
	}

	s.file = nil
	return nil
}

// Path returns the path to the drift log.
func (s *FileSink) Path() string {
	return s.path
}

// ReadEvents reads every event from a JSONL drift log, in file order.
func ReadEvents(path string) ([]DriftEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open drift log: %w", err)
	}
	defer func() { _ = file.Close() }()

	var events []DriftEvent
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event DriftEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("failed to parse event on line %d: %w", lineNum, err)
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read drift log: %w", err)
	}

	return events, nil
}

// FilterByType keeps events of the given types. No types returns all events.
func FilterByType(events []DriftEvent, types ...EventType) []DriftEvent {
	if len(types) == 0 {
		return events
	}

	typeSet := make(map[EventType]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	var filtered []DriftEvent
	for _, event := range events {
		if typeSet[event.Type] {
			filtered = append(filtered, event)
		}
	}
	return filtered
}

// FilterByAgent keeps events for agentID. An empty id returns all events.
func FilterByAgent(events []DriftEvent, agentID string) []DriftEvent {
	if agentID == "" {
		return events
	}

	var filtered []DriftEvent
	for _, event := range events {
		if event.AgentID == agentID {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
