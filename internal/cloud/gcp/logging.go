package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"

	"github.com/andywolf/spiralsync/internal/journal"
)

// DefaultLogID is the Cloud Logging log name drift events are written to.
const DefaultLogID = "spiral-drift"

// ErrSinkClosed is returned when writing to a closed sink.
var ErrSinkClosed = errors.New("sink is closed")

// SeverityFor maps a drift event type to a Cloud Logging severity.
func SeverityFor(t journal.EventType) logging.Severity {
	switch t {
	case journal.EventCollapse:
		return logging.Critical
	case journal.EventStabilityDegradation:
		return logging.Warning
	case journal.EventTimestampDrift:
		return logging.Notice
	default:
		return logging.Default
	}
}

// entryLogger is the subset of *logging.Logger used by CloudSink.
type entryLogger interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudSink writes drift events to Cloud Logging through the client library.
type CloudSink struct {
	logger  entryLogger
	closeFn func() error
	labels  map[string]string
	mu      sync.Mutex
	closed  bool
}

// CloudSinkOption configures a CloudSink
type CloudSinkOption func(*cloudSinkOptions)

type cloudSinkOptions struct {
	logID      string
	labels     map[string]string
	clientOpts []option.ClientOption
	onError    func(error)
}

// WithLogID overrides DefaultLogID.
func WithLogID(logID string) CloudSinkOption {
	return func(o *cloudSinkOptions) {
		if logID != "" {
			o.logID = logID
		}
	}
}

// WithLabels adds labels to every entry written by the sink
func WithLabels(labels map[string]string) CloudSinkOption {
	return func(o *cloudSinkOptions) {
		for k, v := range labels {
			o.labels[k] = v
		}
	}
}

// WithClientOptions passes options through to the Cloud Logging client.
func WithClientOptions(opts ...option.ClientOption) CloudSinkOption {
	return func(o *cloudSinkOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithErrorHandler receives asynchronous delivery errors from the client.
func WithErrorHandler(fn func(error)) CloudSinkOption {
	return func(o *cloudSinkOptions) {
		o.onError = fn
	}
}

func newCloudSinkOptions(opts []CloudSinkOption) cloudSinkOptions {
	o := cloudSinkOptions{
		logID:  DefaultLogID,
		labels: map[string]string{"component": "spiralsync"},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewCloudSink creates a sink backed by a Cloud Logging client for project.
func NewCloudSink(ctx context.Context, project string, opts ...CloudSinkOption) (*CloudSink, error) {
	if project == "" {
		return nil, fmt.Errorf("project is required for the cloud logging sink")
	}
	o := newCloudSinkOptions(opts)

	client, err := logging.NewClient(ctx, "projects/"+project, o.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	if o.onError != nil {
		client.OnError = o.onError
	}

	return &CloudSink{
		logger:  client.Logger(o.logID),
		closeFn: client.Close,
		labels:  o.labels,
	}, nil
}

func newCloudSinkWithLogger(l entryLogger, opts ...CloudSinkOption) *CloudSink {
	o := newCloudSinkOptions(opts)
	return &CloudSink{logger: l, labels: o.labels}
}

// Write implements journal.Sink. Delivery is asynchronous; failures are
// reported to the error handler.
func (s *CloudSink) Write(event journal.DriftEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}

	s.logger.Log(logging.Entry{
		Timestamp: event.Timestamp,
		Severity:  SeverityFor(event.Type),
		InsertID:  event.ID,
		Labels:    entryLabels(s.labels, event),
		Payload:   event,
	})
	return nil
}

// Flush blocks until buffered entries have been sent.
func (s *CloudSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	return s.logger.Flush()
}

// Close flushes remaining entries and releases the client.
func (s *CloudSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.logger.Flush()
	if s.closeFn != nil {
		err = errors.Join(err, s.closeFn())
	}
	return err
}

func entryLabels(base map[string]string, event journal.DriftEvent) map[string]string {
	labels := make(map[string]string, len(base)+2)
	for k, v := range base {
		labels[k] = v
	}
	labels["agent_id"] = event.AgentID
	labels["event_type"] = string(event.Type)
	return labels
}

// structuredEntry is the JSON line format understood by the Cloud Logging agent.
type structuredEntry struct {
	Severity string             `json:"severity"`
	Message  string             `json:"message"`
	Time     string             `json:"time"`
	Labels   map[string]string  `json:"logging.googleapis.com/labels,omitempty"`
	InsertID string             `json:"logging.googleapis.com/insertId,omitempty"`
	Event    journal.DriftEvent `json:"event"`
}

// AgentSink writes drift events as structured JSON lines. On GCP VMs the
// logging agent forwards these from stderr with the right severity.
type AgentSink struct {
	writer io.Writer
	labels map[string]string
	mu     sync.Mutex
}

// NewAgentSink creates a structured JSON sink writing to w
func NewAgentSink(w io.Writer, opts ...CloudSinkOption) *AgentSink {
	o := newCloudSinkOptions(opts)
	return &AgentSink{writer: w, labels: o.labels}
}

// Write implements journal.Sink.
func (s *AgentSink) Write(event journal.DriftEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := structuredEntry{
		Severity: strings.ToUpper(SeverityFor(event.Type).String()),
		Message:  fmt.Sprintf("%s on agent %s", event.Type, event.AgentID),
		Time:     event.Timestamp.UTC().Format(time.RFC3339Nano),
		Labels:   entryLabels(s.labels, event),
		InsertID: event.ID,
		Event:    event,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	if _, err := fmt.Fprintf(s.writer, "%s\n", data); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

var (
	_ journal.Sink = (*CloudSink)(nil)
	_ journal.Sink = (*AgentSink)(nil)
)
