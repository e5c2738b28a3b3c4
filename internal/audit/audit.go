package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeDecrypt represents a response decryption.
	EventTypeDecrypt EventType = "decrypt"
	// EventTypeKeyFallback represents a read degraded to container key scope.
	EventTypeKeyFallback EventType = "key_fallback"
	// EventTypeIntegrityFailure represents a refused response whose ETag
	// copies disagreed.
	EventTypeIntegrityFailure EventType = "integrity_failure"
	// EventTypeSecretReload represents a root-secret set reload.
	EventTypeSecretReload EventType = "secret_reload"
)

// Event represents a single audit log event.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Account   string                 `json:"account,omitempty"`
	Container string                 `json:"container,omitempty"`
	Object    string                 `json:"object,omitempty"`
	ClientIP  string                 `json:"client_ip,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Outcome   string                 `json:"outcome,omitempty"`
	Success   bool                   `json:"success"`
	Error     string                 `json:"error,omitempty"`
	Duration  time.Duration          `json:"duration_ms"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *Event) error

	// LogDecrypt logs a response decryption attempt.
	LogDecrypt(account, container, object, clientIP, requestID, outcome string, success bool, err error, duration time.Duration)

	// LogKeyFallback logs a degraded read that fell back to container scope.
	LogKeyFallback(account, container, object string)

	// LogIntegrityFailure logs a refused response due to ETag mismatch.
	LogIntegrityFailure(account, container, object, clientIP, requestID string)

	// LogSecretReload logs a keymaster secret-set reload.
	LogSecretReload(activeID string, success bool, err error)
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu        sync.Mutex
	events    []*Event
	maxEvents int
	writer    EventWriter
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *Event) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:    make([]*Event, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log logs an audit event.
func (l *auditLogger) Log(event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != nil {
		// Writer failures must not fail the request being audited.
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// LogDecrypt logs a response decryption attempt.
func (l *auditLogger) LogDecrypt(account, container, object, clientIP, requestID, outcome string, success bool, err error, duration time.Duration) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeDecrypt,
		Account:   account,
		Container: container,
		Object:    object,
		ClientIP:  clientIP,
		RequestID: requestID,
		Outcome:   outcome,
		Success:   success,
		Duration:  duration,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// LogKeyFallback logs a degraded read that fell back to container scope.
func (l *auditLogger) LogKeyFallback(account, container, object string) {
	l.Log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeKeyFallback,
		Account:   account,
		Container: container,
		Object:    object,
		Success:   true,
	})
}

// LogIntegrityFailure logs a refused response due to ETag mismatch.
func (l *auditLogger) LogIntegrityFailure(account, container, object, clientIP, requestID string) {
	l.Log(&Event{
		Timestamp: time.Now(),
		EventType: EventTypeIntegrityFailure,
		Account:   account,
		Container: container,
		Object:    object,
		ClientIP:  clientIP,
		RequestID: requestID,
		Success:   false,
		Error:     "decrypted ETag copies disagree",
	})
}

// LogSecretReload logs a keymaster secret-set reload.
func (l *auditLogger) LogSecretReload(activeID string, success bool, err error) {
	event := &Event{
		Timestamp: time.Now(),
		EventType: EventTypeSecretReload,
		Outcome:   activeID,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	events := make([]*Event, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter is a default implementation that writes to stdout as JSON.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	fmt.Printf("%s\n", string(data))
	return nil
}
