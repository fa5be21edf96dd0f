package audit

import (
	"context"
	"sync"
)

// MemoryLogger keeps events in memory. It backs tests and local development.
type MemoryLogger struct {
	helpers
	mu     sync.Mutex
	events []*AuditEvent
	err    error
}

// NewMemoryLogger creates an empty in-memory logger
func NewMemoryLogger() *MemoryLogger {
	l := &MemoryLogger{}
	l.helpers = helpers{log: l.Log}
	return l
}

// FailWith makes every subsequent Log call return err without recording
func (l *MemoryLogger) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Log records the event
func (l *MemoryLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, event)
	return nil
}

// Events returns a snapshot of recorded events
func (l *MemoryLogger) Events() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*AuditEvent(nil), l.events...)
}

// EventsOfType returns recorded events of one type
func (l *MemoryLogger) EventsOfType(eventType EventType) []*AuditEvent {
	var out []*AuditEvent
	for _, e := range l.Events() {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Close does nothing
func (l *MemoryLogger) Close() error {
	return nil
}
