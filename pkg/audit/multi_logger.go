package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans events out to several sinks
type MultiLogger struct {
	helpers
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a logger writing to every destination. It is
// asynchronous by default: Log returns before the sinks finish.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, len(loggers)*16+1),
	}
	m.helpers = helpers{log: m.Log}
	return m
}

// SetAsync sets whether logging should be asynchronous
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}
	if m.async {
		m.logAsync(ctx, event)
		return nil
	}
	return m.logSync(ctx, event)
}

func (m *MultiLogger) logSync(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// logAsync detaches from ctx cancellation so a finished request does not
// abort its own audit writes
func (m *MultiLogger) logAsync(ctx context.Context, event *AuditEvent) {
	detached := context.WithoutCancel(ctx)
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			if err := l.Log(detached, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
		}(logger)
	}
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains errors collected during async logging
func (m *MultiLogger) GetErrors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes every sink
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}
	return firstErr
}
