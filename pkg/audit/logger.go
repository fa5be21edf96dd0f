package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Logger is the interface for audit sinks
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// LogAuthorization logs an authorization decision
	LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error

	// LogDataMutation logs a change to authorization data
	LogDataMutation(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error

	// LogSecurity logs a security event with free-form metadata
	LogSecurity(ctx context.Context, eventType EventType, userID *int64, status EventStatus, message string, metadata map[string]interface{}) error

	// Close flushes and releases the sink
	Close() error
}

// helpers implements the convenience methods of Logger on top of a log function
type helpers struct {
	log func(ctx context.Context, event *AuditEvent) error
}

func (h helpers) LogAuthorization(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, status EventStatus, message string) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	return h.log(ctx, event)
}

func (h helpers) LogDataMutation(ctx context.Context, eventType EventType, userID *int64, resourceType ResourceType, resourceID string, changes *ChangeDetails, message string) error {
	event := buildBaseEvent(ctx, eventType, EventStatusSuccess)
	event.UserID = userID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return h.log(ctx, event)
}

func (h helpers) LogSecurity(ctx context.Context, eventType EventType, userID *int64, status EventStatus, message string, metadata map[string]interface{}) error {
	event := buildBaseEvent(ctx, eventType, status)
	event.UserID = userID
	event.ResourceType = ResourceTypeUser
	event.Message = message
	for k, v := range metadata {
		event.Metadata[k] = v
	}
	return h.log(ctx, event)
}

// contextKey is the type for context keys
type contextKey string

// AuditLoggerKey is the context key for the audit logger
const AuditLoggerKey contextKey = "audit_logger"

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, AuditLoggerKey, logger)
}

// FromContext retrieves the audit logger from context
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NoOp()
}

// NoOp returns a logger that discards every event
func NoOp() Logger {
	l := &noOpLogger{}
	l.helpers = helpers{log: l.Log}
	return l
}

type noOpLogger struct {
	helpers
}

func (l *noOpLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

func (l *noOpLogger) Close() error {
	return nil
}

// buildBaseEvent creates an event populated from request context
func buildBaseEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.RequestID(ctx),
		IPAddress: contextkeys.ClientIP(ctx),
		UserAgent: contextkeys.UserAgent(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// NewEvent creates an event populated from request context, for callers that
// need fields the convenience methods do not set
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *AuditEvent {
	return buildBaseEvent(ctx, eventType, status)
}

// Dispatch logs event and reports a failure to log instead of returning it.
// Authorization decisions never depend on the audit sink.
func Dispatch(ctx context.Context, logger Logger, event *AuditEvent, log *observability.Logger) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil && log != nil {
		log.WithError(err).WithField("event_type", string(event.EventType)).Warn("failed to record audit event")
	}
}
