package crosstenant

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platinummonkey/tenantguard/pkg/async"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Config controls auditing of cross-tenant decisions
type Config struct {
	// LogChecks emits an audit event for every decision
	LogChecks bool

	// AsyncAudit dispatches decision events on a background goroutine
	AsyncAudit bool

	// AuditTimeout bounds a single asynchronous audit write
	AuditTimeout time.Duration
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		LogChecks:    true,
		AsyncAudit:   true,
		AuditTimeout: 5 * time.Second,
	}
}

// Engine evaluates directional cross-tenant permission rules
type Engine struct {
	rules   RuleSource
	config  Config
	audit   audit.Logger
	logger  *observability.Logger
	metrics *observability.Metrics
	otel    *observability.OTelMetrics
	now     func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithAudit sets the sink for decision and expiry events
func WithAudit(logger audit.Logger) Option {
	return func(e *Engine) { e.audit = logger }
}

// WithLogger sets the logger used for best-effort failures
func WithLogger(logger *observability.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics records decision counts and latency
func WithMetrics(metrics *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = metrics }
}

// WithOTelMetrics records decisions through OpenTelemetry instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(e *Engine) { e.otel = metrics }
}

// WithClock overrides the engine clock
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a rule engine reading from rules
func NewEngine(rules RuleSource, config Config, opts ...Option) *Engine {
	if config.AuditTimeout <= 0 {
		config.AuditTimeout = DefaultConfig().AuditTimeout
	}
	e := &Engine{
		rules:  rules,
		config: config,
		audit:  audit.NoOp(),
		logger: observability.NewLogger(observability.WarnLevel, nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check decides whether req.UserID, acting from req.SourceOrgID, may exercise
// req.Permission against req.TargetOrgID. Rules are directional: a rule from
// A to B says nothing about B to A.
func (e *Engine) Check(ctx context.Context, req CheckRequest) (result Result, err error) {
	ctx, span := observability.StartSpan(ctx, "crosstenant.Check",
		attribute.Int64("tenantguard.user_id", req.UserID),
		attribute.Int64("tenantguard.source_org_id", req.SourceOrgID),
		attribute.Int64("tenantguard.target_org_id", req.TargetOrgID),
		attribute.String("tenantguard.permission", req.Permission),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	req.Now = e.at(req.Now)

	candidates, err := e.rules.Candidates(ctx, req.SourceOrgID, req.TargetOrgID, []string{req.Permission})
	if err != nil {
		return Result{}, err
	}

	result = decide(candidates, req.UserID, req.Now)
	span.SetAttributes(attribute.Bool("tenantguard.allowed", result.Allowed))
	e.observe(ctx, req, result, time.Since(start))
	return result, nil
}

// BatchCheck decides every permission in perms for the same user and
// organization pair with a single candidate lookup. Repeated codes collapse
// into one entry.
func (e *Engine) BatchCheck(ctx context.Context, req CheckRequest, perms []string) (results map[string]Result, err error) {
	ctx, span := observability.StartSpan(ctx, "crosstenant.BatchCheck",
		attribute.Int64("tenantguard.user_id", req.UserID),
		attribute.Int64("tenantguard.source_org_id", req.SourceOrgID),
		attribute.Int64("tenantguard.target_org_id", req.TargetOrgID),
		attribute.Int("tenantguard.permissions", len(perms)),
	)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	req.Now = e.at(req.Now)

	unique := make([]string, 0, len(perms))
	seen := make(map[string]bool, len(perms))
	for _, p := range perms {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}

	candidates, err := e.rules.Candidates(ctx, req.SourceOrgID, req.TargetOrgID, unique)
	if err != nil {
		return nil, err
	}

	byPermission := make(map[string][]Rule, len(unique))
	for _, rule := range candidates {
		byPermission[rule.Permission] = append(byPermission[rule.Permission], rule)
	}

	results = make(map[string]Result, len(unique))
	elapsed := time.Since(start)
	for _, p := range unique {
		res := decide(byPermission[p], req.UserID, req.Now)
		results[p] = res

		single := req
		single.Permission = p
		e.observe(ctx, single, res, elapsed)
	}
	return results, nil
}

// CleanupExpired deactivates rules whose validity has ended and returns how
// many changed
func (e *Engine) CleanupExpired(ctx context.Context) (int64, error) {
	now := e.now()
	n, err := e.rules.DeactivateExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	if e.metrics != nil {
		e.metrics.CrossTenantRulesExpiredTotal.Add(float64(n))
	}
	e.otel.RecordRulesExpired(ctx, n)

	if n > 0 {
		event := audit.NewEvent(ctx, audit.EventTypeRuleExpire, audit.EventStatusSuccess)
		event.ResourceType = audit.ResourceTypeCrossTenantRule
		event.Message = fmt.Sprintf("deactivated %d expired cross-tenant rules", n)
		event.Metadata["deactivated"] = n
		event.Metadata["cutoff"] = now.Format(time.RFC3339)
		audit.Dispatch(ctx, e.audit, event, e.logger)
	}
	return n, nil
}

func (e *Engine) at(t time.Time) time.Time {
	if t.IsZero() {
		return e.now()
	}
	return t.UTC()
}

// decide allows on the lowest-ID rule that applies to userID at t
func decide(rules []Rule, userID int64, t time.Time) Result {
	for _, rule := range rules {
		if !rule.IsActive || rule.IsDeleted {
			continue
		}
		if rule.Conditions.AppliesAt(userID, t) {
			id := rule.ID
			return Result{
				Allowed: true,
				Reason:  "matched rule " + strconv.FormatInt(rule.ID, 10),
				RuleID:  &id,
			}
		}
	}
	return Result{Allowed: false, Reason: ReasonNoMatchingRule}
}

func (e *Engine) observe(ctx context.Context, req CheckRequest, result Result, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.CrossTenantChecksTotal.WithLabelValues(observability.BoolLabel(result.Allowed)).Inc()
		e.metrics.CrossTenantCheckDuration.Observe(elapsed.Seconds())
	}
	e.otel.RecordDecision(ctx, "crosstenant", result.Allowed)

	if !e.config.LogChecks {
		return
	}

	event := e.decisionEvent(ctx, req, result)
	if e.config.AsyncAudit {
		sink := e.audit
		async.SafeGo(ctx, e.logger, e.config.AuditTimeout, "cross-tenant audit", func(ctx context.Context) error {
			return sink.Log(ctx, event)
		})
		return
	}
	audit.Dispatch(ctx, e.audit, event, e.logger)
}

func (e *Engine) decisionEvent(ctx context.Context, req CheckRequest, result Result) *audit.AuditEvent {
	status := audit.EventStatusSuccess
	if !result.Allowed {
		status = audit.EventStatusDenied
	}

	event := audit.NewEvent(ctx, audit.EventTypeAuthzCrossTenantCheck, status)
	userID := req.UserID
	targetOrg := req.TargetOrgID
	event.UserID = &userID
	event.OrganizationID = &targetOrg
	event.ResourceType = audit.ResourceTypePermission
	event.ResourceID = req.Permission
	event.Message = result.Reason
	if req.IPAddress != "" {
		event.IPAddress = req.IPAddress
	}
	if req.UserAgent != "" {
		event.UserAgent = req.UserAgent
	}

	event.Metadata["check_id"] = uuid.NewString()
	event.Metadata["user_id"] = req.UserID
	event.Metadata["source_org_id"] = req.SourceOrgID
	event.Metadata["target_org_id"] = req.TargetOrgID
	event.Metadata["permission"] = req.Permission
	event.Metadata["allowed"] = result.Allowed
	event.Metadata["ip_address"] = event.IPAddress
	event.Metadata["user_agent"] = event.UserAgent
	event.Metadata["timestamp"] = req.Now.Format(time.RFC3339)
	if result.RuleID != nil {
		event.Metadata["rule_id"] = *result.RuleID
	}
	return event
}
