package security

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// MaxScore is the upper bound of a risk score
const MaxScore = 100

// Scorer rates authentication attempts with an additive point model
type Scorer struct {
	sessions SessionSource
	users    directory.UserDirectory
	config   Config
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics
	now      func() time.Time
}

// Option configures a Scorer
type Option func(*Scorer)

// WithAudit records assessments and MFA decisions to an audit sink
func WithAudit(logger audit.Logger) Option {
	return func(s *Scorer) { s.audit = logger }
}

// WithLogger sets the logger used for best-effort failures
func WithLogger(logger *observability.Logger) Option {
	return func(s *Scorer) { s.logger = logger }
}

// WithMetrics observes scores and MFA decisions
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Scorer) { s.metrics = metrics }
}

// WithOTelMetrics records scores through OpenTelemetry instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) Option {
	return func(s *Scorer) { s.otel = metrics }
}

// WithClock overrides the scorer clock
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// NewScorer creates a scorer
func NewScorer(sessions SessionSource, users directory.UserDirectory, config Config, opts ...Option) *Scorer {
	if config.Location == nil {
		config.Location = time.Local
	}
	s := &Scorer{
		sessions: sessions,
		users:    users,
		config:   config,
		audit:    audit.NoOp(),
		logger:   observability.NewLogger(observability.WarnLevel, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates signal. The result is clamped to [0, MaxScore].
func (s *Scorer) Score(ctx context.Context, signal Signal) (assessment Assessment, err error) {
	ctx, span := observability.StartSpan(ctx, "security.Score",
		attribute.Int64("tenantguard.user_id", signal.UserID),
	)
	defer func() { observability.EndSpan(span, err) }()

	now := s.now()

	var (
		history   []string
		sessions  []Session
		createdAt time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = s.sessions.IPHistory(gctx, signal.UserID, now.Add(-s.config.IPHistoryWindow))
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = s.sessions.ActiveSessions(gctx, signal.UserID, now)
		return err
	})
	g.Go(func() error {
		var err error
		createdAt, err = s.users.AccountCreatedAt(gctx, signal.UserID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Assessment{}, err
	}

	add := func(name string, points int) {
		assessment.Factors = append(assessment.Factors, Factor{Name: name, Points: points})
		assessment.Score += points
	}

	if suspiciousIP(signal.IPAddress, history) {
		add(FactorSuspiciousIP, s.config.SuspiciousIPPoints)
	}
	if distinctIPs(sessions) >= s.config.ConcurrentIPThreshold {
		add(FactorConcurrentIPs, s.config.ConcurrentIPsPoints)
	}
	if IsBotUserAgent(signal.UserAgent) {
		add(FactorBotUserAgent, s.config.BotUserAgentPoints)
	}
	switch {
	case signal.DeviceID == nil:
		add(FactorMissingDevice, s.config.MissingDevicePoints)
	case !knownDevice(*signal.DeviceID, sessions):
		add(FactorUnknownDevice, s.config.UnknownDevicePoints)
	}
	if hour := now.In(s.config.Location).Hour(); hour < s.config.QuietHourStart || hour > s.config.QuietHourEnd {
		add(FactorUnusualHour, s.config.UnusualHourPoints)
	}
	if now.Sub(createdAt) < s.config.NewAccountAge {
		add(FactorNewAccount, s.config.NewAccountPoints)
	}

	assessment.Score = clamp(assessment.Score)
	span.SetAttributes(attribute.Int("tenantguard.risk_score", assessment.Score))

	if s.metrics != nil {
		s.metrics.RiskScore.Observe(float64(assessment.Score))
	}
	s.otel.RecordRiskScore(ctx, assessment.Score)
	s.record(ctx, signal, assessment)
	return assessment, nil
}

// ShouldRequireMFA reports whether the attempt must pass MFA: the user has
// MFA required already, or the score reaches MFAThreshold, or a non-private
// IP comes with a score of at least PublicIPMFAThreshold
func (s *Scorer) ShouldRequireMFA(ctx context.Context, userID int64, score int, ip string) (bool, error) {
	sticky, err := s.users.MFARequired(ctx, userID)
	if err != nil {
		return false, err
	}
	required := sticky ||
		score >= s.config.MFAThreshold ||
		(!IsPrivateIP(ip) && score >= s.config.PublicIPMFAThreshold)

	if s.metrics != nil {
		s.metrics.MFADecisionsTotal.WithLabelValues(observability.BoolLabel(required)).Inc()
	}
	s.otel.RecordDecision(ctx, "mfa", required)

	if required {
		event := audit.NewEvent(ctx, audit.EventTypeSecurityMFARequired, audit.EventStatusSuccess)
		event.UserID = &userID
		event.ResourceType = audit.ResourceTypeUser
		event.ResourceID = strconv.FormatInt(userID, 10)
		event.Message = "mfa required"
		event.Metadata["score"] = score
		event.Metadata["sticky"] = sticky
		if ip != "" {
			event.Metadata["ip_address"] = ip
		}
		audit.Dispatch(ctx, s.audit, event, s.logger)
	}
	return required, nil
}

func (s *Scorer) record(ctx context.Context, signal Signal, assessment Assessment) {
	event := audit.NewEvent(ctx, audit.EventTypeSecurityRiskAssessed, audit.EventStatusSuccess)
	userID := signal.UserID
	event.UserID = &userID
	event.ResourceType = audit.ResourceTypeUser
	event.ResourceID = strconv.FormatInt(userID, 10)
	event.Message = "risk assessed"
	if signal.IPAddress != "" {
		event.IPAddress = signal.IPAddress
	}
	if signal.UserAgent != "" {
		event.UserAgent = signal.UserAgent
	}

	factors := make([]string, len(assessment.Factors))
	for i, f := range assessment.Factors {
		factors[i] = f.Name
	}
	event.Metadata["score"] = assessment.Score
	event.Metadata["factors"] = factors
	if signal.DeviceID != nil {
		event.Metadata["device_id"] = *signal.DeviceID
	}
	audit.Dispatch(ctx, s.audit, event, s.logger)
}

// suspiciousIP is true for a public IP missing from a non-empty history
func suspiciousIP(ip string, history []string) bool {
	if ip == "" || IsPrivateIP(ip) || len(history) == 0 {
		return false
	}
	for _, known := range history {
		if known == ip {
			return false
		}
	}
	return true
}

func distinctIPs(sessions []Session) int {
	seen := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		if session.IPAddress != "" {
			seen[session.IPAddress] = struct{}{}
		}
	}
	return len(seen)
}

func knownDevice(deviceID string, sessions []Session) bool {
	for _, session := range sessions {
		if session.DeviceID != nil && *session.DeviceID == deviceID {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
