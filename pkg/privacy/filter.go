package privacy

import (
	"context"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Filter decides which parts of a user's profile a viewer may see
type Filter struct {
	settings SettingsSource
	orgs     directory.OrganizationDirectory
	users    directory.UserDirectory
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics
}

// FilterOption configures a Filter
type FilterOption func(*Filter)

// WithMetrics counts visibility decisions per field
func WithMetrics(metrics *observability.Metrics) FilterOption {
	return func(f *Filter) { f.metrics = metrics }
}

// WithOTelMetrics records decisions through OpenTelemetry instruments
func WithOTelMetrics(metrics *observability.OTelMetrics) FilterOption {
	return func(f *Filter) { f.otel = metrics }
}

// NewFilter creates a visibility filter
func NewFilter(settings SettingsSource, orgs directory.OrganizationDirectory, users directory.UserDirectory, opts ...FilterOption) *Filter {
	f := &Filter{settings: settings, orgs: orgs, users: users}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CanView reports whether viewerID may see field of targetID. Users always
// see their own data and superusers see everything.
func (f *Filter) CanView(ctx context.Context, field Field, viewerID, targetID int64) (bool, error) {
	if _, ok := DefaultSettings(0).Visibility(field); !ok {
		return false, apperr.Validation("unknown privacy field %q", field)
	}
	privileged, err := f.privileged(ctx, viewerID, targetID)
	if err != nil {
		return false, err
	}
	if privileged {
		f.observe(ctx, field, true)
		return true, nil
	}

	settings, err := f.settings.Get(ctx, targetID)
	if err != nil {
		return false, err
	}
	allowed, err := f.decide(ctx, *settings, field, viewerID, targetID)
	if err != nil {
		return false, err
	}
	f.observe(ctx, field, allowed)
	return allowed, nil
}

// ApplyFilter returns a copy of record with every field hidden from viewerID
// replaced by Redacted
func (f *Filter) ApplyFilter(ctx context.Context, record UserRecord, viewerID int64) (UserRecord, error) {
	privileged, err := f.privileged(ctx, viewerID, record.ID)
	if err != nil {
		return UserRecord{}, err
	}
	if privileged {
		return record, nil
	}

	settings, err := f.settings.Get(ctx, record.ID)
	if err != nil {
		return UserRecord{}, err
	}

	// membership lookups are shared across fields
	scope := &scopeCache{orgs: f.orgs, viewerID: viewerID, targetID: record.ID}
	for _, field := range Fields {
		allowed, err := f.decideScoped(ctx, *settings, field, scope)
		if err != nil {
			return UserRecord{}, err
		}
		f.observe(ctx, field, allowed)
		if !allowed {
			record.redact(field)
		}
	}
	return record, nil
}

// CanSearch reports whether viewerID may find targetID by the given attribute
func (f *Filter) CanSearch(ctx context.Context, viewerID, targetID int64, by SearchBy) (bool, error) {
	privileged, err := f.privileged(ctx, viewerID, targetID)
	if err != nil || privileged {
		return privileged, err
	}
	settings, err := f.settings.Get(ctx, targetID)
	if err != nil {
		return false, err
	}
	switch by {
	case SearchByEmail:
		return settings.SearchableByEmail, nil
	case SearchByName:
		return settings.SearchableByName, nil
	}
	return false, apperr.Validation("unknown search attribute %q", by)
}

// CanMessage reports whether viewerID may send targetID a direct message
func (f *Filter) CanMessage(ctx context.Context, viewerID, targetID int64) (bool, error) {
	privileged, err := f.privileged(ctx, viewerID, targetID)
	if err != nil || privileged {
		return privileged, err
	}
	settings, err := f.settings.Get(ctx, targetID)
	if err != nil {
		return false, err
	}
	return settings.AllowDirectMessages, nil
}

func (f *Filter) privileged(ctx context.Context, viewerID, targetID int64) (bool, error) {
	if viewerID == targetID {
		return true, nil
	}
	if f.users == nil {
		return false, nil
	}
	return f.users.IsSuperuser(ctx, viewerID)
}

func (f *Filter) decide(ctx context.Context, settings Settings, field Field, viewerID, targetID int64) (bool, error) {
	return f.decideScoped(ctx, settings, field, &scopeCache{orgs: f.orgs, viewerID: viewerID, targetID: targetID})
}

func (f *Filter) decideScoped(ctx context.Context, settings Settings, field Field, scope *scopeCache) (bool, error) {
	if field == FieldOnlineStatus && !settings.ShowOnlineStatus {
		return false, nil
	}
	level, _ := settings.Visibility(field)
	switch level {
	case VisibilityPublic:
		return true, nil
	case VisibilityOrganization:
		return scope.sharesOrganization(ctx)
	case VisibilityDepartment:
		return scope.sharesDepartment(ctx)
	default:
		// private and anything unrecognised
		return false, nil
	}
}

func (f *Filter) observe(ctx context.Context, field Field, allowed bool) {
	if f.metrics != nil {
		f.metrics.PrivacyDecisionsTotal.WithLabelValues(string(field), observability.BoolLabel(allowed)).Inc()
	}
	f.otel.RecordDecision(ctx, "privacy", allowed)
}

// scopeCache memoizes the membership intersections of one viewer/target pair
type scopeCache struct {
	orgs     directory.OrganizationDirectory
	viewerID int64
	targetID int64

	org  *bool
	dept *bool
}

func (s *scopeCache) sharesOrganization(ctx context.Context) (bool, error) {
	if s.orgs == nil {
		return false, nil
	}
	if s.org == nil {
		shared, err := s.intersect(ctx, s.orgs.Organizations)
		if err != nil {
			return false, err
		}
		s.org = &shared
	}
	return *s.org, nil
}

func (s *scopeCache) sharesDepartment(ctx context.Context) (bool, error) {
	if s.orgs == nil {
		return false, nil
	}
	if s.dept == nil {
		shared, err := s.intersect(ctx, s.orgs.Departments)
		if err != nil {
			return false, err
		}
		s.dept = &shared
	}
	return *s.dept, nil
}

func (s *scopeCache) intersect(ctx context.Context, lookup func(context.Context, int64) (directory.IDSet, error)) (bool, error) {
	viewer, err := lookup(ctx, s.viewerID)
	if err != nil {
		return false, err
	}
	target, err := lookup(ctx, s.targetID)
	if err != nil {
		return false, err
	}
	return viewer.Intersects(target), nil
}
