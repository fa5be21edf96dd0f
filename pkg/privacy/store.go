package privacy

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/directory"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// SettingsSource returns the effective settings of a user
type SettingsSource interface {
	Get(ctx context.Context, userID int64) (*Settings, error)
}

// Store persists privacy settings in user_privacy_settings
type Store struct {
	db        *sql.DB
	orgs      directory.OrganizationDirectory
	orgConfig directory.OrganizationSettingsProvider
	users     directory.UserDirectory
	audit     audit.Logger
	logger    *observability.Logger
	now       func() time.Time
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithOrganizationDefaults takes defaults from the privacy.* settings of the
// user's home organization
func WithOrganizationDefaults(orgs directory.OrganizationDirectory, provider directory.OrganizationSettingsProvider) StoreOption {
	return func(s *Store) {
		s.orgs = orgs
		s.orgConfig = provider
	}
}

// WithStoreAudit records settings updates to an audit sink
func WithStoreAudit(logger audit.Logger) StoreOption {
	return func(s *Store) { s.audit = logger }
}

// WithStoreUsers lets superusers update the settings of other users
func WithStoreUsers(users directory.UserDirectory) StoreOption {
	return func(s *Store) { s.users = users }
}

// WithStoreLogger sets the logger used for best-effort failures
func WithStoreLogger(logger *observability.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithStoreClock overrides the clock used for updated_at
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a settings store
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:     db,
		audit:  audit.NoOp(),
		logger: observability.NewLogger(observability.WarnLevel, nil),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the stored settings of a user, or the defaults when none were
// saved. Nothing is written.
func (s *Store) Get(ctx context.Context, userID int64) (*Settings, error) {
	settings := Settings{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_visibility, email_visibility, phone_visibility, activity_visibility,
			show_online_status, allow_direct_messages, searchable_by_email, searchable_by_name, updated_at
		FROM user_privacy_settings
		WHERE user_id = $1
	`, userID).Scan(
		&settings.ProfileVisibility,
		&settings.EmailVisibility,
		&settings.PhoneVisibility,
		&settings.ActivityVisibility,
		&settings.ShowOnlineStatus,
		&settings.AllowDirectMessages,
		&settings.SearchableByEmail,
		&settings.SearchableByName,
		&settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return s.defaults(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get privacy settings: %w", err)
	}
	settings.Stored = true
	return &settings, nil
}

// Save validates and upserts settings
func (s *Store) Save(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = s.now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_privacy_settings
			(user_id, profile_visibility, email_visibility, phone_visibility, activity_visibility,
			 show_online_status, allow_direct_messages, searchable_by_email, searchable_by_name, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			profile_visibility = excluded.profile_visibility,
			email_visibility = excluded.email_visibility,
			phone_visibility = excluded.phone_visibility,
			activity_visibility = excluded.activity_visibility,
			show_online_status = excluded.show_online_status,
			allow_direct_messages = excluded.allow_direct_messages,
			searchable_by_email = excluded.searchable_by_email,
			searchable_by_name = excluded.searchable_by_name,
			updated_at = excluded.updated_at
	`,
		settings.UserID,
		settings.ProfileVisibility,
		settings.EmailVisibility,
		settings.PhoneVisibility,
		settings.ActivityVisibility,
		settings.ShowOnlineStatus,
		settings.AllowDirectMessages,
		settings.SearchableByEmail,
		settings.SearchableByName,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save privacy settings: %w", err)
	}
	settings.Stored = true
	return nil
}

// Update saves settings on behalf of actorID, who must be the owner or a
// superuser, and records the change
func (s *Store) Update(ctx context.Context, actorID int64, settings *Settings) error {
	if actorID != settings.UserID {
		allowed := false
		if s.users != nil {
			ok, err := s.users.IsSuperuser(ctx, actorID)
			if err != nil {
				return err
			}
			allowed = ok
		}
		if !allowed {
			return apperr.PermissionDenied("user %d may not change privacy settings of user %d", actorID, settings.UserID)
		}
	}

	before, err := s.Get(ctx, settings.UserID)
	if err != nil {
		return err
	}
	if err := s.Save(ctx, settings); err != nil {
		return err
	}

	event := audit.NewEvent(ctx, audit.EventTypePrivacySettingsUpdate, audit.EventStatusSuccess)
	event.UserID = &actorID
	event.ResourceType = audit.ResourceTypePrivacySettings
	event.ResourceID = strconv.FormatInt(settings.UserID, 10)
	event.Message = "privacy settings updated"
	event.Changes = &audit.ChangeDetails{Before: before.snapshot(), After: settings.snapshot()}
	audit.Dispatch(ctx, s.audit, event, s.logger)
	return nil
}

func (s *Store) defaults(ctx context.Context, userID int64) (*Settings, error) {
	settings := DefaultSettings(userID)
	if s.orgs == nil || s.orgConfig == nil {
		return &settings, nil
	}

	orgID, ok, err := s.orgs.HomeOrganization(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &settings, nil
	}
	values, err := s.orgConfig.OrganizationSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	applyOrganizationDefaults(&settings, values)
	return &settings, nil
}

// applyOrganizationDefaults reads "privacy.<name>" keys, or a nested
// "privacy" object, and ignores values of the wrong type
func applyOrganizationDefaults(s *Settings, values map[string]interface{}) {
	lookup := func(name string) (interface{}, bool) {
		if v, ok := values["privacy."+name]; ok {
			return v, true
		}
		if nested, ok := values["privacy"].(map[string]interface{}); ok {
			v, ok := nested[name]
			return v, ok
		}
		return nil, false
	}

	levels := map[string]*Visibility{
		"profile_visibility":  &s.ProfileVisibility,
		"email_visibility":    &s.EmailVisibility,
		"phone_visibility":    &s.PhoneVisibility,
		"activity_visibility": &s.ActivityVisibility,
	}
	for name, dst := range levels {
		if v, ok := lookup(name); ok {
			if str, ok := v.(string); ok && Visibility(str).Valid() {
				*dst = Visibility(str)
			}
		}
	}

	toggles := map[string]*bool{
		"show_online_status":    &s.ShowOnlineStatus,
		"allow_direct_messages": &s.AllowDirectMessages,
		"searchable_by_email":   &s.SearchableByEmail,
		"searchable_by_name":    &s.SearchableByName,
	}
	for name, dst := range toggles {
		if v, ok := lookup(name); ok {
			if b, ok := v.(bool); ok {
				*dst = b
			}
		}
	}
}
