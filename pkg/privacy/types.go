package privacy

import (
	"time"

	"github.com/platinummonkey/tenantguard/pkg/apperr"
)

// Visibility is the audience allowed to see a field
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityPrivate      Visibility = "private"
	VisibilityOrganization Visibility = "organization"
	VisibilityDepartment   Visibility = "department"
)

// Valid reports whether v is a known level
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityOrganization, VisibilityDepartment:
		return true
	}
	return false
}

// Field is a sensitive part of a user's profile
type Field string

const (
	FieldProfile      Field = "profile"
	FieldEmail        Field = "email"
	FieldPhone        Field = "phone"
	FieldActivity     Field = "activity"
	FieldOnlineStatus Field = "online_status"
)

// Fields lists every field in redaction order
var Fields = []Field{FieldProfile, FieldEmail, FieldPhone, FieldActivity, FieldOnlineStatus}

// SearchBy is the attribute a user is looked up by
type SearchBy string

const (
	SearchByEmail SearchBy = "email"
	SearchByName  SearchBy = "name"
)

// Settings are one user's privacy preferences
type Settings struct {
	UserID             int64      `json:"user_id"`
	ProfileVisibility  Visibility `json:"profile_visibility"`
	EmailVisibility    Visibility `json:"email_visibility"`
	PhoneVisibility    Visibility `json:"phone_visibility"`
	ActivityVisibility Visibility `json:"activity_visibility"`

	ShowOnlineStatus    bool `json:"show_online_status"`
	AllowDirectMessages bool `json:"allow_direct_messages"`
	SearchableByEmail   bool `json:"searchable_by_email"`
	SearchableByName    bool `json:"searchable_by_name"`

	UpdatedAt time.Time `json:"updated_at"`

	// Stored is false when the settings are defaults rather than a saved row
	Stored bool `json:"-"`
}

// DefaultSettings returns the settings of a user who never saved any
func DefaultSettings(userID int64) Settings {
	return Settings{
		UserID:              userID,
		ProfileVisibility:   VisibilityOrganization,
		EmailVisibility:     VisibilityOrganization,
		PhoneVisibility:     VisibilityPrivate,
		ActivityVisibility:  VisibilityOrganization,
		ShowOnlineStatus:    true,
		AllowDirectMessages: true,
		SearchableByEmail:   true,
		SearchableByName:    true,
	}
}

// Visibility returns the stored level for a field. OnlineStatus follows
// ActivityVisibility.
func (s Settings) Visibility(field Field) (Visibility, bool) {
	switch field {
	case FieldProfile:
		return s.ProfileVisibility, true
	case FieldEmail:
		return s.EmailVisibility, true
	case FieldPhone:
		return s.PhoneVisibility, true
	case FieldActivity, FieldOnlineStatus:
		return s.ActivityVisibility, true
	}
	return "", false
}

// Validate checks every visibility level
func (s Settings) Validate() error {
	if s.UserID <= 0 {
		return apperr.Validation("user id is required")
	}
	levels := map[string]Visibility{
		"profile_visibility":  s.ProfileVisibility,
		"email_visibility":    s.EmailVisibility,
		"phone_visibility":    s.PhoneVisibility,
		"activity_visibility": s.ActivityVisibility,
	}
	for name, level := range levels {
		if !level.Valid() {
			return apperr.Validation("invalid %s %q", name, level)
		}
	}
	return nil
}

func (s Settings) snapshot() map[string]interface{} {
	return map[string]interface{}{
		"profile_visibility":    string(s.ProfileVisibility),
		"email_visibility":      string(s.EmailVisibility),
		"phone_visibility":      string(s.PhoneVisibility),
		"activity_visibility":   string(s.ActivityVisibility),
		"show_online_status":    s.ShowOnlineStatus,
		"allow_direct_messages": s.AllowDirectMessages,
		"searchable_by_email":   s.SearchableByEmail,
		"searchable_by_name":    s.SearchableByName,
	}
}

// UserRecord is the viewable projection of a user. ID and DisplayName are
// always visible.
type UserRecord struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`

	// profile
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`

	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	// activity
	LastActivity string `json:"last_activity,omitempty"`
	LastLogin    string `json:"last_login,omitempty"`

	OnlineStatus string `json:"online_status,omitempty"`
}

// Redacted replaces hidden values
const Redacted = "***"

func (r *UserRecord) redact(field Field) {
	switch field {
	case FieldProfile:
		r.FirstName = Redacted
		r.LastName = Redacted
		r.JobTitle = Redacted
		r.Bio = Redacted
		r.AvatarURL = Redacted
	case FieldEmail:
		r.Email = Redacted
	case FieldPhone:
		r.Phone = Redacted
	case FieldActivity:
		r.LastActivity = Redacted
		r.LastLogin = Redacted
	case FieldOnlineStatus:
		r.OnlineStatus = Redacted
	}
}
