package security

import "time"

// Signal describes one authentication attempt
type Signal struct {
	UserID    int64
	IPAddress string
	UserAgent string
	DeviceID  *string
}

// Factor is one contribution to a risk score
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// Factor names
const (
	FactorSuspiciousIP  = "suspicious_ip"
	FactorConcurrentIPs = "concurrent_session_ips"
	FactorBotUserAgent  = "bot_user_agent"
	FactorUnknownDevice = "unknown_device"
	FactorMissingDevice = "missing_device"
	FactorUnusualHour   = "unusual_hour"
	FactorNewAccount    = "new_account"
)

// Assessment is the scored outcome of a Signal
type Assessment struct {
	Score   int      `json:"score"`
	Factors []Factor `json:"factors"`
}

// Has reports whether the named factor contributed
func (a Assessment) Has(name string) bool {
	for _, f := range a.Factors {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Session is an authenticated session of a user
type Session struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	IPAddress  string     `json:"ip_address"`
	UserAgent  string     `json:"user_agent"`
	DeviceID   *string    `json:"device_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt time.Time  `json:"last_seen_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	IsActive   bool       `json:"is_active"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Activity is one recorded action within a session
type Activity struct {
	SessionID string    `json:"session_id"`
	UserID    int64     `json:"user_id"`
	IPAddress string    `json:"ip_address"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}
