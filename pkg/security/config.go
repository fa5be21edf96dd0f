package security

import "time"

// Config holds the weights and thresholds of the risk model
type Config struct {
	SuspiciousIPPoints  int
	ConcurrentIPsPoints int
	BotUserAgentPoints  int
	UnknownDevicePoints int
	MissingDevicePoints int
	UnusualHourPoints   int
	NewAccountPoints    int

	// ConcurrentIPThreshold is the number of distinct active-session IPs that
	// counts as concurrent use
	ConcurrentIPThreshold int

	// IPHistoryWindow is how far back known IPs are looked up
	IPHistoryWindow time.Duration

	// NewAccountAge is the age below which an account counts as new
	NewAccountAge time.Duration

	// Hours in [QuietHourStart, QuietHourEnd] are usual. Outside they score.
	QuietHourStart int
	QuietHourEnd   int

	// MFAThreshold forces MFA regardless of the IP
	MFAThreshold int

	// PublicIPMFAThreshold forces MFA for non-private IPs
	PublicIPMFAThreshold int

	// Location is the server-local time zone for the hour factor
	Location *time.Location
}

// DefaultConfig returns the default risk model
func DefaultConfig() Config {
	return Config{
		SuspiciousIPPoints:    30,
		ConcurrentIPsPoints:   20,
		BotUserAgentPoints:    50,
		UnknownDevicePoints:   15,
		MissingDevicePoints:   10,
		UnusualHourPoints:     10,
		NewAccountPoints:      15,
		ConcurrentIPThreshold: 3,
		IPHistoryWindow:       30 * 24 * time.Hour,
		NewAccountAge:         7 * 24 * time.Hour,
		QuietHourStart:        6,
		QuietHourEnd:          22,
		MFAThreshold:          50,
		PublicIPMFAThreshold:  30,
		Location:              time.Local,
	}
}
