package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPrivateIP(t *testing.T) {
	tests := map[string]bool{
		"10.1.2.3":        true,
		"172.16.0.1":      true,
		"192.168.1.10":    true,
		"127.0.0.1":       true,
		"::1":             true,
		"fd00::1":         true,
		"169.254.1.1":     true,
		"::ffff:10.0.0.1": true,
		"203.0.113.7":     false,
		"8.8.8.8":         false,
		"2001:4860::8888": false,
		"not-an-ip":       false,
		"":                false,
	}
	for ip, want := range tests {
		assert.Equal(t, want, IsPrivateIP(ip), ip)
	}
}

func TestIsBotUserAgent(t *testing.T) {
	assert.True(t, IsBotUserAgent("Googlebot/2.1 (+http://www.google.com/bot.html)"))
	assert.True(t, IsBotUserAgent("curl/8.4.0"))
	assert.True(t, IsBotUserAgent("python-requests/2.31"))
	assert.True(t, IsBotUserAgent("Mozilla/5.0 HeadlessChrome/120.0"))
	assert.False(t, IsBotUserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 Safari/605.1.15"))
	assert.False(t, IsBotUserAgent(""))
}
