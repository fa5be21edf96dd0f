package security

import (
	"net/netip"
	"strings"
)

// IsPrivateIP reports whether ip is a private, loopback or link-local
// address. Unparseable input is not private.
func IsPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}

var botMarkers = []string{
	"bot", "crawler", "spider", "scraper",
	"curl", "wget", "python-requests", "httpclient", "go-http-client",
	"headless", "phantomjs",
}

// IsBotUserAgent reports whether ua looks like an automated client
func IsBotUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}
