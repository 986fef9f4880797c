package validation

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// SourceURLValidator checks URL shaped tracker sources before any request is
// made on their behalf.
type SourceURLValidator struct {
	AllowLocalhost  bool
	AllowPrivateIPs bool
	MaxLength       int
}

func NewSourceURLValidator() *SourceURLValidator {
	return &SourceURLValidator{
		MaxLength: 2048,
	}
}

// NewPermissiveSourceURLValidator allows loopback and private hosts, for local
// development and tests.
func NewPermissiveSourceURLValidator() *SourceURLValidator {
	return &SourceURLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

// NormalizeURL prepends https:// when the input has no http(s) scheme and
// parses the result. ok is false when the input does not look like a URL
// with a host.
func NormalizeURL(input string) (u *url.URL, ok bool) {
	input = strings.TrimSpace(input)
	if input == "" || strings.ContainsAny(input, " \t\n") {
		return nil, false
	}
	lower := strings.ToLower(input)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		input = "https://" + input
	}
	u, err := url.Parse(input)
	if err != nil || u.Hostname() == "" {
		return nil, false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u, true
}

// ValidateAndNormalize returns the normalized form of input or the reason it
// cannot be tracked.
func (v *SourceURLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", fmt.Errorf("URL cannot be empty")
	}
	if v.MaxLength > 0 && len(input) > v.MaxLength {
		return "", fmt.Errorf("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'`") {
		return "", fmt.Errorf("URL contains invalid characters")
	}

	u, ok := NormalizeURL(input)
	if !ok {
		return "", fmt.Errorf("URL must have a valid hostname")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL must use http or https protocol")
	}

	if err := v.checkHost(u.Hostname()); err != nil {
		return "", err
	}
	if strings.Contains(u.Path, "..") {
		return "", fmt.Errorf("directory traversal patterns not allowed in URL path")
	}
	q := strings.ToLower(u.RawQuery)
	if strings.Contains(q, "<script") || strings.Contains(q, "javascript:") {
		return "", fmt.Errorf("suspicious query parameters detected")
	}

	return u.String(), nil
}

func (v *SourceURLValidator) checkHost(hostname string) error {
	if !v.AllowLocalhost && isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not permitted")
	}

	if addr, err := netip.ParseAddr(hostname); err == nil {
		if addr.IsUnspecified() || addr == netip.MustParseAddr("255.255.255.255") {
			return fmt.Errorf("suspicious hostname detected")
		}
		if !v.AllowPrivateIPs && isPrivate(addr) {
			return fmt.Errorf("private IP addresses are not permitted")
		}
		return nil
	}

	if hostname == "localhost.com" {
		return fmt.Errorf("suspicious hostname detected")
	}
	return nil
}

func isLocalhost(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

func isPrivate(addr netip.Addr) bool {
	return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
}
