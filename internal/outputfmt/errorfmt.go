// Package outputfmt prepares internal error text for user-facing debug
// output. Provider errors can embed full endpoint URLs (which reveal hosts
// and may carry keys in query strings); those are reduced to their path
// before the text leaves the process.
package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

var absoluteURLRE = regexp.MustCompile(`https?://[^\s"'<>]+`)

// FormatErrorForDisplay sanitizes err for a user-facing channel and caps
// its length so a chat reply stays a chat reply.
func FormatErrorForDisplay(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	s := SanitizeErrorText(err.Error())
	if maxLen > 0 {
		if runes := []rune(s); len(runes) > maxLen {
			s = string(runes[:maxLen]) + "…"
		}
	}
	return s
}

// SanitizeErrorText removes URL hosts from arbitrary text, keeping only
// path/query/fragment with sensitive query values redacted.
func SanitizeErrorText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	return absoluteURLRE.ReplaceAllStringFunc(raw, sanitizeURL)
}

func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if q := redactSensitiveQuery(u.Query()); q != "" {
		path += "?" + q
	}
	if frag := strings.TrimSpace(u.EscapedFragment()); frag != "" {
		path += "#" + frag
	}
	return path
}

func redactSensitiveQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, "[redacted]")
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	n := strings.ReplaceAll(strings.ReplaceAll(k, "-", ""), "_", "")
	if n == "key" {
		return true
	}
	for _, marker := range []string{"apikey", "authorization", "token", "secret", "password", "cookie"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}
