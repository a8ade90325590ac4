package log

import (
	"net/url"
	"strings"
)

// sensitiveKeywords mark log keys whose values must never be written verbatim.
var sensitiveKeywords = []string{
	"password", "passwd",
	"api_key", "apikey", "api-key", "x-goog-api-key",
	"token", "secret", "authorization",
	"credential", "private_key",
}

// SanitizeField checks if the key contains sensitive keywords and sanitizes the value
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)

	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return sanitizeToken(value)
		}
	}

	// Query-string auth puts the provider key into URLs.
	if lowerKey == "url" || strings.HasSuffix(lowerKey, "_url") || strings.HasSuffix(lowerKey, "uri") {
		return SanitizeURL(value)
	}

	return value
}

// SanitizeURL masks credential-bearing query parameters (key, api_key, access_token).
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}

	q := u.Query()
	changed := false
	for _, name := range []string{"key", "api_key", "access_token"} {
		if v := q.Get(name); v != "" {
			q.Set(name, sanitizeToken(v))
			changed = true
		}
	}
	if !changed {
		return raw
	}

	u.RawQuery = q.Encode()
	return u.String()
}

// sanitizeToken masks token/password values showing only first 4 and last 4 characters
func sanitizeToken(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}

	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
