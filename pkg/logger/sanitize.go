package logger

import (
	"log/slog"
	"strings"
)

// SanitizedLogin masks a login identifier for logging. Email addresses keep
// the first character of the local part and the TLD (e.g. "u***@***.com");
// plain usernames keep the first character only.
func SanitizedLogin(login string) string {
	parts := strings.Split(login, "@")
	if len(parts) != 2 {
		return maskTail(login)
	}

	username := maskTail(parts[0])
	domain := parts[1]

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		// Mask all but the TLD
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

func maskTail(s string) string {
	if len(s) <= 1 {
		return s
	}
	return string(s[0]) + strings.Repeat("*", len(s)-1)
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := map[string]bool{
		"password": true,
		"token":    true,
		"secret":   true,
		"code":     true,
		"email":    true,
		"auth":     true,
		"remember": true,
	}

	query := strings.ToLower(rawQuery)
	for param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
