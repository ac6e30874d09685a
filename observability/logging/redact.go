package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// Redacted replaces values that must not reach log sinks.
const Redacted = "[REDACTED]"

// sensitiveKeys are matched as substrings of a lower-cased attribute key.
var sensitiveKeys = []string{"authorization", "token", "secret", "password", "api-key", "apikey"}

// IsSensitive reports whether values logged under key are masked.
func IsSensitive(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// Secret logs key with its value masked unless the value is empty.
func Secret(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" {
		return slog.String(key, value)
	}
	return slog.String(key, Redacted)
}

// Headers renders a header map as a group with sensitive values masked.
func Headers(key string, headers map[string]string) slog.Attr {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	attrs := make([]any, 0, len(names))
	for _, name := range names {
		if IsSensitive(name) {
			attrs = append(attrs, Secret(name, headers[name]))
			continue
		}
		attrs = append(attrs, slog.String(name, headers[name]))
	}
	return slog.Group(key, attrs...)
}
