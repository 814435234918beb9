package logger

import (
	"log/slog"
	"strings"
)

// Attribute keys whose values never reach the log output.
var sensitiveKeyPatterns = []string{
	"secret",
	"passphrase",
	"password",
	"private_key",
	"privkey",
	"encryption_key",
}

const redactedValue = "***REDACTED***"

// redactSensitive replaces the value of attributes whose key suggests a
// secret (gossip passphrase, identity key). Groups are walked recursively.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if a.Value.String() != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// RedactString masks a secret so only a short hint stays visible.
// Format: first 3 chars + "..." + last 3 chars.
func RedactString(value string) string {
	if len(value) <= 8 {
		return "***"
	}
	return value[:3] + "..." + value[len(value)-3:]
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
