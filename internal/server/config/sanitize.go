package config

import "strings"

// Sanitize returns a copy of the config with secrets masked, for logging.
func Sanitize(cfg *NodeConfig) *NodeConfig {
	sanitized := *cfg
	if sanitized.Overlay.Secret != "" {
		sanitized.Overlay.Secret = maskSecret(sanitized.Overlay.Secret)
	}
	return &sanitized
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
