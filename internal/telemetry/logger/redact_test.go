package logger

import (
	"log/slog"
	"testing"
)

func TestRedactSensitive(t *testing.T) {
	tests := []struct {
		name string
		attr slog.Attr
		want string
	}{
		{"gossip secret", slog.String("gossip_secret", "correct horse"), redactedValue},
		{"passphrase", slog.String("Passphrase", "abc"), redactedValue},
		{"private key", slog.String("private_key", "CAESQ..."), redactedValue},
		{"empty secret stays empty", slog.String("secret", ""), ""},
		{"plain key", slog.String("content_address", "bafkrei"), "bafkrei"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactSensitive(tt.attr)
			if got.Value.String() != tt.want {
				t.Errorf("redactSensitive(%v) = %q, want %q", tt.attr, got.Value.String(), tt.want)
			}
		})
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	attr := slog.Group("overlay", slog.String("secret", "s3cr3t"), slog.Int("port", 7946))
	got := redactSensitive(attr)

	for _, a := range got.Value.Group() {
		switch a.Key {
		case "secret":
			if a.Value.String() != redactedValue {
				t.Errorf("nested secret not redacted: %v", a.Value)
			}
		case "port":
			if a.Value.Int64() != 7946 {
				t.Errorf("port changed: %v", a.Value)
			}
		}
	}
}

func TestRedactString(t *testing.T) {
	if got := RedactString("short"); got != "***" {
		t.Errorf("RedactString(short) = %q", got)
	}
	if got := RedactString("abcdefghijkl"); got != "abc...jkl" {
		t.Errorf("RedactString = %q, want abc...jkl", got)
	}
}

func TestIsSensitiveKey(t *testing.T) {
	for _, k := range []string{"secret", "GOSSIP_SECRET", "encryption_key", "privkey"} {
		if !IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = false", k)
		}
	}
	for _, k := range []string{"node_id", "peers", "address"} {
		if IsSensitiveKey(k) {
			t.Errorf("IsSensitiveKey(%q) = true", k)
		}
	}
}
