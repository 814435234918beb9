package gossip

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keyInfo = "meshkv gossip encryption v1"

// DeriveKey turns a shared passphrase into a 32-byte memberlist key
// (AES-256-GCM). An empty secret returns nil, which disables encryption.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, nil
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive gossip key: %w", err)
	}
	return key, nil
}
