package store

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveTenantKey hashes the raw client identifiers into an opaque 16-hex-char
// tenant key. The store never sees raw IPs or user agents.
func DeriveTenantKey(ip, userAgent, salt string) string {
	sum := sha256.Sum256([]byte(ip + userAgent + salt))
	return hex.EncodeToString(sum[:])[:16]
}
