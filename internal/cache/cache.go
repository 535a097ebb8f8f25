// Package cache provides the TTL-bounded result cache for read-only
// operations. Entries are keyed by an operation fingerprint; last write wins
// per fingerprint. Mutating operations never touch this cache.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cached operation outcome.
type Entry struct {
	Fingerprint string
	Result      json.RawMessage
	StoredAt    time.Time
	TTL         time.Duration
}

// Expired reports whether the entry is past storedAt+ttl at the given time.
func (e Entry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Store abstracts the cache backend. Implementations must treat expired
// entries as absent and must be safe for concurrent use; operations on
// distinct fingerprints must not serialize against each other.
type Store interface {
	Get(ctx context.Context, fingerprint string) (Entry, error)
	Put(ctx context.Context, fingerprint string, result json.RawMessage, ttl time.Duration) error
}

// Fingerprint derives the deterministic cache key for an operation and its
// parameters. encoding/json sorts map keys, which gives a canonical encoding
// for the parameter mapping. The caller identity is deliberately not part of
// the key: authorization runs before the cache on every request, so a shared
// cache never serves a caller data it could not fetch itself.
func Fingerprint(operation string, params map[string]any) (string, error) {
	canonical, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint parameters: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
