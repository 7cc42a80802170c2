// Package cache stores encoded frame snapshots.
//
// Simulations can hand every frame (or the latest one) to a [Cache] so other
// processes can pick up the transforms without running the propagator
// themselves. Three backends are provided:
//
//   - [NullCache]: discards everything, for runs without snapshots
//   - [FileCache]: one JSON envelope per key under a directory (CLI default)
//   - [RedisCache]: shared snapshots for servers and multi-process setups
//
// Keys come from a [Keyer] so that namespaces can be prefixed with a
// [ScopedKeyer].
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the stored bytes and true, or nil and false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer generates cache keys for frame snapshots.
type Keyer interface {
	// FrameKey identifies the frame of a given tick for a configuration.
	FrameKey(configHash string, tick uint64) string

	// LatestKey identifies the most recent frame for a configuration.
	LatestKey(configHash string) string
}

// DefaultKeyer generates unprefixed keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates the default keyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// FrameKey returns "frame:<sha256(configHash, tick)>".
func (DefaultKeyer) FrameKey(configHash string, tick uint64) string {
	return hashKey("frame", configHash, tick)
}

// LatestKey returns "latest:<configHash>".
func (DefaultKeyer) LatestKey(configHash string) string {
	return fmt.Sprintf("latest:%s", configHash)
}

// hashKey joins prefix and the SHA-256 of the JSON-encoded parts.
func hashKey(prefix string, parts ...any) string {
	data, _ := json.Marshal(parts)
	return prefix + ":" + Hash(data)
}

// Hash returns the hex SHA-256 of data (64 characters).
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
