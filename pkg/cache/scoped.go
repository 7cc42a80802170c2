package cache

// ScopedKeyer wraps a Keyer with a prefix so several simulations can share
// one backend without overwriting each other's frames.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "run:3f2c...:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// FrameKey generates a prefixed frame key.
func (k *ScopedKeyer) FrameKey(configHash string, tick uint64) string {
	return k.prefix + k.inner.FrameKey(configHash, tick)
}

// LatestKey generates a prefixed latest-frame key.
func (k *ScopedKeyer) LatestKey(configHash string) string {
	return k.prefix + k.inner.LatestKey(configHash)
}
