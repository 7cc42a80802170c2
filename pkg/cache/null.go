package cache

import (
	"context"
	"time"

	"github.com/matzehuels/fractal/pkg/observability"
)

// NullCache stores nothing; every Get is a miss.
type NullCache struct{}

// NewNullCache returns a cache that discards all writes.
func NewNullCache() *NullCache { return &NullCache{} }

func (NullCache) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	observability.Cache().OnCacheMiss(ctx, "null")
	return nil, false, nil
}

func (NullCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NullCache) Delete(context.Context, string) error                     { return nil }
func (NullCache) Close() error                                             { return nil }

var _ Cache = (*NullCache)(nil)
