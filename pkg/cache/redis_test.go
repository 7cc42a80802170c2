package cache

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// memoryHook answers GET, SET and DEL from a map so the client never dials.
type memoryHook struct {
	mu       sync.Mutex
	data     map[string]string
	failGets int // transient failures before GET starts answering
	calls    map[string]int
}

func newMemoryHook() *memoryHook {
	return &memoryHook{data: map[string]string{}, calls: map[string]int{}}
}

func (h *memoryHook) DialHook(redis.DialHook) redis.DialHook {
	return func(context.Context, string, string) (net.Conn, error) {
		return nil, errors.New("dial disabled")
	}
}

func (h *memoryHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (h *memoryHook) ProcessHook(redis.ProcessHook) redis.ProcessHook {
	return func(_ context.Context, cmd redis.Cmder) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.calls[cmd.Name()]++

		args := cmd.Args()
		key, _ := args[1].(string)
		switch c := cmd.(type) {
		case *redis.StringCmd:
			if h.failGets > 0 {
				h.failGets--
				c.SetErr(errors.New("connection reset"))
				return c.Err()
			}
			v, ok := h.data[key]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(v)
		case *redis.StatusCmd:
			switch v := args[2].(type) {
			case []byte:
				h.data[key] = string(v)
			case string:
				h.data[key] = v
			}
			c.SetVal("OK")
		case *redis.IntCmd:
			_, ok := h.data[key]
			delete(h.data, key)
			if ok {
				c.SetVal(1)
			}
		}
		return nil
	}
}

func newHookedCache(t *testing.T, h *memoryHook) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	client.AddHook(h)
	c := NewRedisCacheFromClient(client, time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRedisCacheUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewRedisCache(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	if err == nil {
		_ = c.Close()
		t.Fatal("NewRedisCache succeeded against a closed port")
	}
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("err = %v, want ErrNetwork", err)
	}
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	h := newMemoryHook()
	c := newHookedCache(t, h)

	data, hit, err := c.Get(ctx, "frame")
	if err != nil || hit || data != nil {
		t.Fatalf("Get on empty cache = (%q, %v, %v), want miss", data, hit, err)
	}
	if h.calls["get"] != 1 {
		t.Errorf("miss retried: %d GET calls", h.calls["get"])
	}

	if err := c.Set(ctx, "frame", []byte("transforms"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err = c.Get(ctx, "frame")
	if err != nil || !hit || string(data) != "transforms" {
		t.Fatalf("Get = (%q, %v, %v), want hit", data, hit, err)
	}

	if err := c.Delete(ctx, "frame"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "frame"); hit {
		t.Error("Get after Delete hit")
	}
}

func TestRedisCacheRetries(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		failGets int
		wantHit  bool
		wantErr  bool
	}{
		{"recovers", 2, true, false},
		{"exhausted", 5, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newMemoryHook()
			h.data["frame"] = "transforms"
			h.failGets = tt.failGets
			c := newHookedCache(t, h)

			_, hit, err := c.Get(ctx, "frame")
			if hit != tt.wantHit {
				t.Errorf("hit = %v, want %v", hit, tt.wantHit)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrNetwork) {
				t.Errorf("err = %v, want ErrNetwork", err)
			}
		})
	}
}
