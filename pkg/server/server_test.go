package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/observability"
	"github.com/matzehuels/fractal/pkg/sim"
)

func setup(t *testing.T) (*Server, *sim.Simulation, *httptest.Server) {
	t.Helper()
	cfg := config.Default()
	cfg.Tree.Depth = 3
	s, err := sim.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	srv := New(cfg, log.New(io.Discard))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, s, ts
}

func get(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("GET %s: content type %q", url, ct)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("GET %s: decode: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthAndConfig(t *testing.T) {
	_, _, ts := setup(t)

	var health healthResponse
	if code := get(t, ts.URL+"/healthz", &health); code != http.StatusOK || health.Status != "ok" {
		t.Errorf("healthz = %d %+v", code, health)
	}

	var cfg config.Config
	if code := get(t, ts.URL+"/config", &cfg); code != http.StatusOK {
		t.Fatalf("config = %d", code)
	}
	if cfg.Tree.Depth != 3 || cfg.Tree.Variant != "organic" {
		t.Errorf("config tree = %+v", cfg.Tree)
	}
}

func TestFrameBeforeFirstDraw(t *testing.T) {
	_, _, ts := setup(t)

	for _, path := range []string{"/frame", "/frame/levels/0"} {
		var e errorResponse
		if code := get(t, ts.URL+path, &e); code != http.StatusNotFound || e.Code != errors.ErrCodeNotFound {
			t.Errorf("%s = %d %+v, want 404", path, code, e)
		}
	}
}

func TestFrameAndLevels(t *testing.T) {
	srv, s, ts := setup(t)
	ctx := context.Background()

	for range 2 {
		f, err := s.Step(0.1, fractal.IdentityPose())
		if err != nil {
			t.Fatal(err)
		}
		if err := srv.Draw(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	var f sim.Frame
	if code := get(t, ts.URL+"/frame", &f); code != http.StatusOK {
		t.Fatalf("frame = %d", code)
	}
	if f.Tick != 2 || f.RunID != s.RunID() || len(f.Batches) != 3 {
		t.Errorf("frame = tick %d run %q batches %d", f.Tick, f.RunID, len(f.Batches))
	}

	var lv levelResponse
	if code := get(t, ts.URL+"/frame/levels/2", &lv); code != http.StatusOK {
		t.Fatalf("level = %d", code)
	}
	if lv.Tick != 2 || lv.Batch.Level != 2 || len(lv.Batch.Matrices) != 25 || !lv.Batch.Leaf {
		t.Errorf("level 2 = tick %d level %d len %d leaf %v",
			lv.Tick, lv.Batch.Level, len(lv.Batch.Matrices), lv.Batch.Leaf)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/frame/levels/3", http.StatusNotFound},
		{"/frame/levels/-1", http.StatusNotFound},
		{"/frame/levels/x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if code := get(t, ts.URL+tt.path, nil); code != tt.code {
			t.Errorf("%s = %d, want %d", tt.path, code, tt.code)
		}
	}
}

func TestDrawStoresCopy(t *testing.T) {
	srv, s, _ := setup(t)
	ctx := context.Background()

	f, err := s.Step(1, fractal.IdentityPose())
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Draw(ctx, f); err != nil {
		t.Fatal(err)
	}
	stored := srv.frame().Batches[1].Matrices[1]
	if _, err := s.Step(1, fractal.IdentityPose()); err != nil {
		t.Fatal(err)
	}
	if srv.frame().Batches[1].Matrices[1] != stored {
		t.Error("stored frame changed with the next tick")
	}
}

type recordingHooks struct {
	observability.NoopHTTPHooks
	mu       sync.Mutex
	statuses []int
}

func (h *recordingHooks) OnResponse(_ context.Context, _, _ string, status int, _ time.Duration) {
	h.mu.Lock()
	h.statuses = append(h.statuses, status)
	h.mu.Unlock()
}

func TestHTTPHooks(t *testing.T) {
	h := &recordingHooks{}
	observability.SetHTTPHooks(h)
	defer observability.Reset()

	_, _, ts := setup(t)
	get(t, ts.URL+"/healthz", nil)
	get(t, ts.URL+"/frame", nil)

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.statuses) != 2 || h.statuses[0] != 200 || h.statuses[1] != 404 {
		t.Errorf("statuses = %v, want [200 404]", h.statuses)
	}
}
