package record

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/sim"
)

func openTemp(t *testing.T) *Recorder {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func newSim(t *testing.T, depth int) *sim.Simulation {
	t.Helper()
	cfg := config.Default()
	cfg.Tree.Depth = depth
	cfg.Tree.Variant = string(fractal.VariantDirectional)
	s, err := sim.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	rec := openTemp(t)
	s := newSim(t, 3)

	if err := rec.StartRun(ctx, s); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	runner := sim.NewRunner(s, log.New(io.Discard))
	pose := sim.StaticPose{Position: mgl32.Vec3{0, 2, 0}, Rotation: mgl32.QuatIdent(), Scale: 1}
	if _, err := runner.Run(ctx, sim.RunOptions{Ticks: 5, DeltaTime: 0.1, Pose: pose, Sink: rec}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := rec.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.ID != s.RunID() || run.Depth != 3 || run.Nodes != 31 || run.Variant != "directional" || run.Seed != 42 {
		t.Errorf("run = %+v", run)
	}

	ticks, err := rec.Ticks(ctx, run.ID)
	if err != nil {
		t.Fatalf("Ticks: %v", err)
	}
	if len(ticks) != 5 {
		t.Fatalf("got %d ticks, want 5", len(ticks))
	}
	for i, tk := range ticks {
		if tk.Tick != int64(i+1) || tk.Nodes != 31 || tk.RootY != 2 || tk.RootScale != 1 {
			t.Errorf("tick %d = %+v", i, tk)
		}
	}

	levels, err := rec.Levels(ctx, run.ID, 5)
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("got %d levels, want 3", len(levels))
	}
	root := levels[0]
	if root.Count != 1 || root.MinY != 2 || root.MaxY != 2 {
		t.Errorf("root level = %+v", root)
	}
	// The up child sits 0.75 above the root; the other four stay level with it.
	if lv := levels[1]; lv.Count != 5 || lv.MaxY < 2.74 || lv.MinY < 1.99 {
		t.Errorf("level 1 = %+v", lv)
	}
}

func TestDrawWithoutStartRun(t *testing.T) {
	ctx := context.Background()
	rec := openTemp(t)
	s := newSim(t, 2)

	f, err := s.Step(0.1, fractal.IdentityPose())
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Draw(ctx, f); err != nil {
		t.Fatalf("Draw: %v", err)
	}
	runs, err := rec.Runs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != s.RunID() || runs[0].Depth != 2 || runs[0].Nodes != 6 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestSetEvery(t *testing.T) {
	ctx := context.Background()
	rec := openTemp(t)
	rec.SetEvery(3)
	s := newSim(t, 1)

	for range 7 {
		f, err := s.Step(0.1, fractal.IdentityPose())
		if err != nil {
			t.Fatal(err)
		}
		if err := rec.Draw(ctx, f); err != nil {
			t.Fatal(err)
		}
	}
	ticks, err := rec.Ticks(ctx, s.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if len(ticks) != 2 || ticks[0].Tick != 3 || ticks[1].Tick != 6 {
		t.Errorf("ticks = %+v, want 3 and 6", ticks)
	}
}

func TestBoundsEmptyBatch(t *testing.T) {
	if got := bounds(sim.Batch{}); got != (Level{}) {
		t.Errorf("bounds of empty batch = %+v", got)
	}
}
