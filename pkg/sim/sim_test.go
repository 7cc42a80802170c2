package sim

import (
	"context"
	stderrors "errors"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/observability"
)

func testConfig(depth int, variant fractal.Variant) config.Config {
	cfg := config.Default()
	cfg.Tree.Depth = depth
	cfg.Tree.Variant = string(variant)
	return cfg
}

func newSim(t *testing.T, depth int, variant fractal.Variant) *Simulation {
	t.Helper()
	s, err := New(testConfig(depth, variant))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

func TestNewRejectsInvalidDepth(t *testing.T) {
	for _, depth := range []int{0, -1, 9} {
		_, err := New(testConfig(depth, fractal.VariantDirectional))
		if !errors.Is(err, errors.ErrCodeInvalidDepth) {
			t.Errorf("depth %d: err = %v, want INVALID_DEPTH", depth, err)
		}
	}
}

func TestStepFrame(t *testing.T) {
	s := newSim(t, 3, fractal.VariantDirectional)

	pose := fractal.Pose{Position: mgl32.Vec3{1, 2, 3}, Rotation: mgl32.QuatIdent(), Scale: 2}
	f, err := s.Step(0.5, pose)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if f.Tick != 1 || f.RunID != s.RunID() || f.DeltaTime != 0.5 {
		t.Errorf("frame header = tick %d run %q dt %v", f.Tick, f.RunID, f.DeltaTime)
	}
	if f.Bounds.Center != pose.Position || f.Bounds.Size != 6 {
		t.Errorf("bounds = %+v, want center %v size 6", f.Bounds, pose.Position)
	}
	wantCounts := []int{1, 5, 25}
	if len(f.Batches) != len(wantCounts) {
		t.Fatalf("got %d batches, want %d", len(f.Batches), len(wantCounts))
	}
	for l, b := range f.Batches {
		if b.Level != l || b.Count != wantCounts[l] || len(b.Matrices) != wantCounts[l] {
			t.Errorf("batch %d = level %d count %d len %d", l, b.Level, b.Count, len(b.Matrices))
		}
		if b.Leaf != (l == 2) {
			t.Errorf("batch %d leaf = %v", l, b.Leaf)
		}
		if b.ColorA[3] != 1 {
			t.Errorf("batch %d alpha = %v, want 1", l, b.ColorA[3])
		}
	}
	if f.NodeCount() != 31 {
		t.Errorf("NodeCount = %d, want 31", f.NodeCount())
	}
	if got := fractal.Translation(f.Batches[0].Matrices[0]); got != pose.Position {
		t.Errorf("root translation = %v, want %v", got, pose.Position)
	}
}

func TestStepZeroPose(t *testing.T) {
	s := newSim(t, 2, fractal.VariantDirectional)

	f, err := s.Step(0, StaticPose{}.Pose(0, 0))
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if f.Root.Scale != 1 || f.Root.Rotation != mgl32.QuatIdent() {
		t.Errorf("root = %+v, want identity rotation and unit scale", f.Root)
	}
	if f.Bounds.Size != 3 {
		t.Errorf("bounds size = %v, want 3", f.Bounds.Size)
	}
	if f.Batches[0].Matrices[0] == (mgl32.Mat3x4{}) {
		t.Error("root matrix is all zero")
	}
}

func TestFrameCloneIsDetached(t *testing.T) {
	s := newSim(t, 2, fractal.VariantDirectional)
	root := fractal.IdentityPose()

	f, err := s.Step(1, root)
	if err != nil {
		t.Fatal(err)
	}
	clone := f.Clone()
	before := clone.Batches[1].Matrices[1]

	if _, err := s.Step(1, root); err != nil {
		t.Fatal(err)
	}
	if clone.Batches[1].Matrices[1] != before {
		t.Error("clone changed after the next Step")
	}
	if f.Batches[1].Matrices[1] == before {
		t.Error("live frame should alias the tree buffer")
	}
}

func TestReconfigure(t *testing.T) {
	s := newSim(t, 2, fractal.VariantOrganic)
	if _, err := s.Step(0.1, fractal.IdentityPose()); err != nil {
		t.Fatal(err)
	}
	oldRun := s.RunID()
	oldHash := s.ConfigHash()

	if err := s.Reconfigure(context.Background(), 4); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if s.Tree().Depth() != 4 || s.Config().Tree.Depth != 4 {
		t.Errorf("depth = %d, want 4", s.Tree().Depth())
	}
	if s.RunID() == oldRun || s.ConfigHash() == oldHash {
		t.Error("rebuild should start a new run with a new config hash")
	}
	if s.Tick() != 0 {
		t.Errorf("Tick = %d, want 0", s.Tick())
	}

	err := s.Reconfigure(context.Background(), 0)
	if !errors.Is(err, errors.ErrCodeInvalidDepth) {
		t.Fatalf("err = %v, want INVALID_DEPTH", err)
	}
	if _, err := s.Step(0.1, fractal.IdentityPose()); err != nil {
		t.Errorf("tree should survive a rejected Reconfigure: %v", err)
	}
}

func TestStepAfterClose(t *testing.T) {
	s := newSim(t, 2, fractal.VariantDirectional)
	s.Close()
	_, err := s.Step(0.1, fractal.IdentityPose())
	if !errors.Is(err, errors.ErrCodeNotAllocated) {
		t.Errorf("err = %v, want NOT_ALLOCATED", err)
	}
}

func TestSpinningPose(t *testing.T) {
	p := SpinningPose{Position: mgl32.Vec3{0, 1, 0}, Rate: math.Pi}
	got := p.Pose(1, 0.5)
	if got.Scale != 1 || got.Position != p.Position {
		t.Errorf("pose = %+v", got)
	}
	// half a second at π rad/s is a quarter turn about up: +x goes to -z.
	x := got.Rotation.Rotate(mgl32.Vec3{1, 0, 0})
	if x.Sub(mgl32.Vec3{0, 0, -1}).Len() > 1e-5 {
		t.Errorf("rotated +x = %v, want (0, 0, -1)", x)
	}
}

func TestWanderingPose(t *testing.T) {
	a := NewWanderingPose(7, 0.5, 0.2)
	b := NewWanderingPose(7, 0.5, 0.2)
	a.Center = mgl32.Vec3{0, 3, 0}
	b.Center = a.Center

	moved := false
	for i := range 20 {
		elapsed := float32(i) * 0.37
		pa, pb := a.Pose(uint64(i), elapsed), b.Pose(uint64(i), elapsed)
		if pa != pb {
			t.Fatalf("equal seeds diverged at %v: %+v != %+v", elapsed, pa, pb)
		}
		d := pa.Position.Sub(a.Center)
		for axis := range 3 {
			if math.Abs(float64(d[axis])) > 0.5+1e-5 {
				t.Errorf("offset %v exceeds amplitude", d)
			}
		}
		if d.Len() > 1e-4 {
			moved = true
		}
		if pa.Scale != 1 {
			t.Errorf("scale = %v, want 1", pa.Scale)
		}
	}
	if !moved {
		t.Error("pose never left its center")
	}
}

func TestRunnerFixedTicks(t *testing.T) {
	s := newSim(t, 3, fractal.VariantDirectional)
	r := NewRunner(s, quietLogger())

	var ticks []uint64
	sink := SinkFunc(func(_ context.Context, f *Frame) error {
		ticks = append(ticks, f.Tick)
		return nil
	})
	stats, err := r.Run(context.Background(), RunOptions{Ticks: 10, DeltaTime: 0.1, Sink: sink})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Ticks != 10 || len(ticks) != 10 {
		t.Fatalf("ticks = %d (sink saw %d), want 10", stats.Ticks, len(ticks))
	}
	for i, tick := range ticks {
		if tick != uint64(i+1) {
			t.Errorf("draw %d got tick %d", i, tick)
		}
	}
	if math.Abs(float64(stats.Simulated)-1) > 1e-5 {
		t.Errorf("Simulated = %v, want 1", stats.Simulated)
	}
	if stats.Nodes != 31 {
		t.Errorf("Nodes = %d, want 31", stats.Nodes)
	}

	// Ten ticks of 0.1s advance every directional spine by 0.125π·1.
	want := float32(fractal.DirectionalSpinVelocity)
	if got := s.Tree().Node(2, 7).SpineAngle; math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("spine = %v, want %v", got, want)
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	s := newSim(t, 2, fractal.VariantDirectional)
	r := NewRunner(s, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	draws := 0
	sink := SinkFunc(func(context.Context, *Frame) error {
		draws++
		if draws == 3 {
			cancel()
		}
		return nil
	})
	stats, err := r.Run(ctx, RunOptions{DeltaTime: 0.01, Sink: sink})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Ticks != 3 {
		t.Errorf("Ticks = %d, want 3", stats.Ticks)
	}
}

func TestRunnerInterval(t *testing.T) {
	s := newSim(t, 1, fractal.VariantDirectional)
	r := NewRunner(s, quietLogger())

	stats, err := r.Run(context.Background(), RunOptions{Ticks: 3, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Ticks != 3 {
		t.Errorf("Ticks = %d, want 3", stats.Ticks)
	}
	if stats.Elapsed < 3*time.Millisecond {
		t.Errorf("Elapsed = %v, want >= 3ms", stats.Elapsed)
	}
}

func TestRunnerSinkError(t *testing.T) {
	s := newSim(t, 2, fractal.VariantDirectional)
	r := NewRunner(s, quietLogger())

	boom := stderrors.New("disk full")
	sink := SinkFunc(func(_ context.Context, f *Frame) error {
		if f.Tick == 2 {
			return boom
		}
		return nil
	})
	stats, err := r.Run(context.Background(), RunOptions{Ticks: 5, DeltaTime: 0.1, Sink: sink})
	if !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if stats.Ticks != 1 {
		t.Errorf("Ticks = %d, want 1", stats.Ticks)
	}
}

type countingHooks struct {
	observability.NoopSimulationHooks
	starts, completes atomic.Int64
	nodes             atomic.Int64
}

func (h *countingHooks) OnTickStart(context.Context, uint64) { h.starts.Add(1) }

func (h *countingHooks) OnTickComplete(_ context.Context, _ uint64, nodes int, _ time.Duration, _ error) {
	h.completes.Add(1)
	h.nodes.Store(int64(nodes))
}

func TestRunnerFiresHooks(t *testing.T) {
	h := &countingHooks{}
	observability.SetSimulationHooks(h)
	defer observability.Reset()

	s := newSim(t, 2, fractal.VariantOrganic)
	r := NewRunner(s, quietLogger())
	if _, err := r.Run(context.Background(), RunOptions{Ticks: 4, DeltaTime: 0.1}); err != nil {
		t.Fatal(err)
	}
	if h.starts.Load() != 4 || h.completes.Load() != 4 {
		t.Errorf("hooks fired %d/%d times, want 4/4", h.starts.Load(), h.completes.Load())
	}
	if h.nodes.Load() != 6 {
		t.Errorf("nodes = %d, want 6", h.nodes.Load())
	}
}
