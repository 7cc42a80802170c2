package sim

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/matzehuels/fractal/pkg/config"
	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/fractal"
	"github.com/matzehuels/fractal/pkg/observability"
	"github.com/matzehuels/fractal/pkg/palette"
)

// Simulation couples a tree with its propagator and draw parameters.
// It is not safe for concurrent use.
type Simulation struct {
	cfg   config.Config
	hash  string
	prop  *fractal.Propagator
	pal   palette.Palette
	tree  *fractal.Tree
	draw  []Batch // per-level colours and sequence numbers, matrices unset
	runID string
	tick  uint64
}

// New validates cfg and builds the tree it describes.
func New(cfg config.Config) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pal, err := cfg.BuildPalette()
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		cfg:  cfg,
		hash: cfg.Hash(),
		prop: cfg.Propagator(),
		pal:  pal,
	}
	if err := s.build(context.Background(), cfg.Tree.Depth); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulation) build(ctx context.Context, depth int) error {
	start := time.Now()
	tree, err := fractal.Build(depth, fractal.DefaultSlots(), s.cfg.BuildOptions())
	nodes := 0
	if tree != nil {
		nodes = tree.NodeCount()
	}
	observability.Simulation().OnBuild(ctx, s.cfg.Tree.Variant, depth, nodes, time.Since(start), err)
	if err != nil {
		return err
	}

	seq := palette.SequenceNumbers(depth, s.cfg.Tree.Seed)
	draw := make([]Batch, depth)
	for l := range draw {
		a, b, leaf := s.pal.Level(l, depth)
		draw[l] = Batch{
			Level:    l,
			Count:    tree.LevelCount(l),
			ColorA:   palette.RGBA(a),
			ColorB:   palette.RGBA(b),
			Sequence: seq[l],
			Leaf:     leaf,
		}
	}

	s.cfg.Tree.Depth = depth
	s.hash = s.cfg.Hash()
	s.tree = tree
	s.draw = draw
	s.runID = uuid.NewString()
	s.tick = 0
	return nil
}

// Config returns the effective configuration. Depth reflects the last
// Reconfigure.
func (s *Simulation) Config() config.Config { return s.cfg }

// ConfigHash identifies the effective configuration.
func (s *Simulation) ConfigHash() string { return s.hash }

// RunID identifies the current tree. Every rebuild starts a new run.
func (s *Simulation) RunID() string { return s.runID }

// Tick returns the number of completed steps of the current run.
func (s *Simulation) Tick() uint64 { return s.tick }

// Tree exposes the underlying tree for read-only inspection.
func (s *Simulation) Tree() *fractal.Tree { return s.tree }

// Step propagates the tree by dt seconds with the given root pose and returns
// the resulting frame. A zero rotation or scale in root is read as identity
// or 1, and the frame reports the pose actually used.
func (s *Simulation) Step(dt float32, root fractal.Pose) (*Frame, error) {
	root = root.WithDefaults()
	if err := s.prop.Propagate(s.tree, dt, root); err != nil {
		return nil, err
	}
	s.tick++

	f := &Frame{
		RunID:     s.runID,
		Tick:      s.tick,
		DeltaTime: dt,
		Root:      root,
		Bounds:    Bounds{Center: root.Position, Size: 3 * root.Scale},
		Batches:   make([]Batch, len(s.draw)),
	}
	for l, b := range s.draw {
		b.Matrices = s.tree.Matrices(l)
		f.Batches[l] = b
	}
	return f, nil
}

// Reconfigure releases every buffer of the current tree and builds a new one
// of the given depth with the same seed and parameters. An invalid depth is
// rejected before anything is released.
func (s *Simulation) Reconfigure(ctx context.Context, depth int) error {
	if err := errors.ValidateDepth(depth, s.cfg.BuildOptions().MaxDepth); err != nil {
		return err
	}
	if s.tree != nil {
		s.tree.Release()
	}
	return s.build(ctx, depth)
}

// Close releases the tree. Step fails afterwards.
func (s *Simulation) Close() error {
	if s.tree != nil {
		s.tree.Release()
	}
	return nil
}

// identity is the default root pose.
var identity = StaticPose(fractal.Pose{Rotation: mgl32.QuatIdent(), Scale: 1})
