package fractal

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/fractal/pkg/errors"
)

const (
	// DefaultMaxDepth bounds tree depth. At depth 8 a tree holds 97,656 nodes;
	// the bound keeps per-tick work and buffer memory reasonable and is not a
	// correctness limit.
	DefaultMaxDepth = 8

	// DepthLimit is the hard ceiling on MaxDepth, whatever the configuration.
	DepthLimit = errors.DepthCeiling

	// DirectionalSpinVelocity is the fixed spine angular velocity (rad/s) of
	// every node in the directional variant.
	DirectionalSpinVelocity = 0.125 * math.Pi
)

// Variant selects how child transforms are derived from their parent.
type Variant string

const (
	VariantDirectional Variant = "directional"
	VariantOrganic     Variant = "organic"
)

// ParseVariant converts a name into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantDirectional, VariantOrganic:
		return v, nil
	}
	return "", errors.New(errors.ErrCodeInvalidVariant, "unknown variant %q (want %s or %s)",
		s, VariantDirectional, VariantOrganic)
}

// Node is the per-position state of the tree. Direction, Rotation, SpinVelocity
// and MaxSagAngle are fixed at build time; the world fields are rewritten by
// every tick and SpineAngle accumulates.
type Node struct {
	Direction     mgl32.Vec3
	Rotation      mgl32.Quat
	WorldPosition mgl32.Vec3
	WorldRotation mgl32.Quat
	SpineAngle    float32
	SpinVelocity  float32 // rad/s, signed
	MaxSagAngle   float32 // radians
}

// OrganicParams are the randomization ranges of the organic variant.
// Angles and velocities are in degrees (per second).
type OrganicParams struct {
	SagMin, SagMax    float32
	SpinMin, SpinMax  float32
	ReverseSpinChance float64
}

// DefaultOrganicParams returns sag angles of 15..25° and spin velocities of
// 20..25°/s, reversed for a quarter of the nodes.
func DefaultOrganicParams() OrganicParams {
	return OrganicParams{
		SagMin:            15,
		SagMax:            25,
		SpinMin:           20,
		SpinMax:           25,
		ReverseSpinChance: 0.25,
	}
}

func (p OrganicParams) validate() error {
	if err := errors.ValidateRange("sag angle", float64(p.SagMin), float64(p.SagMax), 0, 90); err != nil {
		return err
	}
	if err := errors.ValidateRange("spin velocity", float64(p.SpinMin), float64(p.SpinMax), 0, 90); err != nil {
		return err
	}
	return errors.ValidateProbability("reverse spin chance", p.ReverseSpinChance)
}

// BuildOptions configures [Build]. A nil *BuildOptions selects the
// directional variant with seed 0 and [DefaultMaxDepth].
type BuildOptions struct {
	Variant  Variant
	MaxDepth int // zero means DefaultMaxDepth
	Organic  OrganicParams
	Seed     uint64
}

type level struct {
	nodes    []Node
	matrices []mgl32.Mat3x4
}

// Tree is a fixed-shape five-way tree together with one output buffer of
// packed transforms per level. Shape never changes after [Build]; a new depth
// requires [Tree.Release] and a fresh Build.
type Tree struct {
	variant Variant
	slots   Slots
	levels  []level
}

// Build allocates a tree of the given depth and initializes every node from
// its child slot. Random per-node parameters of the organic variant are drawn
// once here from a PCG source seeded with opts.Seed, in level and index order,
// so equal seeds give equal trees.
//
// Depth must lie in [1, MaxDepth] and MaxDepth may not exceed [DepthLimit].
// Slot rotations must be unit quaternions.
func Build(depth int, slots Slots, opts *BuildOptions) (*Tree, error) {
	if opts == nil {
		opts = &BuildOptions{}
	}
	variant := opts.Variant
	if variant == "" {
		variant = VariantDirectional
	}
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	if err := errors.ValidateDepth(depth, maxDepth); err != nil {
		return nil, err
	}
	if variant == VariantOrganic {
		if err := opts.Organic.validate(); err != nil {
			return nil, err
		}
	}
	if err := slots.validate(); err != nil {
		return nil, err
	}

	t := &Tree{
		variant: variant,
		slots:   slots,
		levels:  make([]level, depth),
	}
	for l := range t.levels {
		n := LevelSize(l)
		t.levels[l] = level{
			nodes:    make([]Node, n),
			matrices: make([]mgl32.Mat3x4, n),
		}
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0xdeadbeef))
	newNode := t.directionalNode
	if variant == VariantOrganic {
		newNode = func(slot int) Node { return t.organicNode(slot, opts.Organic, rng) }
	}

	root := newNode(0)
	root.Direction = mgl32.Vec3{}
	if variant == VariantOrganic {
		root.SpinVelocity = mgl32.DegToRad(uniform(rng, opts.Organic.SpinMin, opts.Organic.SpinMax))
	}
	t.levels[0].nodes[0] = root
	t.levels[0].matrices[0] = Pack(root.WorldRotation, root.WorldPosition, 1)

	for l := 1; l < depth; l++ {
		nodes := t.levels[l].nodes
		for i := range nodes {
			nodes[i] = newNode(i % Branching)
		}
	}
	return t, nil
}

func (t *Tree) directionalNode(slot int) Node {
	return Node{
		Direction:     t.slots[slot].Direction,
		Rotation:      t.slots[slot].Rotation,
		WorldRotation: mgl32.QuatIdent(),
		SpinVelocity:  DirectionalSpinVelocity,
	}
}

func (t *Tree) organicNode(slot int, p OrganicParams, rng *rand.Rand) Node {
	sag := mgl32.DegToRad(uniform(rng, p.SagMin, p.SagMax))
	sign := float32(1)
	if rng.Float64() < p.ReverseSpinChance {
		sign = -1
	}
	return Node{
		Rotation:      t.slots[slot].Rotation,
		WorldRotation: mgl32.QuatIdent(),
		SpinVelocity:  sign * mgl32.DegToRad(uniform(rng, p.SpinMin, p.SpinMax)),
		MaxSagAngle:   sag,
	}
}

func uniform(rng *rand.Rand, lo, hi float32) float32 {
	return lo + (hi-lo)*rng.Float32()
}

// Variant returns the variant the tree was built with.
func (t *Tree) Variant() Variant { return t.variant }

// Depth returns the number of levels, or 0 after Release.
func (t *Tree) Depth() int { return len(t.levels) }

// LevelCount returns the number of nodes in level l.
func (t *Tree) LevelCount(l int) int { return len(t.levels[l].nodes) }

// NodeCount returns the total number of nodes across all levels.
func (t *Tree) NodeCount() int {
	total := 0
	for _, lv := range t.levels {
		total += len(lv.nodes)
	}
	return total
}

// Node returns a copy of node i at level l. It panics if either index is out of range.
func (t *Tree) Node(l, i int) Node { return t.levels[l].nodes[i] }

// Matrices returns the output buffer of level l. The slice is shared with the
// tree; it is stable between the return of one Propagate call and the start of
// the next and must not be modified by readers.
func (t *Tree) Matrices(l int) []mgl32.Mat3x4 { return t.levels[l].matrices }

// Released reports whether Release has been called.
func (t *Tree) Released() bool { return t.levels == nil }

// Release drops every level buffer. A released tree rejects Propagate.
func (t *Tree) Release() {
	for l := range t.levels {
		t.levels[l] = level{}
	}
	t.levels = nil
}

// String summarizes the tree shape.
func (t *Tree) String() string {
	return fmt.Sprintf("fractal.Tree{variant: %s, depth: %d, nodes: %d}", t.variant, t.Depth(), t.NodeCount())
}
