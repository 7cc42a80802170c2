// Package palette computes the per-level colour and variation parameters that
// accompany each level's transforms to the renderer.
//
// Inner levels take a colour pair from two gradients evaluated at the level's
// relative depth; the last level is drawn as leaves and uses a fixed leaf pair.
// Each level also gets a random vec4 of "sequence numbers" that shaders use to
// vary instances within the batch.
package palette

import (
	"math/rand/v2"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/matzehuels/fractal/pkg/errors"
)

// Stop is one colour key of a gradient at position Pos in [0, 1].
type Stop struct {
	Pos   float64
	Color colorful.Color
}

// Gradient is a piecewise-linear colour ramp. Stops are kept sorted by Pos.
type Gradient struct {
	stops []Stop
}

// NewGradient sorts stops by position. At least one stop is required.
func NewGradient(stops ...Stop) (Gradient, error) {
	if len(stops) == 0 {
		return Gradient{}, errors.New(errors.ErrCodeInvalidColor, "gradient needs at least one stop")
	}
	for _, s := range stops {
		if s.Pos < 0 || s.Pos > 1 {
			return Gradient{}, errors.New(errors.ErrCodeInvalidColor, "gradient stop position %g outside [0, 1]", s.Pos)
		}
	}
	sorted := slices.Clone(stops)
	slices.SortStableFunc(sorted, func(a, b Stop) int {
		switch {
		case a.Pos < b.Pos:
			return -1
		case a.Pos > b.Pos:
			return 1
		}
		return 0
	})
	return Gradient{stops: sorted}, nil
}

// MustGradient is like NewGradient but panics on error.
func MustGradient(stops ...Stop) Gradient {
	g, err := NewGradient(stops...)
	if err != nil {
		panic(err)
	}
	return g
}

// Stops returns a copy of the gradient's stops.
func (g Gradient) Stops() []Stop { return slices.Clone(g.stops) }

// Evaluate returns the colour at t. Values before the first stop or after the
// last take that stop's colour; between stops colours blend linearly in RGB.
func (g Gradient) Evaluate(t float64) colorful.Color {
	if len(g.stops) == 0 {
		return colorful.Color{}
	}
	first, last := g.stops[0], g.stops[len(g.stops)-1]
	if t <= first.Pos {
		return first.Color
	}
	if t >= last.Pos {
		return last.Color
	}
	for i := 1; i < len(g.stops); i++ {
		a, b := g.stops[i-1], g.stops[i]
		if t > b.Pos {
			continue
		}
		span := b.Pos - a.Pos
		if span <= 0 {
			return b.Color
		}
		return a.Color.BlendRgb(b.Color, (t-a.Pos)/span)
	}
	return last.Color
}

// Palette holds the two inner-level gradients and the leaf colour pair.
type Palette struct {
	GradientA, GradientB Gradient
	LeafA, LeafB         colorful.Color
}

// Default returns a bark-to-twig ramp with green leaves.
func Default() Palette {
	return Palette{
		GradientA: MustGradient(
			Stop{Pos: 0, Color: mustHex("#4a3426")},
			Stop{Pos: 1, Color: mustHex("#b8a07a")},
		),
		GradientB: MustGradient(
			Stop{Pos: 0, Color: mustHex("#2e2018")},
			Stop{Pos: 1, Color: mustHex("#8c7355")},
		),
		LeafA: mustHex("#6fbf3f"),
		LeafB: mustHex("#2f7a1f"),
	}
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Level returns the colour pair for level l of a tree with the given depth and
// whether the level is drawn as leaves.
func (p Palette) Level(l, depth int) (a, b colorful.Color, leaf bool) {
	if l == depth-1 {
		return p.LeafA, p.LeafB, true
	}
	t := float64(l) / float64(depth-1)
	return p.GradientA.Evaluate(t), p.GradientB.Evaluate(t), false
}

// SequenceNumbers draws one vec4 of uniform [0, 1) values per level from a
// PCG source seeded with seed.
func SequenceNumbers(depth int, seed uint64) []mgl32.Vec4 {
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed5eed))
	out := make([]mgl32.Vec4, depth)
	for l := range out {
		out[l] = mgl32.Vec4{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
	}
	return out
}

// RGBA converts a colour to a clamped float vec4 with alpha 1.
func RGBA(c colorful.Color) mgl32.Vec4 {
	c = c.Clamped()
	return mgl32.Vec4{float32(c.R), float32(c.G), float32(c.B), 1}
}
