package sim

import (
	"github.com/go-gl/mathgl/mgl32"
	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/matzehuels/fractal/pkg/fractal"
)

// PoseSource supplies the root's world placement for a tick. elapsed is the
// simulated time in seconds since the run started, including this tick.
type PoseSource interface {
	Pose(tick uint64, elapsed float32) fractal.Pose
}

// StaticPose always returns the same pose.
type StaticPose fractal.Pose

func (p StaticPose) Pose(uint64, float32) fractal.Pose { return fractal.Pose(p) }

// SpinningPose turns the host about the global up axis at Rate rad/s.
type SpinningPose struct {
	Position mgl32.Vec3
	Scale    float32
	Rate     float32
}

func (p SpinningPose) Pose(_ uint64, elapsed float32) fractal.Pose {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	return fractal.Pose{
		Position: p.Position,
		Rotation: mgl32.QuatRotate(p.Rate*elapsed, fractal.Up()),
		Scale:    scale,
	}
}

// WanderingPose drifts the host smoothly around Center and sways it about
// global up, driven by simplex noise sampled along simulated time. Equal
// seeds give equal paths.
type WanderingPose struct {
	Center    mgl32.Vec3
	Scale     float32
	Amplitude float32 // maximum offset from Center on each axis
	Sway      float32 // maximum rotation about up, radians
	Frequency float64 // noise samples per simulated second; zero means 0.25

	noise opensimplex.Noise
}

// NewWanderingPose creates a wandering pose seeded with seed.
func NewWanderingPose(seed int64, amplitude, sway float32) *WanderingPose {
	return &WanderingPose{
		Scale:     1,
		Amplitude: amplitude,
		Sway:      sway,
		noise:     opensimplex.New(seed),
	}
}

func (p *WanderingPose) Pose(_ uint64, elapsed float32) fractal.Pose {
	if p.noise == nil {
		p.noise = opensimplex.New(0)
	}
	freq := p.Frequency
	if freq == 0 {
		freq = 0.25
	}
	t := float64(elapsed) * freq
	// Each channel samples its own row of the 2D field so the axes move
	// independently.
	sample := func(row float64) float32 { return float32(p.noise.Eval2(t, row)) }

	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	offset := mgl32.Vec3{sample(0), sample(7), sample(13)}.Mul(p.Amplitude)
	return fractal.Pose{
		Position: p.Center.Add(offset),
		Rotation: mgl32.QuatRotate(p.Sway*sample(29), fractal.Up()),
		Scale:    scale,
	}
}
