package sim

import (
	"context"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/fractal/pkg/fractal"
)

// Batch is the draw input of one level.
type Batch struct {
	Level    int            `json:"level"`
	Count    int            `json:"count"`
	Matrices []mgl32.Mat3x4 `json:"matrices"`
	ColorA   mgl32.Vec4     `json:"color_a"`
	ColorB   mgl32.Vec4     `json:"color_b"`
	Sequence mgl32.Vec4     `json:"sequence"`
	Leaf     bool           `json:"leaf"`
}

// Bounds is the cube a renderer may cull the whole tree against.
type Bounds struct {
	Center mgl32.Vec3 `json:"center"`
	Size   float32    `json:"size"`
}

// Frame is the result of one tick.
//
// Frames returned by [Simulation.Step] share their matrix slices with the
// tree and are overwritten by the next Step. Readers that outlive the tick
// must keep a [Frame.Clone].
type Frame struct {
	RunID     string       `json:"run_id"`
	Tick      uint64       `json:"tick"`
	DeltaTime float32      `json:"dt"`
	Root      fractal.Pose `json:"root"`
	Bounds    Bounds       `json:"bounds"`
	Batches   []Batch      `json:"batches"`
}

// NodeCount returns the number of matrices across all batches.
func (f *Frame) NodeCount() int {
	n := 0
	for _, b := range f.Batches {
		n += b.Count
	}
	return n
}

// Clone returns a deep copy that does not alias the tree buffers.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Batches = make([]Batch, len(f.Batches))
	for i, b := range f.Batches {
		b.Matrices = slices.Clone(b.Matrices)
		c.Batches[i] = b
	}
	return &c
}

// Sink consumes frames. Draw is called once per tick after the whole tree
// has been propagated; it must not retain f or its slices past the call
// without cloning.
type Sink interface {
	Draw(ctx context.Context, f *Frame) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, f *Frame) error

func (fn SinkFunc) Draw(ctx context.Context, f *Frame) error { return fn(ctx, f) }
