package fractal

import (
	"fmt"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/fractal/pkg/errors"
)

// DefaultBatchSize is the smallest contiguous run of nodes handed to one
// goroutine: one parent's block of five children.
const DefaultBatchSize = Branching

// Propagator recomputes a tree's world state once per tick.
//
// A Propagator holds no per-tree state and may be shared between trees, but a
// single tree must not be propagated concurrently with itself or read while a
// Propagate call on it is running.
type Propagator struct {
	Workers   int // goroutines per level; zero means GOMAXPROCS
	BatchSize int // minimum nodes per goroutine; zero means DefaultBatchSize
}

// NewPropagator creates a propagator. Zero values select the defaults.
func NewPropagator(workers, batchSize int) *Propagator {
	return &Propagator{Workers: workers, BatchSize: batchSize}
}

func (p *Propagator) workers() int {
	if p == nil || p.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return p.Workers
}

func (p *Propagator) batchSize() int {
	if p == nil || p.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return p.BatchSize
}

// Propagate advances every spine angle by its velocity times dt and rewrites
// every node's world state and packed transform.
//
// The root takes its position from root.Position and its rotation from
// root.Rotation composed with its own spin; its matrix uses root.Scale. A zero
// rotation or scale is read as identity or 1, see [Pose.WithDefaults]. Each
// deeper level halves the scale. Levels run in order with a full barrier in
// between, so every level buffer is a complete snapshot of this tick once
// Propagate returns.
//
// Propagate returns an [errors.ErrCodeNotAllocated] error if t is nil or has
// been released.
func (p *Propagator) Propagate(t *Tree, dt float32, root Pose) error {
	if t == nil || t.Released() {
		return errors.New(errors.ErrCodeNotAllocated, "propagate called on a released or nil tree")
	}
	root = root.WithDefaults()

	r := t.levels[0].nodes[0]
	r.SpineAngle += r.SpinVelocity * dt
	r.WorldPosition = root.Position
	r.WorldRotation = root.Rotation.Mul(r.Rotation.Mul(rotateY(r.SpineAngle)))
	t.levels[0].nodes[0] = r
	t.levels[0].matrices[0] = Pack(r.WorldRotation, r.WorldPosition, root.Scale)

	update := updateDirectional
	if t.variant == VariantOrganic {
		update = updateOrganic
	}

	workers := p.workers()
	batch := p.batchSize()
	scale := root.Scale
	for l := 1; l < len(t.levels); l++ {
		scale *= 0.5
		job := levelJob{
			parents:  t.levels[l-1].nodes,
			nodes:    t.levels[l].nodes,
			matrices: t.levels[l].matrices,
			dt:       dt,
			scale:    scale,
		}
		if err := runLevel(job, update, workers, batch); err != nil {
			return fmt.Errorf("level %d: %w", l, err)
		}
	}
	return nil
}

// levelJob is the shared input of one level's update. parents is read-only;
// nodes and matrices are written at disjoint indices by each chunk.
type levelJob struct {
	parents  []Node
	nodes    []Node
	matrices []mgl32.Mat3x4
	dt       float32
	scale    float32
}

type updateFunc func(job *levelJob, lo, hi int) error

// runLevel splits a level into contiguous chunks and returns once all of them
// are done, with the first chunk error if any.
func runLevel(job levelJob, update updateFunc, workers, batch int) error {
	n := len(job.nodes)
	chunk := chunkSize(n, workers, batch)
	if chunk >= n {
		return update(&job, 0, n)
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return update(&job, lo, hi)
		})
	}
	return g.Wait()
}

// chunkSize spreads n nodes over workers, rounded up to a multiple of batch.
func chunkSize(n, workers, batch int) int {
	per := (n + workers - 1) / workers
	per = (per + batch - 1) / batch * batch
	return max(per, batch)
}

func updateDirectional(job *levelJob, lo, hi int) error {
	for i := lo; i < hi; i++ {
		parent := job.parents[i/Branching]
		node := job.nodes[i]
		node.SpineAngle += node.SpinVelocity * job.dt
		node.WorldRotation = parent.WorldRotation.Mul(node.Rotation.Mul(rotateY(node.SpineAngle)))
		node.WorldPosition = parent.WorldPosition.Add(
			parent.WorldRotation.Rotate(node.Direction.Mul(offsetFactor * job.scale)))
		job.nodes[i] = node
		job.matrices[i] = Pack(node.WorldRotation, node.WorldPosition, job.scale)
	}
	return nil
}

func updateOrganic(job *levelJob, lo, hi int) error {
	for i := lo; i < hi; i++ {
		parent := job.parents[i/Branching]
		node := job.nodes[i]
		base := sagRotation(parent.WorldRotation, node.Rotation, node.MaxSagAngle)
		node.SpineAngle += node.SpinVelocity * job.dt
		node.WorldRotation = base.Mul(node.Rotation.Mul(rotateY(node.SpineAngle)))
		node.WorldPosition = parent.WorldPosition.Add(
			node.WorldRotation.Rotate(mgl32.Vec3{0, offsetFactor * job.scale, 0}))
		job.nodes[i] = node
		job.matrices[i] = Pack(node.WorldRotation, node.WorldPosition, job.scale)
	}
	return nil
}

// sagRotation tilts the parent rotation about up×axis, so the child's up axis
// droops away from global up by maxSag scaled with the sine of the
// misalignment. When the axis already lines up with global up the cross
// product vanishes and the parent rotation is returned unchanged.
func sagRotation(parent, local mgl32.Quat, maxSag float32) mgl32.Quat {
	upAxis := parent.Mul(local).Rotate(up)
	sagAxis := up.Cross(upAxis)
	mag := sagAxis.Len()
	if mag <= 0 {
		return parent
	}
	sagAxis = sagAxis.Mul(1 / mag)
	return mgl32.QuatRotate(maxSag*mag, sagAxis).Mul(parent)
}
