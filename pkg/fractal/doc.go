// Package fractal builds and animates a five-way branching fractal tree.
//
// # Overview
//
// A [Tree] is stored as an array of levels. Level 0 holds the root; level L
// holds 5^L nodes in a flat slice, and node i at level L has its parent at
// index i/5 in level L-1. Every node belongs to one of five child slots
// (up, right, left, forward, back) picked by i%5, which fixes its local
// direction and local rotation for the lifetime of the tree.
//
// Once per tick, a [Propagator] recomputes the world position, world rotation
// and a packed 3×4 transform for every node:
//
//	tree, err := fractal.Build(6, fractal.DefaultSlots(), &fractal.BuildOptions{
//	    Variant: fractal.VariantOrganic,
//	    Seed:    42,
//	})
//	if err != nil {
//	    return err
//	}
//	p := fractal.NewPropagator(0, 0)
//	if err := p.Propagate(tree, dt, fractal.IdentityPose()); err != nil {
//	    return err
//	}
//	for l := range tree.Depth() {
//	    draw(tree.Matrices(l))
//	}
//
// # Variants
//
// [VariantDirectional] offsets each child along its slot direction, rotated
// by the parent's world rotation, and spins every node at a fixed 0.125π rad/s.
//
// [VariantOrganic] always grows children along their local up axis, sags each
// branch toward global up by a per-node angle, and spins each node at its own
// randomized velocity, reversed for a configurable fraction of nodes.
//
// # Concurrency
//
// Levels are processed parent-before-child with a full barrier between
// levels. Inside a level, contiguous chunks of nodes are computed by a bounded
// set of goroutines; nodes at the same level never read each other, so no
// locking is needed. Output is bit-identical regardless of the worker count.
//
// World state is never integrated incrementally: every tick derives it from
// the parent's fresh state and the node's accumulated spine angle, which keeps
// floating-point drift out of the tree.
package fractal
