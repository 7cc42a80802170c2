package fractal

import (
	"encoding/json"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/matzehuels/fractal/pkg/errors"
)

// Branching is the fixed number of children per node.
const Branching = 5

// offsetFactor scales the distance between a child and its parent relative to
// the child's level scale.
const offsetFactor = 1.5

var (
	up      = mgl32.Vec3{0, 1, 0}
	right   = mgl32.Vec3{1, 0, 0}
	left    = mgl32.Vec3{-1, 0, 0}
	forward = mgl32.Vec3{0, 0, 1}
	back    = mgl32.Vec3{0, 0, -1}
)

// Up returns the global up axis.
func Up() mgl32.Vec3 { return up }

// Slot describes one of the five fixed child positions.
type Slot struct {
	Direction mgl32.Vec3
	Rotation  mgl32.Quat
}

// Slots holds the descriptors for child indices 0..4.
type Slots [Branching]Slot

// DefaultSlots returns the up, right, left, forward and back slots.
// Each rotation turns the local up axis onto the slot's direction.
func DefaultSlots() Slots {
	return Slots{
		{Direction: up, Rotation: mgl32.QuatIdent()},
		{Direction: right, Rotation: mgl32.QuatRotate(-0.5*math.Pi, forward)},
		{Direction: left, Rotation: mgl32.QuatRotate(0.5*math.Pi, forward)},
		{Direction: forward, Rotation: mgl32.QuatRotate(0.5*math.Pi, right)},
		{Direction: back, Rotation: mgl32.QuatRotate(-0.5*math.Pi, right)},
	}
}

// unitTolerance bounds how far a slot rotation's norm may stray from 1.
const unitTolerance = 1e-3

func (s Slots) validate() error {
	for i, slot := range s {
		if n := slot.Rotation.Len(); mgl32.Abs(n-1) > unitTolerance {
			return errors.New(errors.ErrCodeInvalidConfig, "slot %d rotation has norm %g, want a unit quaternion", i, n)
		}
	}
	return nil
}

// Pose is the world placement of the root supplied by the host each tick.
// A zero Rotation means identity and a zero Scale means 1, so the zero Pose
// places the root at the origin like [IdentityPose].
type Pose struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    float32
}

// WithDefaults fills in a zero Rotation and a zero Scale.
func (p Pose) WithDefaults() Pose {
	if p.Rotation == (mgl32.Quat{}) {
		p.Rotation = mgl32.QuatIdent()
	}
	if p.Scale == 0 {
		p.Scale = 1
	}
	return p
}

type quatJSON struct {
	W float32 `json:"w"`
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

type poseJSON struct {
	Position mgl32.Vec3 `json:"position"`
	Rotation quatJSON   `json:"rotation"`
	Scale    float32    `json:"scale"`
}

// MarshalJSON writes {"position": [x, y, z], "rotation": {"w", "x", "y", "z"}, "scale"}.
func (p Pose) MarshalJSON() ([]byte, error) {
	return json.Marshal(poseJSON{
		Position: p.Position,
		Rotation: quatJSON{W: p.Rotation.W, X: p.Rotation.V[0], Y: p.Rotation.V[1], Z: p.Rotation.V[2]},
		Scale:    p.Scale,
	})
}

func (p *Pose) UnmarshalJSON(data []byte) error {
	var v poseJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Pose{
		Position: v.Position,
		Rotation: mgl32.Quat{W: v.Rotation.W, V: mgl32.Vec3{v.Rotation.X, v.Rotation.Y, v.Rotation.Z}},
		Scale:    v.Scale,
	}
	return nil
}

// IdentityPose places the root at the origin, unrotated, at scale 1.
func IdentityPose() Pose {
	return Pose{Rotation: mgl32.QuatIdent(), Scale: 1}
}

// LevelSize returns the node count of level l, which is 5^l. Callers keep l
// below [DepthLimit]; larger levels overflow int.
func LevelSize(l int) int {
	n := 1
	for range l {
		n *= Branching
	}
	return n
}

// TotalNodes returns the number of nodes in a tree of the given depth.
func TotalNodes(depth int) int {
	total := 0
	for l := range depth {
		total += LevelSize(l)
	}
	return total
}

// LevelScale returns the uniform scale of level l: rootScale halved per level.
func LevelScale(rootScale float32, l int) float32 {
	s := rootScale
	for range l {
		s *= 0.5
	}
	return s
}

// rotateY is a rotation by angle radians about the local up axis.
func rotateY(angle float32) mgl32.Quat {
	return mgl32.QuatRotate(angle, up)
}

// Pack builds the column-major 3×4 transform with basis columns
// R·scale and the translation pos in the fourth column.
func Pack(rot mgl32.Quat, pos mgl32.Vec3, scale float32) mgl32.Mat3x4 {
	r := rot.Mat4().Mat3()
	var m mgl32.Mat3x4
	for c := range 3 {
		col := r.Col(c).Mul(scale)
		m[c*3], m[c*3+1], m[c*3+2] = col[0], col[1], col[2]
	}
	m[9], m[10], m[11] = pos[0], pos[1], pos[2]
	return m
}

// Translation returns the fourth column of a packed transform.
func Translation(m mgl32.Mat3x4) mgl32.Vec3 {
	return mgl32.Vec3{m[9], m[10], m[11]}
}

// Basis returns basis column c (0..2) of a packed transform.
func Basis(m mgl32.Mat3x4, c int) mgl32.Vec3 {
	return mgl32.Vec3{m[c*3], m[c*3+1], m[c*3+2]}
}
