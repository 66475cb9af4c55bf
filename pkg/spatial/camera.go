// Package spatial holds the vector/quaternion math shared by the
// replication scheduler: camera view matrices for frustum culling and
// the flat-plane distance helpers used for interest filtering.
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// CameraMode selects which translation feeds the view matrix.
type CameraMode int

const (
	CameraModePed CameraMode = iota
	CameraModeFree
	CameraModePedOffset
)

// ViewMatrix builds the inverse(translate * rotate) view matrix for a
// Player entity's attached camera block: translation depends on
// camMode, rotation is a quaternion built from (cameraX, 0, cameraZ).
func ViewMatrix(mode CameraMode, pedPos, freeCamPos, camOffset mgl32.Vec3, cameraX, cameraZ float32) mgl32.Mat4 {
	var translation mgl32.Vec3
	switch mode {
	case CameraModePed:
		translation = pedPos
	case CameraModeFree:
		translation = freeCamPos
	case CameraModePedOffset:
		translation = pedPos.Add(camOffset)
	default:
		translation = pedPos
	}

	rotation := mgl32.AnglesToQuat(cameraX, 0, cameraZ, mgl32.XYZ).Mat4()
	translate := mgl32.Translate3D(translation.X(), translation.Y(), translation.Z())
	view := translate.Mul4(rotation)
	return view.Inv()
}

// frustumHalfAngleDeg approximates the host's default camera FOV; the
// spec leaves the exact field of view to the sync-tree/camera
// collaborator, so this is a fixed, documented choice (see DESIGN.md).
const frustumHalfAngleDeg = 50.0

// InFrustum reports whether point lies within the view frustum
// described by view, padded outward by radius world units in every
// direction (the spec's per-type culling radius: 2.5 for Ped/Player,
// 15 for Heli/Boat/Plane, 5 otherwise).
func InFrustum(view mgl32.Mat4, point mgl32.Vec3, radius float32) bool {
	local := mgl32.TransformCoordinate(point, view)

	// Camera looks down -Z in view space; anything behind, even with
	// slack for the radius, is not visible.
	if local.Z() > radius {
		return false
	}
	depth := -local.Z()
	if depth < 0 {
		depth = 0
	}

	halfAngle := mgl32.DegToRad(frustumHalfAngleDeg)
	tanHalf := float32(math.Tan(float64(halfAngle)))
	bound := depth*tanHalf + radius

	return abs32(local.X()) <= bound && abs32(local.Y()) <= bound
}

// DistanceXYSquared returns the squared distance between a and b on
// the X/Y plane only, used by the scheduler's 350-unit creation
// interest check, which is explicitly XY-only.
func DistanceXYSquared(a, b mgl32.Vec3) float32 {
	dx := a.X() - b.X()
	dy := a.Y() - b.Y()
	return dx*dx + dy*dy
}

// DistanceSquared returns the full 3D squared distance, used by the
// scheduler's sync-delay tiering (250²/500²).
func DistanceSquared(a, b mgl32.Vec3) float32 {
	d := a.Sub(b)
	return d.Dot(d)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
