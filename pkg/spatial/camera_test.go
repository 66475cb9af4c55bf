package spatial_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/spatial"
	"github.com/stretchr/testify/assert"
)

func TestViewMatrixPedMode(t *testing.T) {
	pedPos := mgl32.Vec3{10, 20, 0}
	view := spatial.ViewMatrix(spatial.CameraModePed, pedPos, mgl32.Vec3{}, mgl32.Vec3{}, 0, 0)
	// With zero rotation, the camera origin in view space should map
	// back to the ped position when inverted again.
	inv := view.Inv()
	origin := mgl32.TransformCoordinate(mgl32.Vec3{0, 0, 0}, inv)
	assert.InDelta(t, pedPos.X(), origin.X(), 1e-3)
	assert.InDelta(t, pedPos.Y(), origin.Y(), 1e-3)
}

func TestDistanceSquaredHelpers(t *testing.T) {
	a := mgl32.Vec3{0, 0, 0}
	b := mgl32.Vec3{3, 4, 5}
	assert.InDelta(t, 25.0, spatial.DistanceXYSquared(a, b), 1e-6)
	assert.InDelta(t, 50.0, spatial.DistanceSquared(a, b), 1e-6)
}

func TestInFrustumBehindCamera(t *testing.T) {
	view := spatial.ViewMatrix(spatial.CameraModePed, mgl32.Vec3{}, mgl32.Vec3{}, mgl32.Vec3{}, 0, 0)
	behind := mgl32.Vec3{0, 0, 100}
	assert.False(t, spatial.InFrustum(view, behind, 2.5))
}
