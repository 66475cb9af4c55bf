package worldgrid_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/worldgrid"
	"github.com/stretchr/testify/assert"
)

func TestUpdateClaimsSectorsNearFocus(t *testing.T) {
	accel := worldgrid.NewAccelerator()
	grid := worldgrid.NewClientGrid()

	deltas := worldgrid.Update(accel, grid, 0, mgl32.Vec3{0, 0, 0})
	assert.NotEmpty(t, deltas)
	assert.NotEmpty(t, grid.Entries())
}

func TestMutualExclusionAcrossClients(t *testing.T) {
	accel := worldgrid.NewAccelerator()
	gridA := worldgrid.NewClientGrid()
	gridB := worldgrid.NewClientGrid()

	worldgrid.Update(accel, gridA, 0, mgl32.Vec3{0, 0, 0})
	worldgrid.Update(accel, gridB, 1, mgl32.Vec3{0, 0, 0})

	claimedByA := map[[2]int]bool{}
	for _, e := range gridA.Entries() {
		claimedByA[[2]int{e.SectorX, e.SectorY}] = true
	}
	for _, e := range gridB.Entries() {
		assert.False(t, claimedByA[[2]int{e.SectorX, e.SectorY}], "sector %v claimed by both", e)
	}
}

func TestReleaseOnDisconnectClearsAccelerator(t *testing.T) {
	accel := worldgrid.NewAccelerator()
	grid := worldgrid.NewClientGrid()
	worldgrid.Update(accel, grid, 3, mgl32.Vec3{0, 0, 0})
	assert.NotEmpty(t, grid.Entries())

	released := accel.ReleaseAllOwnedBy(3)
	assert.NotEmpty(t, released)

	grid2 := worldgrid.NewClientGrid()
	deltas := worldgrid.Update(accel, grid2, 4, mgl32.Vec3{0, 0, 0})
	assert.NotEmpty(t, deltas)
}

func TestMovingFocusReleasesStaleSectors(t *testing.T) {
	accel := worldgrid.NewAccelerator()
	grid := worldgrid.NewClientGrid()
	worldgrid.Update(accel, grid, 0, mgl32.Vec3{0, 0, 0})
	before := len(grid.Entries())
	assert.Greater(t, before, 0)

	// Move far enough away that none of the old sectors remain within
	// the expanded claim range.
	worldgrid.Update(accel, grid, 0, mgl32.Vec3{100000, 100000, 0})
	minSector := worldgrid.ToSector(100000 - worldgrid.ClaimRadius)
	maxSector := worldgrid.ToSector(100000 + worldgrid.ClaimRadius)
	for _, e := range grid.Entries() {
		assert.GreaterOrEqual(t, e.SectorX, minSector)
		assert.LessOrEqual(t, e.SectorX, maxSector)
	}
}
