package synctree_test

import (
	"testing"

	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/synctree"
	"github.com/stretchr/testify/assert"
)

func TestTreeUnparseThenParseRoundTrip(t *testing.T) {
	tree := synctree.New(synctree.EntityPlayer)

	buf := bitstream.New(512)
	wrote, err := tree.Unparse(buf)
	assert.NoError(t, err)
	assert.True(t, wrote)

	buf.SetPos(0)
	readBack := synctree.New(synctree.EntityPlayer)
	err = readBack.Parse(buf, 7)
	assert.NoError(t, err)
	assert.Equal(t, tree.Position(), readBack.Position())

	cam, ok := readBack.PlayerCamera()
	assert.True(t, ok)
	assert.Equal(t, float32(0), cam.CameraX)
}

func TestVehicleTreeHasOccupants(t *testing.T) {
	tree := synctree.New(synctree.EntityAutomobile)
	vs, ok := tree.VehicleGameState()
	assert.True(t, ok)
	assert.False(t, vs.HasPlayerOccupant())

	_, ok = tree.PlayerCamera()
	assert.False(t, ok)
}

func TestPedTreeSeatRoundTrip(t *testing.T) {
	tree := synctree.New(synctree.EntityPed)
	ps, ok := tree.PedGameState()
	assert.True(t, ok)
	assert.Equal(t, int8(-1), ps.CurSeat)

	buf := bitstream.New(256)
	_, err := tree.Unparse(buf)
	assert.NoError(t, err)

	buf.SetPos(0)
	readBack := synctree.New(synctree.EntityPed)
	err = readBack.Parse(buf, 1)
	assert.NoError(t, err)
	ps2, _ := readBack.PedGameState()
	assert.Equal(t, ps.CurSeat, ps2.CurSeat)
}

func TestVisitStopsEarly(t *testing.T) {
	tree := synctree.New(synctree.EntityPlayer)
	count := 0
	tree.Visit(func(n synctree.Node) bool {
		count++
		return false
	})
	assert.Equal(t, 1, count)
}
