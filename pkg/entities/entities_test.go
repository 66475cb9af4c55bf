package entities_test

import (
	"testing"

	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/synctree"
	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	slot  int
	netID uint16
}

func (c *fakeClient) Slot() int      { return c.slot }
func (c *fakeClient) NetID() uint16  { return c.netID }

func TestAddRemoveKeepsIndexesInStep(t *testing.T) {
	store := entities.NewStore()
	owner := &fakeClient{slot: 0, netID: 5}
	e := entities.New(1<<16|1, 1, synctree.EntityPlayer, owner)

	store.Add(e)
	got, ok := store.Get(1)
	assert.True(t, ok)
	assert.Same(t, e, got)
	assert.Equal(t, 1, store.Len())

	removed, ok := store.Remove(1)
	assert.True(t, ok)
	assert.Same(t, e, removed)

	_, ok = store.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestForEachDeterministicOrder(t *testing.T) {
	store := entities.NewStore()
	owner := &fakeClient{slot: 0, netID: 1}
	for _, id := range []uint16{5, 1, 3} {
		store.Add(entities.New(uint32(id), id, synctree.EntityObject, owner))
	}

	var seen []uint16
	store.ForEach(func(e *entities.Entity) bool {
		seen = append(seen, e.ObjectID())
		return true
	})
	assert.Equal(t, []uint16{5, 1, 3}, seen)

	// Repeated iteration must produce the same order.
	var seenAgain []uint16
	store.ForEach(func(e *entities.Entity) bool {
		seenAgain = append(seenAgain, e.ObjectID())
		return true
	})
	assert.Equal(t, seen, seenAgain)
}

func TestAckedCreationAndDidDeletionMutuallyExclusive(t *testing.T) {
	owner := &fakeClient{slot: 0, netID: 1}
	e := entities.New(1, 1, synctree.EntityObject, owner)

	e.MarkCreated(2)
	assert.True(t, e.AckedCreation(2))
	assert.False(t, e.DidDeletion(2))

	e.MarkCulled(2)
	assert.False(t, e.AckedCreation(2))
	assert.True(t, e.DidDeletion(2))
}

func TestMarkDeletingIsIdempotencyGate(t *testing.T) {
	owner := &fakeClient{slot: 0, netID: 1}
	e := entities.New(1, 1, synctree.EntityObject, owner)

	assert.True(t, e.MarkDeleting())
	assert.False(t, e.MarkDeleting())
	assert.True(t, e.Deleting())
}

func TestGuidLazyAllocation(t *testing.T) {
	owner := &fakeClient{slot: 0, netID: 1}
	e := entities.New(1, 1, synctree.EntityObject, owner)

	_, ok := e.Guid()
	assert.False(t, ok)

	e.SetGuid(0x20001)
	g, ok := e.Guid()
	assert.True(t, ok)
	assert.EqualValues(t, 0x20001, g)
}
