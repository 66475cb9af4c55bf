package replication

import (
	"testing"

	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/synctree"
	"github.com/stretchr/testify/assert"
)

// TestHandleDisconnectRehomesNonPlayerEntity: a departing client's
// non-player entity is reassigned to the nearest remaining client with
// a live Player entity, rather than deleted.
func TestHandleDisconnectRehomesNonPlayerEntity(t *testing.T) {
	m, cm, _ := newTestManager(Config{})

	leaving := connectTestClient(t, cm, 1, "leaving")
	staying := connectTestClient(t, cm, 2, "staying")

	stayingPlayer := entities.New(2<<16|2, 2, synctree.EntityPlayer, staying)
	m.Store.Add(stayingPlayer)
	staying.WithSelf(func() { staying.SetPlayerEntity(stayingPlayer) })

	obj := entities.New(1<<16|3, 3, synctree.EntityObject, leaving)
	m.Store.Add(obj)

	m.HandleDisconnect(leaving)

	_, found := m.Store.Get(3)
	assert.True(t, found, "a rehomeable entity must not be deleted")
	assert.Same(t, staying, ownerClient(obj))
}

// TestHandleDisconnectRemovesOwnPlayerEntity: the departing client's
// own Player entity is always removed, never rehomed, regardless of
// who else is connected.
func TestHandleDisconnectRemovesOwnPlayerEntity(t *testing.T) {
	m, cm, _ := newTestManager(Config{})

	leaving := connectTestClient(t, cm, 1, "leaving")
	staying := connectTestClient(t, cm, 2, "staying")

	stayingPlayer := entities.New(2<<16|2, 2, synctree.EntityPlayer, staying)
	m.Store.Add(stayingPlayer)
	staying.WithSelf(func() { staying.SetPlayerEntity(stayingPlayer) })

	leavingPlayer := entities.New(1<<16|1, 1, synctree.EntityPlayer, leaving)
	m.Store.Add(leavingPlayer)
	leaving.WithSelf(func() { leaving.SetPlayerEntity(leavingPlayer) })

	m.HandleDisconnect(leaving)

	_, found := m.Store.Get(1)
	assert.False(t, found, "the departing client's own player entity must be removed, not rehomed")
}

// TestHandleDisconnectSetsPendingRemovalForSurvivingClients: deleting
// the departing client's own Player entity (and any orphan with no
// rehome candidate) must set the removed id's pending-removal bit on
// every other connected client, the only path that produces a
// wire-level remove record for them.
func TestHandleDisconnectSetsPendingRemovalForSurvivingClients(t *testing.T) {
	m, cm, _ := newTestManager(Config{})

	leaving := connectTestClient(t, cm, 1, "leaving")
	staying := connectTestClient(t, cm, 2, "staying")

	leavingPlayer := entities.New(1<<16|1, 1, synctree.EntityPlayer, leaving)
	m.Store.Add(leavingPlayer)
	leaving.WithSelf(func() { leaving.SetPlayerEntity(leavingPlayer) })

	m.HandleDisconnect(leaving)

	assert.True(t, staying.PendingRemovals().Get(1), "staying client must learn of the departed player's removal")
}

// TestHandleDisconnectReleasesObjectIDs: every id the departing client
// held is returned to the free pool unconditionally (disconnecting=true).
func TestHandleDisconnectReleasesObjectIDs(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	leaving := connectTestClient(t, cm, 1, "leaving")

	m.Allocator.Allocate(1) // sends id 1
	m.Allocator.MarkUsed(1)
	leaving.WithSelf(func() { leaving.ObjectIDs()[1] = struct{}{} })

	m.HandleDisconnect(leaving)

	stats := m.Allocator.Stats()
	assert.Equal(t, 0, stats.Used)
	assert.Equal(t, 0, stats.Sent)
}

// TestHandleDisconnectClearsAckBitForLeavingSlot: a surviving entity's
// sync-tree nodes must have the departing client's ack bit cleared so
// a later reused slot does not inherit stale acks.
func TestHandleDisconnectClearsAckBitForLeavingSlot(t *testing.T) {
	m, cm, _ := newTestManager(Config{})

	leaving := connectTestClient(t, cm, 1, "leaving")
	staying := connectTestClient(t, cm, 2, "staying")

	stayingPlayer := entities.New(2<<16|2, 2, synctree.EntityPlayer, staying)
	m.Store.Add(stayingPlayer)
	stayingPlayer.Tree().Visit(func(n synctree.Node) bool {
		n.SetAcked(leaving.Slot(), true)
		return true
	})
	staying.WithSelf(func() { staying.SetPlayerEntity(stayingPlayer) })

	m.HandleDisconnect(leaving)

	stayingPlayer.Tree().Visit(func(n synctree.Node) bool {
		assert.False(t, n.Acked(leaving.Slot()))
		return true
	})
}
