package replication

import (
	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/events"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/synctree"
)

// removeClone implements RemoveClone (§4.7.3, §4.9) for a removal with
// no requesting client: every connected client gets the pending-removal
// bit set.
func (m *Manager) removeClone(e *entities.Entity) {
	m.removeCloneRequestedBy(e, nil)
}

// removeCloneRequestedBy implements RemoveClone (§4.7.3, §4.9): it is
// idempotent, so a remove already in flight from another path is a
// no-op. requester is the client whose explicit remove or disconnect
// triggered this (nil when there is none); every other connected client
// has its pending-removal bit set for this id, since the wire-level
// `<3,13:id>` remove record is only ever produced by draining that
// bitset (§4.4 step 6).
func (m *Manager) removeCloneRequestedBy(e *entities.Entity, requester *network.Client) {
	if !e.MarkDeleting() {
		return
	}

	m.clearVehicleOccupant(e)

	guid, _ := e.Guid()
	m.Events.Trigger(events.Entity{Name: events.EntityRemoved, ObjectID: e.ObjectID(), Handle: guid})

	m.Clients.ForAllClients(func(c *network.Client) {
		if c == requester {
			return
		}
		c.PendingRemovals().Set(int(e.ObjectID()))
	})

	m.Store.Remove(e.ObjectID())
	if owner := ownerClient(e); owner != nil {
		owner.WithSelf(func() { delete(owner.ObjectIDs(), e.ObjectID()) })
	}
	m.Allocator.Release(e.ObjectID(), false)
	m.Handles.Free(e.Handle())
	logf("replication: removed object %d", e.ObjectID())
}

// clearVehicleOccupant drops e's seat claim in whatever vehicle it
// currently occupies, for Ped/Player entities only: a removed
// occupant must not leave a stale occupant reference behind in its
// vehicle's sync tree.
func (m *Manager) clearVehicleOccupant(e *entities.Entity) {
	if e.Type() != synctree.EntityPed && e.Type() != synctree.EntityPlayer {
		return
	}
	ped, ok := e.Tree().PedGameState()
	if !ok || ped.CurVehicle == 0 {
		return
	}
	if veh, ok := m.Store.Get(ped.CurVehicle); ok {
		veh.Tree().ClearOccupantSlot(ped.CurSeat, e.ObjectID())
	}
}

// reassignEntity implements the takeover/rehome migration (§4.7.4,
// §4.10): new ownership, fresh timers, and every node bumped one frame
// ahead with acks cleared. acked_creation is left as it is, so clients
// that already acknowledged the create get sync records, not a new
// create.
func (m *Manager) reassignEntity(e *entities.Entity, target *network.Client) {
	old := ownerClient(e)
	e.SetOwner(target)
	if old != nil {
		old.WithSelf(func() { delete(old.ObjectIDs(), e.ObjectID()) })
	}
	target.WithSelf(func() { target.ObjectIDs()[e.ObjectID()] = struct{}{} })
	m.Allocator.Steal(e.ObjectID())
	e.ClearTimers()

	frame := m.FrameIndex() + 1
	e.Tree().Visit(func(n synctree.Node) bool {
		n.SetFrameIndex(frame)
		n.ResetAcked()
		return true
	})
}
