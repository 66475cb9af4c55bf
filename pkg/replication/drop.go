package replication

import (
	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/spatial"
	"github.com/onesync/core/pkg/synctree"
	"github.com/onesync/core/pkg/worldgrid"
)

// HandleDisconnect implements §4.9/§4.10: release the leaving client's
// claimed sectors, rehome or delete everything it owned, reclaim its
// object ids, and clear its ack bit everywhere it still appears.
func (m *Manager) HandleDisconnect(client *network.Client) {
	slot := uint8(client.Slot())

	released := m.accel.ReleaseAllOwnedBy(slot)
	for _, e := range released {
		m.broadcastWorldGridDelta(client, worldgrid.Delta{Entry: e, Broadcast: true})
	}
	m.dropClientGrid(client.NetID())

	var orphans []*entities.Entity
	m.Store.ForEach(func(e *entities.Entity) bool {
		if ownerClient(e) == client {
			orphans = append(orphans, e)
		}
		return true
	})

	for _, e := range orphans {
		if e.Type() == synctree.EntityPlayer {
			m.removeCloneRequestedBy(e, client)
			continue
		}
		if target := m.nearestRehomeTarget(e, client); target != nil {
			m.reassignEntity(e, target)
		} else {
			m.removeCloneRequestedBy(e, client)
		}
	}

	client.WithSelf(func() {
		for id := range client.ObjectIDs() {
			m.Allocator.Release(id, true)
		}
	})

	m.Store.ForEach(func(e *entities.Entity) bool {
		e.Tree().Visit(func(n synctree.Node) bool {
			n.SetAcked(int(slot), false)
			return true
		})
		return true
	})

	m.dropAckAccumulator(client.NetID())
}

// nearestRehomeTarget finds the connected client, other than leaving,
// whose Player entity is closest to e's last known position by full
// 3D distance, subject to the 300-unit rehome radius (§4.9); it
// returns nil if no candidate qualifies.
func (m *Manager) nearestRehomeTarget(e *entities.Entity, leaving *network.Client) *network.Client {
	pos := e.LastPosition()
	var best *network.Client
	bestDist := float32(rehomeDistance * rehomeDistance)

	m.Clients.ForAllClients(func(c *network.Client) {
		if c == leaving {
			return
		}
		var pe *entities.Entity
		c.WithSelf(func() { pe = c.PlayerEntity() })
		if pe == nil {
			return
		}
		d := spatial.DistanceSquared(pe.LastPosition(), pos)
		if d < bestDist {
			bestDist = d
			best = c
		}
	})

	return best
}
