package replication

import (
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/spatial"
	"github.com/onesync/core/pkg/synctree"
	"github.com/onesync/core/pkg/wire"
	"github.com/onesync/core/pkg/workers"
	"github.com/onesync/core/pkg/worldgrid"
)

const (
	createDistanceXY = 350
	rehomeDistance   = 300
	frustumSyncDelay = 150 * time.Millisecond
	farSyncDelay     = 500 * time.Millisecond
	midSyncDelay     = 250 * time.Millisecond
	baseSyncDelay    = 50 * time.Millisecond
	farSquared       = 500 * 500
	midSquared       = 250 * 250
)

// relevantEntity is the scheduler's per-tick detached snapshot of one
// entity: (entity, position, vehicle_state_or_null,
// owner_client_strong_ref).
type relevantEntity struct {
	entity     *entities.Entity
	pos        mgl32.Vec3
	vehicle    synctree.VehicleGameState
	hasVehicle bool
	owner      *network.Client
}

// Tick drives one pass of the replication scheduler (§4.4): it is
// invoked by an external network-tick event at the host's configured
// rate.
func (m *Manager) Tick() {
	now := nowMillis()
	frame := m.FrameIndex()

	snapshot := m.Store.Snapshot()
	for _, e := range snapshot {
		e.SetFrameIndex(frame)
	}

	m.updateWorldGrid()
	m.updateEntities(snapshot)

	relevant := make([]relevantEntity, 0, len(snapshot))
	for _, e := range snapshot {
		pos := e.Tree().Position()
		e.SetLastPosition(pos)
		re := relevantEntity{entity: e, pos: pos, owner: ownerClient(e)}
		if e.Type().IsVehicle() {
			if vs, ok := e.Tree().VehicleGameState(); ok {
				re.vehicle, re.hasVehicle = vs, true
			}
		}
		relevant = append(relevant, re)
	}

	m.Clients.ForAllClients(func(client *network.Client) {
		m.tickClient(client, relevant, frame, now)
	})

	m.pruneIDsForGameState(frame)

	m.incrementFrameIndex()
}

func (m *Manager) incrementFrameIndex() {
	atomic.AddUint64(&m.frameIndex, 1)
}

// tickClient runs steps 4-8 of §4.4 for one connected client.
func (m *Manager) tickClient(client *network.Client, relevant []relevantEntity, frame uint64, now int64) {
	if client.PlayerID == 0 {
		return
	}

	var skip bool
	var resendDelayMs int64
	var playerPos mgl32.Vec3
	var havePlayerEntity bool

	client.WithSelf(func() {
		m.flushPendingAcksLocked(client)
		if client.Syncing() {
			skip = true
			return
		}
		client.SetSyncing(true)

		ping := client.Ping()
		variance := client.PingVariance()
		resendDelay := ping*3 - variance
		if resendDelay < time.Millisecond {
			resendDelay = time.Millisecond
		}
		resendDelayMs = resendDelay.Milliseconds()

		if pe := client.PlayerEntity(); pe != nil {
			playerPos = pe.LastPosition()
			havePlayerEntity = true
		}
	})
	if skip {
		return
	}

	list := newSyncCommandList(client, frame, m.Transport)
	list.writeTimeMarker(now)

	for _, re := range relevant {
		m.scheduleEntity(client, re, list, frame, now, resendDelayMs, playerPos, havePlayerEntity)
	}

	m.appendPendingRemovals(client, list)

	job := func() {
		list.finish()
		client.WithSelf(func() { client.SetSyncing(false) })
	}
	if err := m.Pool.Submit(workers.Job(job)); err != nil {
		logf("replication: dropping frame for client %d: %v", client.NetID(), err)
		client.WithSelf(func() { client.SetSyncing(false) })
	}
}

// scheduleEntity decides and, if warranted, writes the create/sync/
// cull record for one entity against one client (§4.4 step 5).
func (m *Manager) scheduleEntity(client *network.Client, re relevantEntity, list *syncCommandList, frame uint64, now int64, resendDelayMs int64, playerPos mgl32.Vec3, havePlayerEntity bool) {
	if re.owner == nil {
		return
	}
	e := re.entity
	slot := client.Slot()
	hasCreated := e.AckedCreation(slot)

	shouldBeCreated := !m.cfg.DistanceCulling
	if client == re.owner {
		shouldBeCreated = true
	}
	if !havePlayerEntity {
		shouldBeCreated = true
	} else if spatial.DistanceXYSquared(re.pos, playerPos) <= createDistanceXY*createDistanceXY {
		shouldBeCreated = true
	}
	if e.Type() == synctree.EntityPlayer {
		shouldBeCreated = true
	}
	if re.hasVehicle && re.vehicle.HasPlayerOccupant() {
		shouldBeCreated = true
	}

	syncDelay := baseSyncDelay
	if m.cfg.RadiusFrequency {
		radius := e.Type().FrustumRadius()
		if !spatial.InFrustum(client.ViewMatrix(), re.pos, radius) {
			syncDelay = frustumSyncDelay
		} else if havePlayerEntity && spatial.DistanceSquared(re.pos, playerPos) > farSquared {
			syncDelay = farSyncDelay
		} else if havePlayerEntity && spatial.DistanceSquared(re.pos, playerPos) > midSquared {
			syncDelay = midSyncDelay
		}
	}

	if shouldBeCreated {
		syncType := uint64(2)
		if !hasCreated || e.DidDeletion(slot) {
			syncType = 1
		}

		lastResend := e.LastResend(slot)
		if lastResend != 0 && now-lastResend < resendDelayMs {
			return
		}
		if syncType == 2 {
			lastSync := e.LastSync(slot)
			if now-lastSync < syncDelay.Milliseconds() {
				return
			}
		}

		if !m.writeSyncRecord(list, e, re.owner, syncType) {
			return
		}
		e.MarkSynced(slot, now)
		client.WithSelf(func() {
			client.IDsForGameState()[frame] = append(client.IDsForGameState()[frame], e.ObjectID())
		})
		return
	}

	if hasCreated {
		client.PendingRemovals().Set(int(e.ObjectID()))
		e.MarkCulled(slot)
	}
}

// writeSyncRecord serializes e's sync tree into a thread-local
// scratch buffer and appends the create/sync record to list's clone
// buffer, rolling back and flushing on overflow (§4.4 step 5).
func (m *Manager) writeSyncRecord(list *syncCommandList, e *entities.Entity, owner *network.Client, syncType uint64) bool {
	scratch := bitstream.New(cloneScratchBytes)
	wrote, err := e.Tree().Unparse(scratch)
	if err != nil {
		logf("replication: unparse failed for object %d: %v", e.ObjectID(), err)
		return false
	}
	if !wrote {
		return false
	}
	payload := scratch.Bytes()[:scratch.Len()]

	start := list.buf.Pos()
	ok := list.buf.Write(3, syncType) &&
		list.buf.Write(13, uint64(e.ObjectID())) &&
		list.buf.Write(16, uint64(owner.NetID()))
	if ok && syncType == 1 {
		ok = list.buf.Write(4, uint64(e.Type()))
	}
	if ok {
		ok = list.buf.Write(32, uint64(e.Timestamp()))
	}
	if ok {
		ok = list.buf.Write(12, uint64(len(payload)))
	}
	if ok {
		ok = list.buf.WriteBits(payload, len(payload)*8)
	}
	if !ok {
		list.buf.SetPos(start)
		list.flush()
		return false
	}
	list.maybeFlush()
	return true
}

// appendPendingRemovals implements §4.4 step 6: emit a remove record
// for every bit set in the client's pending_removals, read without
// locking.
func (m *Manager) appendPendingRemovals(client *network.Client, list *syncCommandList) {
	client.PendingRemovals().Visit(func(i int) bool {
		list.buf.Write(3, tagRemove)
		list.buf.Write(13, uint64(i))
		list.maybeFlush()
		return true
	})
}

// updateWorldGrid runs §4.6 for every connected client whose player
// entity is known.
func (m *Manager) updateWorldGrid() {
	m.Clients.ForAllClients(func(client *network.Client) {
		var pe *entities.Entity
		client.WithSelf(func() { pe = client.PlayerEntity() })
		if pe == nil {
			return
		}
		focus := pe.LastPosition()
		grid := m.clientGrid(client.NetID())
		deltas := worldgrid.Update(m.accel, grid, uint8(client.Slot()), focus)
		for _, d := range deltas {
			m.broadcastWorldGridDelta(client, d)
		}
	})
}

// broadcastWorldGridDelta implements send_world_grid (§4.6): one
// changed entry, sent reliably to every client when d.Broadcast is
// set, and to owner only otherwise.
func (m *Manager) broadcastWorldGridDelta(owner *network.Client, d worldgrid.Delta) {
	entry := bitstream.New(9)
	entry.Write(32, uint64(uint32(int32(d.Entry.SectorX))))
	entry.Write(32, uint64(uint32(int32(d.Entry.SectorY))))
	entry.Write(8, uint64(d.Entry.Slot))
	body := wire.EncodeWorldGridMessage(0, entry.Bytes()[:entry.Len()])

	if !d.Broadcast {
		if err := m.Transport.SendReliable(owner, body); err != nil {
			logf("replication: world-grid send to client %d: %v", owner.NetID(), err)
		}
		return
	}
	m.Clients.ForAllClients(func(c *network.Client) {
		if err := m.Transport.SendReliable(c, body); err != nil {
			logf("replication: world-grid broadcast to client %d: %v", c.NetID(), err)
		}
	})
}

// SendWorldGridSnapshot sends a newly-created Player client the full
// set of sectors it currently owns, the "send the full world-grid
// snapshot to this client" step of §4.7.1.
func (m *Manager) SendWorldGridSnapshot(client *network.Client) {
	grid := m.clientGrid(client.NetID())
	for _, e := range grid.Entries() {
		m.broadcastWorldGridDelta(client, worldgrid.Delta{Entry: e, Broadcast: false})
	}
}

// updateEntities runs §4.5: camera/view-matrix recompute for Players,
// and vehicle-seat occupant reconciliation for Ped/Player entities.
func (m *Manager) updateEntities(snapshot []*entities.Entity) {
	for _, e := range snapshot {
		if e.Type() == synctree.EntityPlayer {
			m.updatePlayerViewMatrix(e)
		}
		if e.Type() == synctree.EntityPed || e.Type() == synctree.EntityPlayer {
			m.updateOccupancy(e)
		}
	}
}

func (m *Manager) updatePlayerViewMatrix(e *entities.Entity) {
	cam, ok := e.Tree().PlayerCamera()
	if !ok {
		return
	}
	view := spatial.ViewMatrix(cam.Mode, e.Tree().Position(), cam.FreeCamPos, cam.CamOffset, cam.CameraX, cam.CameraZ)
	owner := ownerClient(e)
	if owner == nil {
		return
	}
	owner.WithSelf(func() { owner.SetViewMatrix(view) })
}

func (m *Manager) updateOccupancy(e *entities.Entity) {
	ped, ok := e.Tree().PedGameState()
	if !ok {
		return
	}
	if ped.CurVehicle == ped.LastVehicle && ped.CurSeat == ped.LastSeat {
		return
	}

	if ped.LastVehicle != 0 {
		if old, ok := m.Store.Get(ped.LastVehicle); ok {
			old.Tree().ClearOccupantSlot(ped.LastSeat, e.ObjectID())
		}
	}
	if ped.CurVehicle != 0 && ped.CurSeat >= 0 {
		if veh, ok := m.Store.Get(ped.CurVehicle); ok {
			veh.Tree().ClaimOccupantSlot(ped.CurSeat, e.ObjectID(), e.Type() == synctree.EntityPlayer)
		}
	}
	e.Tree().SetPedLast(ped.CurVehicle, ped.CurSeat)
}

// pruneIDsForGameState drops ids_for_game_state entries older than
// frame_index - 100 for every connected client (§4.4 step 8).
func (m *Manager) pruneIDsForGameState(frame uint64) {
	var floor uint64
	if frame > 100 {
		floor = frame - 100
	}
	m.Clients.ForAllClients(func(client *network.Client) {
		client.WithSelf(func() {
			ids := client.IDsForGameState()
			for f := range ids {
				if f < floor {
					delete(ids, f)
				}
			}
		})
	})
}
