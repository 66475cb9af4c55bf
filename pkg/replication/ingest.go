package replication

import (
	"fmt"

	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/events"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/objectid"
	"github.com/onesync/core/pkg/synctree"
	"github.com/onesync/core/pkg/wire"
)

const requestObjectIdsBatch = 32

var errShortRead = fmt.Errorf("replication: short read on inbound sub-record")

// HandleInbound routes one decoded inbound packet to its handler by
// wire message tag (§4.7, §6's exposed C→S messages). body is the
// still-framed payload as read off the transport, before any
// per-message decompression.
func (m *Manager) HandleInbound(client *network.Client, msgType uint32, body []byte) error {
	switch msgType {
	case wire.Tag(wire.MsgNetClones):
		payload, err := wire.DecodeInboundFrame(body)
		if err != nil {
			return err
		}
		return m.handleNetClones(client, payload)
	case wire.Tag(wire.MsgNetAcks):
		payload, err := wire.DecodeInboundFrame(body)
		if err != nil {
			return err
		}
		return m.handleNetAcks(client, payload)
	case wire.Tag(wire.MsgRequestObjectIds):
		m.handleRequestObjectIds(client)
		return nil
	case wire.Tag(wire.MsgGameStateAck):
		frame, ignored, err := wire.DecodeGameStateAckBody(body)
		if err != nil {
			return err
		}
		m.handleGameStateAck(client, frame, ignored)
		return nil
	case wire.Tag(wire.MsgTimeSyncReq):
		t, seq, err := wire.DecodeTimeSyncReqBody(body)
		if err != nil {
			return err
		}
		m.handleTimeSyncReq(client, t, seq)
		return nil
	default:
		return fmt.Errorf("replication: unknown inbound message tag %d", msgType)
	}
}

// handleNetClones dispatches each sub-record of a netClones packet by
// its 3-bit tag, ending the parse on structural failure or an unknown
// tag (§4.7, §7).
func (m *Manager) handleNetClones(client *network.Client, payload []byte) error {
	r := bitstream.NewFromBytes(payload)
	for {
		tag, ok := r.Read(3)
		if !ok {
			return nil
		}
		var err error
		switch tag {
		case tagCreate:
			err = m.handleCreate(r, client)
		case tagSync:
			err = m.handleSync(r, client)
		case tagRemove:
			err = m.handleRemove(r, client)
		case tagTakeover:
			err = m.handleTakeover(r, client)
		case tagTimeSync:
			err = m.handleSetTimestamp(r, client)
		case tagEnd:
			return nil
		default:
			logf("replication: unknown clone sub-record tag %d from client %d, ending parse", tag, client.NetID())
			return nil
		}
		if err != nil {
			logf("replication: clone sub-record failed, ending parse: %v", err)
			return nil
		}
	}
}

// handleNetAcks dispatches each sub-record of a netAcks packet: the
// client confirming receipt of a server-sent create or remove.
func (m *Manager) handleNetAcks(client *network.Client, payload []byte) error {
	r := bitstream.NewFromBytes(payload)
	slot := client.Slot()
	for {
		tag, ok := r.Read(3)
		if !ok {
			return nil
		}
		switch tag {
		case 1: // clone create ack
			objectID, ok := r.Read(13)
			if !ok {
				return errShortRead
			}
			if e, found := m.Store.Get(uint16(objectID)); found {
				e.Tree().Visit(func(n synctree.Node) bool {
					n.SetAcked(slot, true)
					return true
				})
				e.MarkCreated(slot)
			}
		case 3: // clone remove ack
			objectID, ok := r.Read(13)
			if !ok {
				return errShortRead
			}
			client.PendingRemovals().Clear(int(objectID))
		case 7:
			return nil
		default:
			logf("replication: unknown ack sub-record tag %d from client %d, ending parse", tag, client.NetID())
			return nil
		}
	}
}

// handleCreate implements §4.7.1.
func (m *Manager) handleCreate(r *bitstream.Buffer, client *network.Client) error {
	objectID, ok := r.Read(13)
	if !ok {
		return errShortRead
	}
	objectType, ok := r.Read(4)
	if !ok {
		return errShortRead
	}
	length, ok := r.Read(12)
	if !ok {
		return errShortRead
	}
	payload, ok := r.ReadBits(int(length) * 8)
	if !ok {
		return errShortRead
	}

	entity, existed := m.Store.Get(uint16(objectID))
	createdHere := false

	if existed {
		if ownerClient(entity) != client {
			logf("replication: create for object %d owned by another client, dropping", objectID)
			return nil
		}
	} else {
		handle := uint32(client.PlayerID+1)<<16 | uint32(objectID)
		entity = entities.New(handle, uint16(objectID), synctree.EntityType(objectType), client)
		m.Store.Add(entity)
		m.Allocator.MarkUsed(uint16(objectID))
		client.WithSelf(func() { client.ObjectIDs()[uint16(objectID)] = struct{}{} })
		createdHere = true
	}

	tree := entity.Tree()
	if err := tree.Parse(bitstream.NewFromBytes(payload), m.FrameIndex()); err != nil {
		logf("replication: parse failed for object %d: %v", objectID, err)
		return nil
	}
	entity.SetTimestamp(uint32(nowMillis()))
	entity.ResetLastResends()

	if createdHere {
		tree.Visit(func(n synctree.Node) bool {
			n.ResetAcked()
			return true
		})
	}

	m.ackAccumulatorFor(client).writeAckCreate(uint16(objectID), client)

	if createdHere {
		m.handleEntityCreated(entity)
	}

	if entity.Type() == synctree.EntityPlayer {
		m.handlePlayerCreated(client, entity)
	}

	return nil
}

// handleEntityCreated runs for every freshly-created entity regardless
// of type: it clears the id's pending-removal bit on every connected
// client, guarding against a newly-created entity reusing an id that
// is still marked pending-removal from a previous occupant, and emits
// the entityCreated script event behind a stable, lazily-allocated
// script handle.
func (m *Manager) handleEntityCreated(entity *entities.Entity) {
	m.Clients.ForAllClients(func(c *network.Client) {
		c.PendingRemovals().Clear(int(entity.ObjectID()))
	})

	if guid, ok := entity.Guid(); ok {
		m.Events.Trigger(events.Entity{Name: events.EntityCreated, ObjectID: entity.ObjectID(), Handle: guid})
		return
	}
	if handle, allocated := m.Handles.Get(entity.Handle()); allocated {
		entity.SetGuid(handle)
		m.Events.Trigger(events.Entity{Name: events.EntityCreated, ObjectID: entity.ObjectID(), Handle: handle})
	} else {
		logf("replication: script handle pool exhausted for object %d", entity.ObjectID())
	}
}

func (m *Manager) handlePlayerCreated(client *network.Client, entity *entities.Entity) {
	var wasEmpty bool
	client.WithSelf(func() {
		if client.PlayerEntity() == nil {
			wasEmpty = true
		}
		client.SetPlayerEntity(entity)
	})
	if wasEmpty {
		m.SendWorldGridSnapshot(client)
	}
}

// handleSync implements §4.7.2.
func (m *Manager) handleSync(r *bitstream.Buffer, client *network.Client) error {
	objectID, ok := r.Read(13)
	if !ok {
		return errShortRead
	}
	length, ok := r.Read(12)
	if !ok {
		return errShortRead
	}
	payload, ok := r.ReadBits(int(length) * 8)
	if !ok {
		return errShortRead
	}

	entity, found := m.Store.Get(uint16(objectID))
	if !found || ownerClient(entity) != client {
		logf("replication: sync for unowned or unknown object %d, dropping", objectID)
		return nil
	}

	if err := entity.Tree().Parse(bitstream.NewFromBytes(payload), m.FrameIndex()); err != nil {
		logf("replication: parse failed for object %d: %v", objectID, err)
		return nil
	}
	entity.SetTimestamp(uint32(nowMillis()))

	m.ackAccumulatorFor(client).writeAckSync(uint16(objectID), client)
	return nil
}

// handleRemove implements §4.7.3: the ack is unconditional, the
// deletion is conditional on ownership.
func (m *Manager) handleRemove(r *bitstream.Buffer, client *network.Client) error {
	objectID, ok := r.Read(13)
	if !ok {
		return errShortRead
	}

	m.ackAccumulatorFor(client).writeAckRemove(uint16(objectID), client)

	entity, found := m.Store.Get(uint16(objectID))
	if !found {
		return nil
	}
	if owner := ownerClient(entity); owner != nil && owner != client {
		logf("replication: remove of object %d submitted by non-owner, dropping", objectID)
		return nil
	}
	m.removeCloneRequestedBy(entity, client)
	return nil
}

// handleTakeover implements §4.7.4.
func (m *Manager) handleTakeover(r *bitstream.Buffer, client *network.Client) error {
	targetNetID, ok := r.Read(16)
	if !ok {
		return errShortRead
	}
	objectID, ok := r.Read(13)
	if !ok {
		return errShortRead
	}

	entity, found := m.Store.Get(uint16(objectID))
	if !found {
		return nil
	}

	var target *network.Client
	if targetNetID == 0 {
		target = client
	} else {
		target, found = m.Clients.ByNetID(uint16(targetNetID))
		if !found {
			return nil
		}
	}

	owner := ownerClient(entity)
	if owner != nil && owner == target {
		return nil // no-op migration: target already owns it
	}
	if owner != nil && owner != client {
		logf("replication: takeover of object %d submitted by non-owner", objectID)
		return nil
	}

	m.reassignEntity(entity, target)
	return nil
}

// handleSetTimestamp implements §4.7.5.
func (m *Manager) handleSetTimestamp(r *bitstream.Buffer, client *network.Client) error {
	newTs, ok := r.Read(32)
	if !ok {
		return errShortRead
	}

	m.ackAccumulatorFor(client).writeAckTimestamp(uint32(newTs), client)

	client.WithSelf(func() {
		if client.AckTimestamp() < uint32(newTs) {
			client.SetTimestamps(uint32(newTs))
		}
	})
	return nil
}

// handleRequestObjectIds answers msgRequestObjectIds by allocating a
// fresh batch and sending it back as msgObjectIds.
func (m *Manager) handleRequestObjectIds(client *network.Client) {
	ids := m.Allocator.Allocate(requestObjectIdsBatch)
	if len(ids) == 0 {
		logf("replication: object-id space exhausted, cannot serve request from client %d", client.NetID())
		return
	}
	client.WithSelf(func() {
		for _, id := range ids {
			client.ObjectIDs()[id] = struct{}{}
		}
	})

	runs := objectIDRunsToWire(ids)
	body := wire.EncodeObjectIdsMessage(runs)
	if err := m.Transport.SendReliable(client, body); err != nil {
		logf("replication: sending object ids to client %d: %v", client.NetID(), err)
	}
}

// handleGameStateAck implements the coarse per-frame ack match: every
// id the scheduler recorded for frame that the client hasn't asked to
// ignore gets its sync-tree nodes marked acked for this slot, as long
// as creation has actually landed (§4.4 step 5's ids_for_game_state).
func (m *Manager) handleGameStateAck(client *network.Client, frame uint64, ignored []uint16) {
	slot := client.Slot()
	ignoreSet := make(map[uint16]struct{}, len(ignored))
	for _, id := range ignored {
		ignoreSet[id] = struct{}{}
	}

	var ids []uint16
	client.WithSelf(func() {
		ids = append(ids, client.IDsForGameState()[frame]...)
		delete(client.IDsForGameState(), frame)
	})

	for _, id := range ids {
		entity, found := m.Store.Get(id)
		if !found {
			continue
		}
		if !entity.AckedCreation(slot) || entity.DidDeletion(slot) {
			continue
		}
		if _, skip := ignoreSet[id]; skip {
			continue
		}
		entity.Tree().Visit(func(n synctree.Node) bool {
			if n.FrameIndex() <= frame {
				n.SetAcked(slot, true)
			}
			return true
		})
	}
}

// handleTimeSyncReq answers msgTimeSyncReq with the current server
// clock, echoing the client's request time/sequence.
func (m *Manager) handleTimeSyncReq(client *network.Client, reqTime, reqSeq uint32) {
	serverTime := uint32(nowMillis())
	body := wire.EncodeTimeSyncMessage(reqTime, reqSeq, serverTime)
	if err := m.Transport.SendReliable(client, body); err != nil {
		logf("replication: sending time sync to client %d: %v", client.NetID(), err)
	}
}

// objectIDRunsToWire adapts objectid's [gap,length] run encoding into
// the [2]uint16 pairs wire.EncodeObjectIdsBody expects.
func objectIDRunsToWire(ids []uint16) [][2]uint16 {
	runs := objectid.EncodeRuns(ids)
	out := make([][2]uint16, len(runs))
	for i, r := range runs {
		out[i] = [2]uint16{r.Gap, r.Length}
	}
	return out
}
