// Package entities owns the canonical entity table: the ordered list
// used for deterministic per-tick iteration, the id-indexed lookup
// used by the ingest pipeline, and each entity's acknowledgement
// bitsets and resend timestamps.
package entities

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/bitset"
	"github.com/onesync/core/pkg/synctree"
)

// MaxClients mirrors synctree.MaxClients: every per-slot bitset in
// this package must be sized the same as the sync-tree node acks it
// sits alongside.
const MaxClients = synctree.MaxClients

// ClientHandle is the minimal view of a connected client an Entity
// needs to hold a weak owner reference without importing the network
// package (which in turn depends on entities for the replication
// state it carries per client).
type ClientHandle interface {
	Slot() int
	NetID() uint16
}

// Entity is the canonical, server-owned representation of one
// replicated object (SyncEntityState).
type Entity struct {
	clientMu sync.RWMutex // entity.client_mutex: protects owner, lastPosition
	owner    ClientHandle
	lastPos  mgl32.Vec3

	handle   uint32
	objectID uint16
	typ      synctree.EntityType
	tree     *synctree.Tree

	timestamp  uint32
	frameIndex uint64

	ackedCreation *bitset.Set
	didDeletion   *bitset.Set

	mu          sync.Mutex // guards lastSyncs/lastResends/deleting/guid
	lastSyncs   [MaxClients]int64
	lastResends [MaxClients]int64
	guid        uint32
	guidSet     bool
	deleting    bool
}

// New builds an Entity owned by owner, with a fresh empty sync tree
// for typ. handle is (playerID+1)<<16 | objectID per the wire
// contract; objectID is also stored separately for fast masking.
func New(handle uint32, objectID uint16, typ synctree.EntityType, owner ClientHandle) *Entity {
	return &Entity{
		owner:         owner,
		handle:        handle,
		objectID:      objectID,
		typ:           typ,
		tree:          synctree.New(typ),
		ackedCreation: bitset.New(MaxClients),
		didDeletion:   bitset.New(MaxClients),
	}
}

func (e *Entity) Handle() uint32              { return e.handle }
func (e *Entity) ObjectID() uint16            { return e.objectID }
func (e *Entity) Type() synctree.EntityType   { return e.typ }
func (e *Entity) Tree() *synctree.Tree        { return e.tree }
func (e *Entity) Timestamp() uint32           { return e.timestamp }
func (e *Entity) SetTimestamp(ts uint32)      { e.timestamp = ts }
func (e *Entity) FrameIndex() uint64          { return e.frameIndex }
func (e *Entity) SetFrameIndex(frame uint64)  { e.frameIndex = frame }

// Owner returns the current weak owner reference, or nil if the
// entity has no live owner.
func (e *Entity) Owner() ClientHandle {
	e.clientMu.RLock()
	defer e.clientMu.RUnlock()
	return e.owner
}

// SetOwner installs a new owner under the writer lock, used by
// creation and by reassign/takeover.
func (e *Entity) SetOwner(owner ClientHandle) {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	e.owner = owner
}

// LastPosition returns the cached position snapshot taken on the last
// tick that read the sync tree, used by drop/rehome after the owner
// (and thus any further tree reads) is gone.
func (e *Entity) LastPosition() mgl32.Vec3 {
	e.clientMu.RLock()
	defer e.clientMu.RUnlock()
	return e.lastPos
}

// SetLastPosition updates the cached position snapshot.
func (e *Entity) SetLastPosition(pos mgl32.Vec3) {
	e.clientMu.Lock()
	defer e.clientMu.Unlock()
	e.lastPos = pos
}

// AckedCreation reports whether slot has acknowledged this entity's
// creation.
func (e *Entity) AckedCreation(slot int) bool { return e.ackedCreation.Get(slot) }

// DidDeletion reports whether creation has been retracted for slot.
func (e *Entity) DidDeletion(slot int) bool { return e.didDeletion.Get(slot) }

// MarkCreated sets acked_creation and clears did_deletion for slot,
// the invariant enforced after a successful create parse.
func (e *Entity) MarkCreated(slot int) {
	e.ackedCreation.Set(slot)
	e.didDeletion.Clear(slot)
}

// MarkCulled sets did_deletion and clears acked_creation for slot,
// used on distance-cull removal.
func (e *Entity) MarkCulled(slot int) {
	e.didDeletion.Set(slot)
	e.ackedCreation.Clear(slot)
}

// ResetAckedCreation clears acked_creation for slot without touching
// did_deletion.
func (e *Entity) ResetAckedCreation(slot int) {
	e.ackedCreation.Clear(slot)
}

// LastSync returns the last successful sync-write time for slot, in
// unix milliseconds.
func (e *Entity) LastSync(slot int) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncs[slot]
}

// LastResend returns the last resend-queue time for slot, in unix
// milliseconds.
func (e *Entity) LastResend(slot int) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastResends[slot]
}

// MarkSynced records now as both the last sync and last resend time
// for slot, per the scheduler's write-success bookkeeping.
func (e *Entity) MarkSynced(slot int, now int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastSyncs[slot] = now
	e.lastResends[slot] = now
}

// ClearTimers zeroes last_syncs/last_resends for every slot, used on
// reassignment.
func (e *Entity) ClearTimers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.lastSyncs {
		e.lastSyncs[i] = 0
		e.lastResends[i] = 0
	}
}

// ResetLastResends zeroes last_resends for every slot without
// touching last_syncs, used after a fresh create so every client is
// immediately eligible to receive it.
func (e *Entity) ResetLastResends() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.lastResends {
		e.lastResends[i] = 0
	}
}

// Deleting reports whether removal has already started for this
// entity, the idempotency gate referenced throughout §4.
func (e *Entity) Deleting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleting
}

// MarkDeleting sets the deleting gate and reports whether this call
// is the one that set it (false if it was already set).
func (e *Entity) MarkDeleting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleting {
		return false
	}
	e.deleting = true
	return true
}

// Guid returns the lazily allocated script handle and whether one has
// been allocated yet.
func (e *Entity) Guid() (uint32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guid, e.guidSet
}

// SetGuid records a script handle allocated for this entity.
func (e *Entity) SetGuid(g uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.guid = g
	e.guidSet = true
}

// Store is the canonical entity table: an ordered, deterministic-
// iteration list and an independent id-indexed lookup, kept in step
// by every mutating method.
type Store struct {
	listMu sync.RWMutex
	list   *orderedmap.OrderedMap[uint16, *Entity]

	idMu sync.RWMutex
	byID map[uint16]*Entity
}

// NewStore returns an empty entity table.
func NewStore() *Store {
	return &Store{
		list: orderedmap.NewOrderedMap[uint16, *Entity](),
		byID: make(map[uint16]*Entity),
	}
}

// Add inserts e into both indexes. The list lock is taken first, the
// id lock second, per the lock-ordering table in §5.
func (s *Store) Add(e *Entity) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	s.idMu.Lock()
	defer s.idMu.Unlock()

	s.list.Set(e.ObjectID(), e)
	s.byID[e.ObjectID()] = e
}

// Remove deletes the entity with the given id from both indexes and
// returns it, or returns ok=false if it was not present. This is the
// single point that invalidates any outstanding weak handle to the
// entity.
func (s *Store) Remove(id uint16) (*Entity, bool) {
	s.listMu.Lock()
	defer s.listMu.Unlock()
	s.idMu.Lock()
	defer s.idMu.Unlock()

	e, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	delete(s.byID, id)
	s.list.Delete(id)
	return e, true
}

// Get looks up an entity by id without touching the list lock.
func (s *Store) Get(id uint16) (*Entity, bool) {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

// Len reports the number of live entities.
func (s *Store) Len() int {
	s.listMu.RLock()
	defer s.listMu.RUnlock()
	return s.list.Len()
}

// ForEach visits every entity in deterministic, insertion order under
// a shared (reader) list lock, stopping early if fn returns false.
// Callers must not call Add/Remove from within fn.
func (s *Store) ForEach(fn func(*Entity) bool) {
	s.listMu.RLock()
	defer s.listMu.RUnlock()
	for el := s.list.Front(); el != nil; el = el.Next() {
		if !fn(el.Value) {
			return
		}
	}
}

// Snapshot returns a copy of the current entity list in deterministic
// order, detaching callers from the list lock for the rest of a tick.
func (s *Store) Snapshot() []*Entity {
	s.listMu.RLock()
	defer s.listMu.RUnlock()
	out := make([]*Entity, 0, s.list.Len())
	for el := s.list.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}
