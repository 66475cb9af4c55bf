package replication

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/synctree"
	"github.com/stretchr/testify/assert"
)

// buildCreateRecord assembles the sub-record body handleCreate reads:
// object id, object type, a 12-bit payload length, then the payload
// itself.
func buildCreateRecord(t *testing.T, objectID uint16, typ synctree.EntityType, pos mgl32.Vec3) *bitstream.Buffer {
	t.Helper()
	payload := encodePosition(pos)
	buf := bitstream.New(32)
	assert.True(t, buf.Write(13, uint64(objectID)))
	assert.True(t, buf.Write(4, uint64(typ)))
	assert.True(t, buf.Write(12, uint64(len(payload))))
	assert.True(t, buf.WriteBits(payload, len(payload)*8))
	return bitstream.NewFromBytes(buf.Bytes()[:buf.Len()])
}

// TestHandleCreateAllocatesNewEntity covers the §4.7.1 create path: an
// unseen object id spawns a new Entity owned by the submitting client,
// marked used in the global allocator, and acked back to the client.
func TestHandleCreateAllocatesNewEntity(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	client := connectTestClient(t, cm, 1, "alice")

	r := buildCreateRecord(t, 7, synctree.EntityObject, mgl32.Vec3{1, 2, 3})
	err := m.handleCreate(r, client)
	assert.NoError(t, err)

	e, found := m.Store.Get(7)
	assert.True(t, found)
	assert.Equal(t, synctree.EntityObject, e.Type())
	assert.Same(t, client, ownerClient(e))
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, e.Tree().Position())

	var held bool
	client.WithSelf(func() { _, held = client.ObjectIDs()[7] })
	assert.True(t, held)

	acc := m.ackAccumulatorFor(client)
	acc.mu.Lock()
	bufLen := acc.buf.Len()
	acc.mu.Unlock()
	assert.Greater(t, bufLen, 0, "a create ack record should have been queued")
}

// TestHandleCreateDropsRecordForEntityOwnedByAnotherClient asserts
// ownership is enforced on create, not just on sync/remove.
func TestHandleCreateDropsRecordForEntityOwnedByAnotherClient(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	owner := connectTestClient(t, cm, 1, "owner")
	intruder := connectTestClient(t, cm, 2, "intruder")

	e := entities.New(1<<16|9, 9, synctree.EntityObject, owner)
	m.Store.Add(e)

	r := buildCreateRecord(t, 9, synctree.EntityObject, mgl32.Vec3{5, 5, 5})
	err := m.handleCreate(r, intruder)
	assert.NoError(t, err)

	assert.Same(t, owner, ownerClient(e))
	assert.Equal(t, mgl32.Vec3{}, e.Tree().Position(), "intruder's payload must not have been parsed into the entity")
}

// TestAckCreateDoesNotFallThroughToRemove resolves the parser's create
// vs. remove ambiguity: a tag-1 (create ack) sub-record must only mark
// creation acked, never clear pending_removals the way a tag-3
// (remove ack) does.
func TestAckCreateDoesNotFallThroughToRemove(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	owner := connectTestClient(t, cm, 1, "owner")

	e := entities.New(1<<16|4, 4, synctree.EntityObject, owner)
	m.Store.Add(e)
	owner.PendingRemovals().Set(4)

	buf := bitstream.New(4)
	buf.Write(3, 1) // create ack tag
	buf.Write(13, 4)
	buf.Write(3, 7) // end tag

	err := m.handleNetAcks(owner, buf.Bytes()[:buf.Len()])
	assert.NoError(t, err)

	assert.True(t, e.AckedCreation(owner.Slot()))
	assert.True(t, owner.PendingRemovals().Get(4), "a create ack must not clear pending_removals")
}

// TestAckRemoveClearsPendingRemovalOnly is the mirror case: a tag-3
// ack only clears pending_removals, it does not touch acked_creation.
func TestAckRemoveClearsPendingRemovalOnly(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	owner := connectTestClient(t, cm, 1, "owner")
	owner.PendingRemovals().Set(4)

	buf := bitstream.New(4)
	buf.Write(3, 3) // remove ack tag
	buf.Write(13, 4)
	buf.Write(3, 7)

	err := m.handleNetAcks(owner, buf.Bytes()[:buf.Len()])
	assert.NoError(t, err)

	assert.False(t, owner.PendingRemovals().Get(4))
}

// TestHandleRemoveSetsPendingRemovalForBystandersOnly covers the other
// half of removeClone's broadcast contract: every connected client
// other than the one who requested the remove must have its
// pending-removal bit set for the removed id, since that bitset is
// the only mechanism that ever produces a wire-level remove record
// for an observer. The requester itself does not need one.
func TestHandleRemoveSetsPendingRemovalForBystandersOnly(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	owner := connectTestClient(t, cm, 1, "owner")
	bystander := connectTestClient(t, cm, 2, "bystander")

	e := entities.New(1<<16|5, 5, synctree.EntityObject, owner)
	m.Store.Add(e)

	buf := bitstream.New(4)
	buf.Write(13, 5)

	err := m.handleRemove(bitstream.NewFromBytes(buf.Bytes()[:buf.Len()]), owner)
	assert.NoError(t, err)

	assert.True(t, bystander.PendingRemovals().Get(5), "bystander must learn of the removal via pending_removals")
	assert.False(t, owner.PendingRemovals().Get(5), "the requesting client does not need its own removal echoed back")
}

// TestHandleRemoveIsIdempotent exercises removeClone's deleting gate:
// a second remove of the same entity must be a silent no-op, not a
// double-free of its object id.
func TestHandleRemoveIsIdempotent(t *testing.T) {
	m, cm, _ := newTestManager(Config{})
	owner := connectTestClient(t, cm, 1, "owner")

	e := entities.New(1<<16|6, 6, synctree.EntityObject, owner)
	m.Store.Add(e)
	m.Allocator.MarkUsed(6)
	owner.WithSelf(func() { owner.ObjectIDs()[6] = struct{}{} })

	m.removeClone(e)
	_, found := m.Store.Get(6)
	assert.False(t, found)

	// Calling again must not panic or double-release.
	m.removeClone(e)
}
