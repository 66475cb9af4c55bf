package objectid_test

import (
	"testing"

	"github.com/onesync/core/pkg/objectid"
	"github.com/stretchr/testify/assert"
)

func TestAllocateDisjoint(t *testing.T) {
	a := objectid.New()
	idsA := a.Allocate(5)
	idsB := a.Allocate(5)

	seen := map[uint16]bool{}
	for _, id := range idsA {
		seen[id] = true
	}
	for _, id := range idsB {
		assert.False(t, seen[id], "id %d allocated to both clients", id)
	}
	assert.Len(t, idsA, 5)
	assert.Len(t, idsB, 5)
}

func TestReleaseReturnsIdOnlyWhenStolenOrDisconnecting(t *testing.T) {
	a := objectid.New()
	ids := a.Allocate(1)
	id := ids[0]
	a.MarkUsed(id)

	// Plain removal, not stolen, not disconnecting: used clears, sent stays.
	a.Release(id, false)
	stats := a.Stats()
	assert.Equal(t, 1, stats.Sent)
	assert.Equal(t, 0, stats.Used)

	a.Steal(id)
	a.Release(id, false)
	stats = a.Stats()
	assert.Equal(t, 0, stats.Sent)
	assert.Equal(t, 0, stats.Stolen)
}

func TestReleaseOnDisconnectAlwaysReturnsId(t *testing.T) {
	a := objectid.New()
	ids := a.Allocate(1)
	id := ids[0]
	a.Release(id, true)
	assert.Equal(t, 0, a.Stats().Sent)
}

func TestEncodeDecodeRunsRoundTrip(t *testing.T) {
	cases := [][]uint16{
		{1},
		{1, 2, 3},
		{1, 5, 6, 7, 20},
		{2, 3, 10, 11, 12, 13, 100},
	}
	for _, ids := range cases {
		runs := objectid.EncodeRuns(ids)
		got := objectid.DecodeRuns(runs)
		assert.Equal(t, ids, got)
	}
}

func TestEncodeRunsSingleFirstId(t *testing.T) {
	// Scenario 1 from the spec: a client's first id is 1, so gap=0, length=0.
	runs := objectid.EncodeRuns([]uint16{1})
	assert.Equal(t, []objectid.GapLength{{Gap: 0, Length: 0}}, runs)
}
