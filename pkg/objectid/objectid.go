// Package objectid manages the 13-bit network object-id space shared
// by every connected client: allocation, ownership theft on takeover,
// and reclamation on entity removal.
package objectid

import (
	"fmt"
	"sync"

	"github.com/onesync/core/pkg/bitset"
)

// MaxObjectID is the exclusive upper bound of the id space; ids are
// 13-bit values, so valid ids lie in [1, MaxObjectID).
const MaxObjectID = 1 << 13

// Allocator owns the global sent/used/stolen bitsets. It knows
// nothing about which client holds which id; callers track that in
// their own per-client id sets and call back into Allocator to keep
// the global bitsets consistent.
type Allocator struct {
	mu     sync.Mutex
	sent   *bitset.Set
	used   *bitset.Set
	stolen *bitset.Set
}

// New returns an Allocator with an empty id space.
func New() *Allocator {
	return &Allocator{
		sent:   bitset.New(MaxObjectID),
		used:   bitset.New(MaxObjectID),
		stolen: bitset.New(MaxObjectID),
	}
}

// Allocate scans forward from id 1, skipping ids with sent or used
// set, and marks the first n free ids sent. It returns fewer than n
// ids if the space is exhausted.
func (a *Allocator) Allocate(n int) []uint16 {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := make([]uint16, 0, n)
	for id := 1; id < MaxObjectID && len(ids) < n; id++ {
		if a.sent.Get(id) || a.used.Get(id) {
			continue
		}
		a.sent.Set(id)
		ids = append(ids, uint16(id))
	}
	return ids
}

// MarkUsed records that a create for id has been parsed.
func (a *Allocator) MarkUsed(id uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used.Set(int(id))
}

// Steal marks id as having migrated ownership away from its original
// allocator, so on removal it returns to the pool unconditionally.
func (a *Allocator) Steal(id uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stolen.Set(int(id))
}

// Release clears used unconditionally, and clears sent and stolen
// (returning the id to the free pool) only if the id is marked stolen
// or disconnecting is true, per the release rules in the allocation
// policy.
func (a *Allocator) Release(id uint16, disconnecting bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.used.Clear(int(id))
	if a.stolen.Get(int(id)) || disconnecting {
		a.sent.Clear(int(id))
		a.stolen.Clear(int(id))
	}
}

// IsStolen reports whether id was marked stolen.
func (a *Allocator) IsStolen(id uint16) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stolen.Get(int(id))
}

// Stats returns the current population counts, for the
// onesync_showObjectIds console/debug surface.
type Stats struct {
	Sent   int
	Used   int
	Stolen int
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Sent:   a.sent.Count(),
		Used:   a.used.Count(),
		Stolen: a.stolen.Count(),
	}
}

// GapLength is one (gap, length) pair of the run-length encoding used
// on the wire for msgObjectIds.
type GapLength struct {
	Gap    uint16
	Length uint16
}

// EncodeRuns run-length encodes an ascending, deduplicated list of ids
// into gap-prefixed runs: gap = id - 2 - last_emitted (with
// last_emitted initialized to -1 before the first run), and length is
// the count of consecutive successors after the run's first id.
func EncodeRuns(ids []uint16) []GapLength {
	var out []GapLength
	lastEmitted := -1
	i := 0
	for i < len(ids) {
		start := int(ids[i])
		j := i
		for j+1 < len(ids) && int(ids[j+1]) == int(ids[j])+1 {
			j++
		}
		length := j - i
		gap := start - 2 - lastEmitted
		out = append(out, GapLength{Gap: uint16(gap), Length: uint16(length)})
		lastEmitted = int(ids[j])
		i = j + 1
	}
	return out
}

// DecodeRuns reverses EncodeRuns, reconstructing the ascending id
// list exactly.
func DecodeRuns(runs []GapLength) []uint16 {
	var ids []uint16
	lastEmitted := -1
	for _, r := range runs {
		start := lastEmitted + 2 + int(r.Gap)
		for k := 0; k <= int(r.Length); k++ {
			ids = append(ids, uint16(start+k))
		}
		lastEmitted = start + int(r.Length)
	}
	return ids
}

// ErrExhausted names the id-space-exhausted condition. Allocate does
// not return it: when a client requests more ids than remain, Allocate
// returns a short slice.
var ErrExhausted = fmt.Errorf("objectid: id space exhausted")
