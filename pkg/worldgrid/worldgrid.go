// Package worldgrid partitions the 2D play area into fixed-size
// sectors and tracks, per sector, which client slot "owns" it because
// their player's focus point is the physically closest. Ownership
// changes drive which client a disconnecting player's orphaned
// entities get rehomed to.
package worldgrid

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Offset shifts the logical plane so that negative coordinates
	// still land in a non-negative sector index.
	Offset = 8192
	// SectorSize is the edge length, in world units, of one sector.
	SectorSize = 75
	// ClaimRadius is the distance from a client's focus within which
	// sectors are claimed.
	ClaimRadius = 149
	// MaxEntriesPerClient bounds the fixed small array of claimed
	// sectors per client: a disc of radius ClaimRadius over SectorSize
	// sectors spans at most an 5x5 neighborhood.
	MaxEntriesPerClient = 25
	// NoSlot marks an accelerator cell or entry as unowned.
	NoSlot = 0xFF
)

// dim is the number of sectors along one axis of the plane.
const dim = (Offset*2)/SectorSize + 2

// Entry is one claimed sector for a client: (sectorX, sectorY, slot).
// An unclaimed entry is the zero value extended with Slot = NoSlot.
type Entry struct {
	SectorX int
	SectorY int
	Slot    uint8
}

func emptyEntry() Entry {
	return Entry{SectorX: 0, SectorY: 0, Slot: NoSlot}
}

// Delta describes one sector whose ownership changed this pass, for
// building the msgWorldGrid broadcast.
type Delta struct {
	Entry     Entry
	Broadcast bool // true => send to all clients, false => this client only
}

// Accelerator is the shared sector -> owner-slot map.
type Accelerator struct {
	mu    sync.RWMutex
	slots [dim][dim]uint8
}

// NewAccelerator returns an Accelerator with every sector unowned.
func NewAccelerator() *Accelerator {
	a := &Accelerator{}
	for x := range a.slots {
		for y := range a.slots[x] {
			a.slots[x][y] = NoSlot
		}
	}
	return a
}

func (a *Accelerator) ownerAt(x, y int) uint8 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if x < 0 || x >= dim || y < 0 || y >= dim {
		return NoSlot
	}
	return a.slots[x][y]
}

func (a *Accelerator) claim(x, y int, slot uint8) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slots[x][y] = slot
}

func (a *Accelerator) releaseIfOwnedBy(x, y int, slot uint8) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if x < 0 || x >= dim || y < 0 || y >= dim {
		return false
	}
	if a.slots[x][y] == slot {
		a.slots[x][y] = NoSlot
		return true
	}
	return false
}

// ReleaseAllOwnedBy clears every accelerator cell owned by slot,
// called on client disconnect.
func (a *Accelerator) ReleaseAllOwnedBy(slot uint8) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var released []Entry
	for x := range a.slots {
		for y := range a.slots[x] {
			if a.slots[x][y] == slot {
				a.slots[x][y] = NoSlot
				released = append(released, Entry{SectorX: x, SectorY: y, Slot: NoSlot})
			}
		}
	}
	return released
}

// ToSector converts a world-space coordinate into its sector index.
func ToSector(coord float32) int {
	return int((coord + Offset) / SectorSize)
}

// ClientGrid is one client's fixed small array of claimed sectors.
type ClientGrid struct {
	entries [MaxEntriesPerClient]Entry
}

// NewClientGrid returns a ClientGrid with every entry empty.
func NewClientGrid() *ClientGrid {
	g := &ClientGrid{}
	for i := range g.entries {
		g.entries[i] = emptyEntry()
	}
	return g
}

// Update implements §4.6 steps 1-3 for one client: release entries
// that fell outside the expanded range, then claim newly-unowned
// sectors within range into free entry slots. It returns the deltas
// to broadcast.
func Update(accel *Accelerator, grid *ClientGrid, slot uint8, focus mgl32.Vec3) []Delta {
	minX := ToSector(focus.X() - ClaimRadius)
	maxX := ToSector(focus.X() + ClaimRadius)
	minY := ToSector(focus.Y() - ClaimRadius)
	maxY := ToSector(focus.Y() + ClaimRadius)

	// Expanded by one sector in every direction, per the spec's
	// "(±1)" slack before an entry is considered released.
	expMinX, expMaxX := minX-1, maxX+1
	expMinY, expMaxY := minY-1, maxY+1

	var deltas []Delta

	// Step 2: release entries outside the expanded range.
	for i := range grid.entries {
		e := grid.entries[i]
		if e.Slot != slot {
			continue
		}
		if e.SectorX >= expMinX && e.SectorX <= expMaxX && e.SectorY >= expMinY && e.SectorY <= expMaxY {
			continue
		}
		accel.releaseIfOwnedBy(e.SectorX, e.SectorY, slot)
		grid.entries[i] = emptyEntry()
		deltas = append(deltas, Delta{Entry: emptyEntry(), Broadcast: true})
	}

	// Step 3: claim unowned sectors in range into free entries.
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			if x < 0 || x >= dim || y < 0 || y >= dim {
				continue // outside the plane; nothing to claim
			}
			if accel.ownerAt(x, y) != NoSlot {
				continue
			}
			if alreadyClaimed(grid, x, y, slot) {
				continue
			}
			idx := freeEntryIndex(grid)
			if idx < 0 {
				continue // fixed array full; drop this sector this pass
			}
			accel.claim(x, y, slot)
			entry := Entry{SectorX: x, SectorY: y, Slot: slot}
			grid.entries[idx] = entry
			deltas = append(deltas, Delta{Entry: entry, Broadcast: true})
		}
	}

	return deltas
}

func alreadyClaimed(grid *ClientGrid, x, y int, slot uint8) bool {
	for _, e := range grid.entries {
		if e.Slot == slot && e.SectorX == x && e.SectorY == y {
			return true
		}
	}
	return false
}

func freeEntryIndex(grid *ClientGrid) int {
	for i, e := range grid.entries {
		if e.Slot == NoSlot {
			return i
		}
	}
	return -1
}

// Entries returns a copy of the client's current claimed sectors,
// excluding empty slots, for wire encoding.
func (g *ClientGrid) Entries() []Entry {
	var out []Entry
	for _, e := range g.entries {
		if e.Slot != NoSlot {
			out = append(out, e)
		}
	}
	return out
}
