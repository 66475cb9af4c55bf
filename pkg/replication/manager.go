// Package replication is the authoritative core: the per-frame
// scheduler that decides what each client needs to see (Tick), the
// inbound packet router that mutates entity state (HandleInbound), and
// the disconnect handler that rehomes or deletes a departing client's
// entities (HandleDisconnect/reassignEntity).
package replication

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/events"
	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/objectid"
	"github.com/onesync/core/pkg/scripthandle"
	"github.com/onesync/core/pkg/workers"
	"github.com/onesync/core/pkg/worldgrid"
)

// Config holds the onesync_* runtime flags the scheduler consults
// every tick.
type Config struct {
	DistanceCulling bool
	RadiusFrequency bool
}

// Manager owns every piece of shared replication state: the entity
// table, the object-id space, the world grid, and the per-client
// sector grids. Callers drive it with Tick, HandleInbound, and
// HandleDisconnect.
type Manager struct {
	Store     *entities.Store
	Clients   *network.ClientManager
	Allocator *objectid.Allocator
	Handles   *scripthandle.Pool
	Transport network.Transport
	Pool      Dispatcher
	Events    *events.Manager

	accel   *worldgrid.Accelerator
	gridsMu sync.Mutex
	grids   map[uint16]*worldgrid.ClientGrid

	cfg Config

	frameIndex uint64

	ackPending   map[uint16]*ackAccumulator
	ackPendingMu sync.Mutex
}

// Dispatcher is the minimal surface Manager needs from a worker pool,
// satisfied by *workers.Pool.
type Dispatcher interface {
	Submit(job workers.Job) error
}

// New builds a Manager with empty shared state.
func New(cfg Config, clients *network.ClientManager, transport network.Transport, pool Dispatcher) *Manager {
	m := &Manager{
		Store:      entities.NewStore(),
		Clients:    clients,
		Allocator:  objectid.New(),
		Handles:    scripthandle.New(),
		Transport:  transport,
		Pool:       pool,
		Events:     events.NewManager(),
		accel:      worldgrid.NewAccelerator(),
		grids:      make(map[uint16]*worldgrid.ClientGrid),
		cfg:        cfg,
		ackPending: make(map[uint16]*ackAccumulator),
	}
	m.Events.RegisterHandler(func(e events.Entity) {
		logf("replication: %s object=%d handle=%d", e.Name, e.ObjectID, e.Handle)
	})
	return m
}

// FrameIndex returns the current monotonically increasing tick
// counter.
func (m *Manager) FrameIndex() uint64 {
	return atomic.LoadUint64(&m.frameIndex)
}

// EntityCount returns the number of live entities, for the debug
// surface's health endpoint (§4.14).
func (m *Manager) EntityCount() int {
	return m.Store.Len()
}

// ObjectIDStats returns the global id population counts backing the
// onesync_showObjectIds console/debug surface (§4.14, §6).
func (m *Manager) ObjectIDStats() objectid.Stats {
	return m.Allocator.Stats()
}

func (m *Manager) clientGrid(netID uint16) *worldgrid.ClientGrid {
	m.gridsMu.Lock()
	defer m.gridsMu.Unlock()
	g, ok := m.grids[netID]
	if !ok {
		g = worldgrid.NewClientGrid()
		m.grids[netID] = g
	}
	return g
}

func (m *Manager) dropClientGrid(netID uint16) {
	m.gridsMu.Lock()
	defer m.gridsMu.Unlock()
	delete(m.grids, netID)
}

// nowMillis returns the current wall-clock time in unix milliseconds,
// the unit every resend/sync timer in this package is measured in.
func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func ownerClient(e *entities.Entity) *network.Client {
	owner := e.Owner()
	if owner == nil {
		return nil
	}
	c, _ := owner.(*network.Client)
	return c
}

func logf(format string, args ...interface{}) {
	log.Debug(format, args...)
}

// ackAccumulatorFor returns the client's outbound ack accumulator,
// lazily creating one on first use.
func (m *Manager) ackAccumulatorFor(client *network.Client) *ackAccumulator {
	m.ackPendingMu.Lock()
	defer m.ackPendingMu.Unlock()
	a, ok := m.ackPending[client.NetID()]
	if !ok {
		a = newAckAccumulator(m.Transport)
		m.ackPending[client.NetID()] = a
	}
	return a
}

// flushPendingAcksLocked flushes a client's pending ack accumulator;
// callers must already hold the client's self lock (§4.4 step 4's
// "flush pending acks").
func (m *Manager) flushPendingAcksLocked(client *network.Client) {
	m.ackAccumulatorFor(client).flush(client)
}

// dropAckAccumulator removes a disconnected client's ack accumulator.
func (m *Manager) dropAckAccumulator(netID uint16) {
	m.ackPendingMu.Lock()
	defer m.ackPendingMu.Unlock()
	delete(m.ackPending, netID)
}
