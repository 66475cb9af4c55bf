// Package network is the transport and client-registry layer: a TCP
// connection per client for the reliable/control channel, a shared
// UDP socket for the high-frequency clone channel, and the
// replication state (GameStateClientData) each connected client
// carries. Adapted from the teacher's pkg/network/clients.go.
package network

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/onesync/core/pkg/bitset"
	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/entities"
	"github.com/onesync/core/pkg/objectid"
)

// MaxClients bounds slot assignment; it mirrors entities.MaxClients
// so every per-slot bitset across the module shares one capacity.
const MaxClients = entities.MaxClients

// AckBufferCapacity is the pending-ack bit-stream's fixed capacity.
const AckBufferCapacity = 16 * 1024

// Client is one connected player's session: network plumbing plus
// the per-client replication state the scheduler reads and mutates
// every tick (GameStateClientData).
type Client struct {
	netID      uint16
	slot       int
	TCPConn    net.Conn
	UDPAddress *net.UDPAddr
	PlayerID   int32
	UID        string // authenticated principal's uid, set once at login

	pingMu   sync.Mutex
	ping     time.Duration
	variance time.Duration

	selfMu           sync.Mutex // client_data.self_mutex
	ackBuffer        *bitstream.Buffer
	objectIDs        map[uint16]struct{}
	playerEntity     *entities.Entity
	viewMatrix       mgl32.Mat4
	idsForGameState  map[uint64][]uint16
	pendingRemovals  *bitset.Set
	syncing          bool
	ackTs            uint32
	syncTs           uint32
}

// newClient builds a Client occupying slot.
func newClient(netID uint16, slot int, conn net.Conn) *Client {
	return &Client{
		netID:           netID,
		slot:            slot,
		TCPConn:         conn,
		ackBuffer:       bitstream.New(AckBufferCapacity),
		objectIDs:       make(map[uint16]struct{}),
		idsForGameState: make(map[uint64][]uint16),
		pendingRemovals: bitset.New(objectid.MaxObjectID),
		viewMatrix:      mgl32.Ident4(),
	}
}

// Slot implements entities.ClientHandle.
func (c *Client) Slot() int { return c.slot }

// NetID implements entities.ClientHandle.
func (c *Client) NetID() uint16 { return c.netID }

// Ping returns the last measured round-trip time.
func (c *Client) Ping() time.Duration {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.ping
}

// PingVariance returns the EWMA variance of recent round trips.
func (c *Client) PingVariance() time.Duration {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.variance
}

// RecordPing folds a fresh round-trip sample into the ping/variance
// EWMA (alpha = 0.2, the conventional TCP RTT smoothing constant).
func (c *Client) RecordPing(sample time.Duration) {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	if c.ping == 0 {
		c.ping = sample
		return
	}
	delta := sample - c.ping
	c.ping += delta / 5
	if delta < 0 {
		delta = -delta
	}
	c.variance += (delta - c.variance) / 5
}

// WithSelf runs fn under the client's self mutex, mirroring
// client_data.self_mutex guarding "all per-client state".
func (c *Client) WithSelf(fn func()) {
	c.selfMu.Lock()
	defer c.selfMu.Unlock()
	fn()
}

// AckBuffer returns the pending-ack bit-stream; callers must already
// hold WithSelf.
func (c *Client) AckBuffer() *bitstream.Buffer { return c.ackBuffer }

// ObjectIDs returns the live set of ids allocated to this client;
// callers must already hold WithSelf.
func (c *Client) ObjectIDs() map[uint16]struct{} { return c.objectIDs }

// PlayerEntity returns the weak reference to this client's Player
// entity, or nil if none has been created yet; callers must already
// hold WithSelf.
func (c *Client) PlayerEntity() *entities.Entity { return c.playerEntity }

// SetPlayerEntity installs the weak reference; callers must already
// hold WithSelf.
func (c *Client) SetPlayerEntity(e *entities.Entity) { c.playerEntity = e }

// ViewMatrix returns the cached camera view matrix; callers must
// already hold WithSelf.
func (c *Client) ViewMatrix() mgl32.Mat4 { return c.viewMatrix }

// SetViewMatrix updates the cached camera view matrix; callers must
// already hold WithSelf.
func (c *Client) SetViewMatrix(m mgl32.Mat4) { c.viewMatrix = m }

// IDsForGameState returns the frame_index -> object_id multimap used
// for coarse ack matching; callers must already hold WithSelf.
func (c *Client) IDsForGameState() map[uint64][]uint16 { return c.idsForGameState }

// PendingRemovals returns the bitset of ids owed a removal message.
// It is intentionally readable without WithSelf: the spec documents
// this as a lock-free, tolerated-race read.
func (c *Client) PendingRemovals() *bitset.Set { return c.pendingRemovals }

// Syncing reports whether an outbound frame is already in flight;
// callers must already hold WithSelf.
func (c *Client) Syncing() bool { return c.syncing }

// SetSyncing sets the in-flight gate; callers must already hold
// WithSelf.
func (c *Client) SetSyncing(v bool) { c.syncing = v }

// AckTimestamp returns the newest set-timestamp value this client has
// echoed acks for; callers must already hold WithSelf.
func (c *Client) AckTimestamp() uint32 { return c.ackTs }

// SyncTimestamp returns the newest set-timestamp value used for this
// client's following syncs; callers must already hold WithSelf.
func (c *Client) SyncTimestamp() uint32 { return c.syncTs }

// SetTimestamps updates ackTs/syncTs together, as the set-timestamp
// handler does whenever newTs advances past the current ackTs;
// callers must already hold WithSelf.
func (c *Client) SetTimestamps(v uint32) {
	c.ackTs = v
	c.syncTs = v
}

// ClientEventType distinguishes connect/disconnect notifications.
type ClientEventType int

const (
	ClientEventTypeConnect ClientEventType = iota
	ClientEventTypeDisconnect
)

// ClientEvent is delivered on ClientManager's event channel.
type ClientEvent struct {
	Client *Client
	Type   ClientEventType
}

const clientEventChannelSize = 1024
const clientIDMaxRetries = 1024

// ClientManager owns slot assignment and the connected-client table,
// adapted from the teacher's ClientManager.
type ClientManager struct {
	mu              sync.RWMutex
	clients         map[uint16]*Client
	slots           [MaxClients]bool
	clientEventChan chan ClientEvent
}

// NewClientManager returns an empty ClientManager.
func NewClientManager() *ClientManager {
	return &ClientManager{
		clients:         make(map[uint16]*Client),
		clientEventChan: make(chan ClientEvent, clientEventChannelSize),
	}
}

// Events returns a one-way channel of connect/disconnect
// notifications.
func (cm *ClientManager) Events() <-chan ClientEvent {
	return cm.clientEventChan
}

// Connect assigns a slot and net id to a new TCP connection.
func (cm *ClientManager) Connect(conn net.Conn, playerID int32, uid string) (*Client, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	slot := -1
	for i, used := range cm.slots {
		if !used {
			slot = i
			break
		}
	}
	if slot == -1 {
		return nil, fmt.Errorf("network: no free client slot (max %d)", MaxClients)
	}

	netID, err := cm.generateUniqueNetID(clientIDMaxRetries)
	if err != nil {
		return nil, err
	}

	client := newClient(netID, slot, conn)
	client.PlayerID = playerID
	client.UID = uid
	cm.slots[slot] = true
	cm.clients[netID] = client

	cm.clientEventChan <- ClientEvent{Client: client, Type: ClientEventTypeConnect}
	return client, nil
}

// Disconnect removes a client and frees its slot.
func (cm *ClientManager) Disconnect(netID uint16) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	client, ok := cm.clients[netID]
	if !ok {
		return
	}
	cm.slots[client.slot] = false
	delete(cm.clients, netID)

	cm.clientEventChan <- ClientEvent{Client: client, Type: ClientEventTypeDisconnect}
}

// ByNetID looks up a connected client.
func (cm *ClientManager) ByNetID(netID uint16) (*Client, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	c, ok := cm.clients[netID]
	return c, ok
}

// ForAllClients calls fn for every connected client, in no particular
// order, mirroring the external client registry's for_all_clients.
func (cm *ClientManager) ForAllClients(fn func(*Client)) {
	cm.mu.RLock()
	snapshot := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		snapshot = append(snapshot, c)
	}
	cm.mu.RUnlock()

	for _, c := range snapshot {
		fn(c)
	}
}

// Count reports the number of connected clients.
func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

func (cm *ClientManager) generateUniqueNetID(maxRetries int) (uint16, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		id := uint16(rand.Intn(0xFFFF) + 1) // never 0: reserved for "no target" in takeover
		if _, ok := cm.clients[id]; !ok {
			return id, nil
		}
	}
	return 0, fmt.Errorf("network: failed to generate a unique client id after %d attempts", maxRetries)
}
