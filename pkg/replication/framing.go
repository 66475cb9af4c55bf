package replication

import (
	"sync"

	"github.com/onesync/core/pkg/bitstream"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/wire"
)

// Record tags on the per-client clone bit-stream (§4.4 "Bit-level
// frame format").
const (
	tagCreate     = 1
	tagSync       = 2
	tagRemove     = 3
	tagTakeover   = 4
	tagTimeSync   = 5
	tagEnd        = 7
)

// cloneScratchBytes is the thread-local scratch buffer size each
// entity's sync-tree is serialized into before being copied onto the
// client's clone buffer.
const cloneScratchBytes = 1200

// cloneBufferBytes is the per-client clone buffer's raw capacity.
const cloneBufferBytes = 4096

// flushThresholdBytes is the compressed-size bound that triggers an
// immediate flush mid-tick.
const flushThresholdBytes = 1100

// syncCommandList accumulates one client's outbound clone records for
// a tick and knows how to flush itself through the transport.
type syncCommandList struct {
	client *network.Client
	frame  uint64
	buf    *bitstream.Buffer
	tx     network.Transport
}

func newSyncCommandList(client *network.Client, frame uint64, tx network.Transport) *syncCommandList {
	return &syncCommandList{
		client: client,
		frame:  frame,
		buf:    bitstream.New(cloneBufferBytes),
		tx:     tx,
	}
}

// writeTimeMarker appends the first command of every frame: a 3-bit
// tag 5 followed by the current millisecond clock's two 32-bit
// halves.
func (l *syncCommandList) writeTimeMarker(nowMs int64) {
	hi := uint32(uint64(nowMs) >> 32)
	lo := uint32(uint64(nowMs))
	l.buf.Write(3, tagTimeSync)
	l.buf.Write(32, uint64(hi))
	l.buf.Write(32, uint64(lo))
}

// maybeFlush flushes now if the compressed size of what's buffered so
// far would exceed flushThresholdBytes.
func (l *syncCommandList) maybeFlush() {
	compressed := wire.Compress(l.buf.Bytes()[:l.buf.Len()])
	if len(compressed) > flushThresholdBytes {
		l.flush()
	}
}

// flush sends the buffered records (with the terminator appended) as
// a msgPackedClones frame and resets the buffer for further writes
// within the same tick.
func (l *syncCommandList) flush() {
	l.buf.Write(3, tagEnd)
	body := wire.EncodeClonesFrame(l.frame, l.buf.Bytes()[:l.buf.Len()])
	if err := l.tx.SendUnreliable(l.client, body); err != nil {
		logf("replication: failed to send clone frame to client %d: %v", l.client.NetID(), err)
	}
	l.buf = bitstream.New(cloneBufferBytes)
}

// finish appends the terminator and flushes whatever remains.
func (l *syncCommandList) finish() {
	l.flush()
}

// ackAccumulator buffers one client's outbound ack records between
// flushes (§4.7.1/§4.7.5's ack-create/ack-timestamp writes, §4.8's
// maybe_flush trigger).
type ackAccumulator struct {
	mu  sync.Mutex
	buf *bitstream.Buffer
	tx  network.Transport
}

func newAckAccumulator(tx network.Transport) *ackAccumulator {
	return &ackAccumulator{buf: bitstream.New(cloneBufferBytes), tx: tx}
}

func (a *ackAccumulator) writeAckCreate(objectID uint16, client *network.Client) {
	a.mu.Lock()
	a.buf.Write(3, 1)
	a.buf.Write(13, uint64(objectID))
	a.mu.Unlock()
	a.maybeFlush(client)
}

func (a *ackAccumulator) writeAckSync(objectID uint16, client *network.Client) {
	a.mu.Lock()
	a.buf.Write(3, 2)
	a.buf.Write(13, uint64(objectID))
	a.mu.Unlock()
	a.maybeFlush(client)
}

func (a *ackAccumulator) writeAckRemove(objectID uint16, client *network.Client) {
	a.mu.Lock()
	a.buf.Write(3, 3)
	a.buf.Write(13, uint64(objectID))
	a.mu.Unlock()
	a.maybeFlush(client)
}

func (a *ackAccumulator) writeAckTimestamp(newTs uint32, client *network.Client) {
	a.mu.Lock()
	a.buf.Write(3, 5)
	a.buf.Write(32, uint64(newTs))
	a.mu.Unlock()
	a.maybeFlush(client)
}

func (a *ackAccumulator) maybeFlush(client *network.Client) {
	a.mu.Lock()
	compressed := wire.Compress(a.buf.Bytes()[:a.buf.Len()])
	a.mu.Unlock()
	if len(compressed) > flushThresholdBytes {
		a.flush(client)
	}
}

func (a *ackAccumulator) flush(client *network.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.buf.Len() == 0 {
		return
	}
	a.buf.Write(3, tagEnd)
	body := wire.EncodeAcksFrame(a.buf.Bytes()[:a.buf.Len()])
	if err := a.tx.SendReliable(client, body); err != nil {
		logf("replication: failed to send ack frame to client %d: %v", client.NetID(), err)
	}
	a.buf = bitstream.New(cloneBufferBytes)
}
