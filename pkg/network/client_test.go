package network_test

import (
	"net"
	"testing"
	"time"

	"github.com/onesync/core/pkg/network"
	"github.com/stretchr/testify/assert"
)

func TestConnectAssignsDistinctSlots(t *testing.T) {
	cm := network.NewClientManager()
	a, err := cm.Connect(&net.TCPConn{}, 1, "uid-a")
	assert.NoError(t, err)
	b, err := cm.Connect(&net.TCPConn{}, 2, "uid-b")
	assert.NoError(t, err)

	assert.NotEqual(t, a.Slot(), b.Slot())
	assert.NotEqual(t, a.NetID(), b.NetID())
}

func TestDisconnectFreesSlotForReuse(t *testing.T) {
	cm := network.NewClientManager()
	a, _ := cm.Connect(&net.TCPConn{}, 1, "uid-a")
	slot := a.Slot()

	cm.Disconnect(a.NetID())
	_, ok := cm.ByNetID(a.NetID())
	assert.False(t, ok)

	b, err := cm.Connect(&net.TCPConn{}, 2, "uid-b")
	assert.NoError(t, err)
	assert.Equal(t, slot, b.Slot())
}

func TestClientEventsDeliveredOnConnectAndDisconnect(t *testing.T) {
	cm := network.NewClientManager()
	a, _ := cm.Connect(&net.TCPConn{}, 1, "uid-a")

	ev := <-cm.Events()
	assert.Equal(t, network.ClientEventTypeConnect, ev.Type)
	assert.Equal(t, a.NetID(), ev.Client.NetID())

	cm.Disconnect(a.NetID())
	ev = <-cm.Events()
	assert.Equal(t, network.ClientEventTypeDisconnect, ev.Type)
}

func TestPingEWMAUpdatesFromSamples(t *testing.T) {
	cm := network.NewClientManager()
	client, _ := cm.Connect(&net.TCPConn{}, 1, "uid-a")
	client.RecordPing(10 * time.Millisecond)
	client.RecordPing(20 * time.Millisecond)
	assert.Greater(t, client.Ping(), time.Duration(0))
}
