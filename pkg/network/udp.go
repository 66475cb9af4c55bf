package network

import (
	"encoding/binary"
	"net"

	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/wire"
)

const udpReadBufferSize = 4096

// UDPServer is the high-frequency packed-clone channel: a single
// shared socket carrying netClones/netAcks traffic for every connected
// client, adapted from the teacher's pkg/network/udp.go.
type UDPServer struct {
	ClientManager *ClientManager
	Handler       ReplicationHandler
	Port          string
	Transport     *DefaultTransport
}

func NewUDPServer(clientManager *ClientManager, handler ReplicationHandler, transport *DefaultTransport, port string) *UDPServer {
	return &UDPServer{
		ClientManager: clientManager,
		Handler:       handler,
		Transport:     transport,
		Port:          port,
	}
}

// Start listens for and serves UDP packets; read errors are logged
// and the loop keeps reading.
func (s *UDPServer) Start() {
	addr, err := net.ResolveUDPAddr("udp", ":"+s.Port)
	if err != nil {
		log.Error("Failed to resolve UDP address: %v", err)
		return
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Error("Failed to listen on UDP address: %v", err)
		return
	}
	defer conn.Close()
	s.Transport.SetUDPConn(conn)

	log.Info("UDP server listening on %s", addr.String())

	buf := make([]byte, udpReadBufferSize)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Error("Failed to read UDP packet: %v", err)
			continue
		}
		s.handlePacket(from, append([]byte(nil), buf[:n]...))
	}
}

func (s *UDPServer) handlePacket(from *net.UDPAddr, body []byte) {
	if len(body) < 4 {
		log.Warn("Dropping undersized UDP packet from %s", from.String())
		return
	}
	msgType := binary.BigEndian.Uint32(body[0:4])
	payload := body[4:]

	if msgType == wire.Tag(wire.MsgUDPHello) {
		netID, err := wire.DecodeUDPHelloBody(payload)
		if err != nil {
			log.Warn("Malformed UDP hello from %s: %v", from.String(), err)
			return
		}
		client, ok := s.ClientManager.ByNetID(netID)
		if !ok {
			log.Warn("UDP hello for unknown client %d", netID)
			return
		}
		client.UDPAddress = from
		return
	}

	client := s.clientByUDPAddr(from)
	if client == nil {
		log.Warn("Dropping UDP packet from unbound address %s", from.String())
		return
	}
	if err := s.Handler.HandleInbound(client, msgType, payload); err != nil {
		log.Error("Handling UDP message from client %d: %v", client.NetID(), err)
	}
}

func (s *UDPServer) clientByUDPAddr(addr *net.UDPAddr) *Client {
	var found *Client
	s.ClientManager.ForAllClients(func(c *Client) {
		if found != nil {
			return
		}
		if c.UDPAddress != nil && c.UDPAddress.String() == addr.String() {
			found = c
		}
	})
	return found
}
