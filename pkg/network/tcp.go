package network

import (
	"context"
	"encoding/binary"
	"net"
	"sync/atomic"

	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/wire"
)

// ReplicationHandler is the surface the TCP/UDP servers need from the
// replication core, satisfied by *replication.Manager. It is declared
// here (rather than imported) because replication already depends on
// network for Client/ClientManager/Transport.
type ReplicationHandler interface {
	HandleInbound(client *Client, msgType uint32, body []byte) error
	HandleDisconnect(client *Client)
}

// Authenticator verifies a login token, the network layer's only
// dependency on pkg/auth.
type Authenticator interface {
	VerifyToken(ctx context.Context, token string) (uid string, err error)
}

// TCPServer is the reliable/control channel: login, object-id grants,
// world-grid deltas, ack frames, and every C→S message other than the
// high-frequency clone stream. Adapted from the teacher's
// pkg/network/tcp.go accept loop.
type TCPServer struct {
	ClientManager *ClientManager
	Auth          Authenticator
	Handler       ReplicationHandler
	Port          string

	nextPlayerID int32
}

func NewTCPServer(clientManager *ClientManager, auth Authenticator, handler ReplicationHandler, port string) *TCPServer {
	return &TCPServer{
		ClientManager: clientManager,
		Auth:          auth,
		Handler:       handler,
		Port:          port,
	}
}

// Start listens for and serves TCP connections; accept errors are
// logged and the loop keeps accepting.
func (s *TCPServer) Start() {
	addr, err := net.ResolveTCPAddr("tcp", ":"+s.Port)
	if err != nil {
		log.Error("Failed to resolve TCP address: %v", err)
		return
	}

	log.Info("TCP server listening on %s", addr.String())

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		log.Error("Failed to listen on TCP address: %v", err)
		return
	}
	defer listener.Close()

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("Failed to accept TCP connection: %v", err)
			continue
		}
		go s.HandleConn(conn)
	}
}

// HandleConn requires a login frame as the first message, then routes
// every subsequent frame into the replication handler until the
// connection drops. It is exported so WSServer can hand it connections
// wrapped out of a WebSocket upgrade, reusing the same login/framing
// path as a raw TCP accept.
func (s *TCPServer) HandleConn(conn net.Conn) {
	client, ok := s.login(conn)
	if !ok {
		conn.Close()
		return
	}

	defer func() {
		log.Debug("TCP connection closed for client %d", client.NetID())
		s.Handler.HandleDisconnect(client)
		s.ClientManager.Disconnect(client.NetID())
		conn.Close()
	}()

	for {
		body, err := ReadFramedMessage(conn)
		if err != nil {
			return
		}
		if len(body) < 4 {
			log.Warn("Dropping undersized TCP frame from client %d", client.NetID())
			continue
		}
		msgType := binary.BigEndian.Uint32(body[0:4])
		if err := s.Handler.HandleInbound(client, msgType, body[4:]); err != nil {
			log.Error("Handling TCP message from client %d: %v", client.NetID(), err)
		}
	}
}

func (s *TCPServer) login(conn net.Conn) (*Client, bool) {
	body, err := ReadFramedMessage(conn)
	if err != nil {
		log.Error("Failed to read login frame: %v", err)
		return nil, false
	}
	if len(body) < 4 {
		log.Warn("Login frame too short")
		return nil, false
	}

	token := string(body[4:])
	uid, err := s.Auth.VerifyToken(context.Background(), token)
	if err != nil {
		log.Warn("Login failed: %v", err)
		_, _ = conn.Write(lengthPrefix(loginFailureBody(err)))
		return nil, false
	}

	playerID := atomic.AddInt32(&s.nextPlayerID, 1)
	client, err := s.ClientManager.Connect(conn, playerID, uid)
	if err != nil {
		log.Error("Failed to register client for uid %s: %v", uid, err)
		_, _ = conn.Write(lengthPrefix(loginFailureBody(err)))
		return nil, false
	}

	log.Debug("Client %d (%s) logged in", client.NetID(), uid)
	if _, err := conn.Write(lengthPrefix(wire.EncodeLoginSuccessMessage(client.NetID()))); err != nil {
		log.Error("Failed to send login success to client %d: %v", client.NetID(), err)
		s.ClientManager.Disconnect(client.NetID())
		return nil, false
	}
	return client, true
}

func loginFailureBody(err error) []byte {
	return wire.EncodeLoginFailureMessage(err.Error())
}
