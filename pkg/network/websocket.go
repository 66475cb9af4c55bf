package network

import (
	"context"
	"errors"
	"net/http"

	"github.com/onesync/core/pkg/log"
	"nhooyr.io/websocket"
)

// WSServer is the browser/WASM control channel: it upgrades an HTTP
// connection to a WebSocket, adapts it to a net.Conn with
// websocket.NetConn, and hands it to TCPServer.HandleConn so it rides
// the same login/framing path as a raw TCP accept. Adapted from the
// teacher's pkg/network/websocket.go WSServer, rebuilt on
// nhooyr.io/websocket in place of gorilla/websocket.
type WSServer struct {
	TCP  *TCPServer
	Port string
	TLS  *TLSConfig
}

// TLSConfig names a certificate/key pair for serving WSS.
type TLSConfig struct {
	CertFile string
	KeyFile  string
}

func NewWSServer(tcp *TCPServer, port string, tls *TLSConfig) *WSServer {
	return &WSServer{TCP: tcp, Port: port, TLS: tls}
}

// Start listens for and serves WebSocket upgrades until the HTTP
// server fails to accept.
func (s *WSServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	addr := ":" + s.Port
	server := &http.Server{Addr: addr, Handler: mux}

	log.Info("WebSocket server listening on %s", addr)

	var err error
	if s.TLS != nil {
		err = server.ListenAndServeTLS(s.TLS.CertFile, s.TLS.KeyFile)
	} else {
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("WebSocket server error: %v", err)
	}
}

func (s *WSServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		log.Error("Failed to upgrade to WebSocket: %v", err)
		return
	}
	log.Debug("New WebSocket connection from %s", r.RemoteAddr)

	netConn := websocket.NetConn(context.Background(), conn, websocket.MessageBinary)
	defer netConn.Close()

	s.TCP.HandleConn(netConn)
}
