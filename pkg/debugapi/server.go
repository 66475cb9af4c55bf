// Package debugapi is the HTTP debug surface (§4.14, §6 console):
// the onesync_showObjectIds console command reimagined as a GET
// endpoint, plus a tick health check. Adapted from the teacher's
// pkg/api/server.go net/http.Server wrapper, routed with gorilla/mux
// the way the teacher routes its own characters API.
package debugapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/objectid"
)

// Inspector is the minimal surface debugapi needs from the
// replication core, satisfied by *replication.Manager. Declared here
// rather than imported to avoid a debugapi<->replication import
// cycle, the same pattern network.ReplicationHandler uses.
type Inspector interface {
	FrameIndex() uint64
	EntityCount() int
	ObjectIDStats() objectid.Stats
}

// Server is the debug HTTP surface, one goroutine, stopped by Stop.
type Server struct {
	http *http.Server
}

// New builds a Server listening on port, backed by core and clients.
func New(port string, core Inspector, clients *network.ClientManager) *Server {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	r.HandleFunc("/onesync/object-ids", objectIDsHandler(core, clients)).Methods(http.MethodGet)
	r.HandleFunc("/onesync/health", healthHandler(core, clients)).Methods(http.MethodGet)

	return &Server{
		http: &http.Server{
			Addr:    ":" + port,
			Handler: r,
		},
	}
}

// Start serves until Stop is called or the listener fails.
func (s *Server) Start() {
	log.Info("Debug API listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Debug API server error: %v", err)
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestIDMiddleware stamps every response with a fresh correlation
// id in the X-Request-Id header; the id is not logged.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}
