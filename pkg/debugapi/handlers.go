package debugapi

import (
	"encoding/json"
	"net/http"

	"github.com/onesync/core/pkg/network"
)

// objectIDsResponse mirrors the onesync_showObjectIds console
// command's dump: global population counts plus a per-client
// breakdown of how many ids each client currently holds.
type objectIDsResponse struct {
	Sent    int               `json:"sent"`
	Used    int               `json:"used"`
	Stolen  int               `json:"stolen"`
	Clients []clientObjectIDs `json:"clients"`
}

type clientObjectIDs struct {
	NetID uint16 `json:"netId"`
	Slot  int    `json:"slot"`
	Count int    `json:"count"`
}

func objectIDsHandler(core Inspector, clients *network.ClientManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := core.ObjectIDStats()
		resp := objectIDsResponse{Sent: stats.Sent, Used: stats.Used, Stolen: stats.Stolen}

		clients.ForAllClients(func(c *network.Client) {
			var count int
			c.WithSelf(func() { count = len(c.ObjectIDs()) })
			resp.Clients = append(resp.Clients, clientObjectIDs{
				NetID: c.NetID(),
				Slot:  c.Slot(),
				Count: count,
			})
		})

		writeJSON(w, http.StatusOK, resp)
	}
}

type healthResponse struct {
	FrameIndex uint64 `json:"frameIndex"`
	Clients    int    `json:"clients"`
	Entities   int    `json:"entities"`
}

func healthHandler(core Inspector, clients *network.ClientManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			FrameIndex: core.FrameIndex(),
			Clients:    clients.Count(),
			Entities:   core.EntityCount(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
