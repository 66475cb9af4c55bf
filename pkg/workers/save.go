package workers

import (
	"context"

	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/repositories"
)

// SaveCheckpointRequest is one player's pose at disconnect time,
// handed off to CheckpointSaveWorker the way the teacher's game loop
// hands player-state snapshots to SaveGameStateWorker.
type SaveCheckpointRequest struct {
	UID        string
	Checkpoint repositories.Checkpoint
}

// CheckpointSaveWorker drains disconnect-time checkpoint saves off a
// buffered channel so the disconnect path never blocks on a database
// round trip (§4.13).
type CheckpointSaveWorker struct {
	repository repositories.Repository
	saveChan   <-chan SaveCheckpointRequest
}

type NewCheckpointSaveWorkerOptions struct {
	Repository repositories.Repository
	SaveChan   <-chan SaveCheckpointRequest
}

func NewCheckpointSaveWorker(opts NewCheckpointSaveWorkerOptions) *CheckpointSaveWorker {
	return &CheckpointSaveWorker{
		repository: opts.Repository,
		saveChan:   opts.SaveChan,
	}
}

func (w *CheckpointSaveWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-w.saveChan:
			if err := w.repository.SaveCheckpoint(ctx, req.UID, req.Checkpoint); err != nil {
				log.Error("Failed to save checkpoint for %s: %v", req.UID, err)
			}
		}
	}
}
