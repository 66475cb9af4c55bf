package workers

import (
	"context"

	"github.com/onesync/core/pkg/log"
	"github.com/onesync/core/pkg/network"
	"github.com/onesync/core/pkg/repositories"
)

// ConnectionEventWorker drains the client manager's connect/disconnect
// channel: on connect it loads the player's checkpoint and logs it
// (the checkpoint is not applied to any entity nor sent to the
// client), on disconnect it hands the
// player's last position off to CheckpointSaveWorker (§4.13),
// adapted from the teacher's pkg/workers/connection.go.
type ConnectionEventWorker struct {
	events     <-chan network.ClientEvent
	repository repositories.Repository
	saveChan   chan<- SaveCheckpointRequest
}

type NewConnectionEventWorkerOptions struct {
	Events     <-chan network.ClientEvent
	Repository repositories.Repository
	SaveChan   chan<- SaveCheckpointRequest
}

func NewConnectionEventWorker(opts NewConnectionEventWorkerOptions) *ConnectionEventWorker {
	return &ConnectionEventWorker{
		events:     opts.Events,
		repository: opts.Repository,
		saveChan:   opts.SaveChan,
	}
}

func (w *ConnectionEventWorker) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-w.events:
			switch event.Type {
			case network.ClientEventTypeConnect:
				w.handleConnect(event.Client)
			case network.ClientEventTypeDisconnect:
				w.handleDisconnect(event.Client)
			}
		}
	}
}

func (w *ConnectionEventWorker) handleConnect(client *network.Client) {
	checkpoint, err := w.repository.LoadCheckpoint(context.Background(), client.UID)
	if err != nil {
		if !repositories.IsNotFound(err) {
			log.Error("Failed to load checkpoint for %s: %v", client.UID, err)
		}
		log.Debug("No checkpoint for %s, spawning at default position", client.UID)
		return
	}
	log.Debug("Loaded checkpoint for %s at (%.1f, %.1f, %.1f)", client.UID, checkpoint.X, checkpoint.Y, checkpoint.Z)
}

func (w *ConnectionEventWorker) handleDisconnect(client *network.Client) {
	var pos repositories.Checkpoint
	client.WithSelf(func() {
		pe := client.PlayerEntity()
		if pe == nil {
			return
		}
		last := pe.LastPosition()
		pos = repositories.Checkpoint{X: float64(last.X()), Y: float64(last.Y()), Z: float64(last.Z())}
	})
	if pos == (repositories.Checkpoint{}) {
		return
	}

	select {
	case w.saveChan <- SaveCheckpointRequest{UID: client.UID, Checkpoint: pos}:
	default:
		log.Warn("Checkpoint save queue full, dropping save for %s", client.UID)
	}
}
