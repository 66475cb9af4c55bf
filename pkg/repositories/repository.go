package repositories

import "context"

// Repository is the checkpoint persistence surface (§4.13): save a
// leaving player's pose, load it back on the next login.
type Repository interface {
	Close(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, uid string, c Checkpoint) error
	LoadCheckpoint(ctx context.Context, uid string) (Checkpoint, error)
}
