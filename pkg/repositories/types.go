// Package repositories persists each player's last known checkpoint
// (position/heading) across disconnects (§4.13). Nothing seeds an
// entity's sync-tree position from a loaded checkpoint.
package repositories

// Checkpoint is a player's last known pose, saved on disconnect and
// loaded back on the following login.
type Checkpoint struct {
	X, Y, Z float64
	Heading float64
}

// ErrNotFound is returned by LoadCheckpoint when no checkpoint has
// ever been saved for the given uid.
type ErrNotFound struct{}

func (e *ErrNotFound) Error() string {
	return "repositories: checkpoint not found"
}

func IsNotFound(err error) bool {
	_, ok := err.(*ErrNotFound)
	return ok
}
