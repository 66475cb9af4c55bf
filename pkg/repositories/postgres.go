package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PostgresRepository persists checkpoints in a `checkpoints` table
// keyed by the authenticated uid, adapted from the teacher's
// pkg/repositories/postgres.go player-position upsert.
type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to connStr. It panics on connection
// failure, same as the teacher's constructor; the caller owns Close.
func NewPostgresRepository(ctx context.Context, connStr string) Repository {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		panic(fmt.Sprintf("repositories: unable to connect to database: %v", err))
	}
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveCheckpoint(ctx context.Context, uid string, c Checkpoint) error {
	q := `
	INSERT INTO checkpoints (uid, updated_at, x, y, z, heading) VALUES ($1, now(), $2, $3, $4, $5)
	ON CONFLICT (uid) DO UPDATE SET updated_at = now(), x = $2, y = $3, z = $4, heading = $5;
	`
	if _, err := r.conn.Exec(ctx, q, uid, c.X, c.Y, c.Z, c.Heading); err != nil {
		return fmt.Errorf("repositories: saving checkpoint for %s: %w", uid, err)
	}
	return nil
}

func (r *PostgresRepository) LoadCheckpoint(ctx context.Context, uid string) (Checkpoint, error) {
	q := `SELECT x, y, z, heading FROM checkpoints WHERE uid = $1;`
	var c Checkpoint
	if err := r.conn.QueryRow(ctx, q, uid).Scan(&c.X, &c.Y, &c.Z, &c.Heading); err != nil {
		if err == pgx.ErrNoRows {
			return Checkpoint{}, &ErrNotFound{}
		}
		return Checkpoint{}, fmt.Errorf("repositories: loading checkpoint for %s: %w", uid, err)
	}
	return c, nil
}
