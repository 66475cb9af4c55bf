package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteRepository is the embedded-database checkpoint backend,
// adapted from the teacher's pkg/repositories/sqlite.go, migrations
// directory and all.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string, migrations string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("repositories: opening database: %w", err)
	}

	entries, err := os.ReadDir(migrations)
	if err != nil {
		return nil, fmt.Errorf("repositories: reading migrations directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		migrationPath := filepath.Join(migrations, entry.Name())
		migration, err := os.ReadFile(migrationPath)
		if err != nil {
			return nil, fmt.Errorf("repositories: reading migration %s: %w", migrationPath, err)
		}
		if _, err := db.ExecContext(ctx, string(migration)); err != nil {
			return nil, fmt.Errorf("repositories: executing migration %s: %w", migrationPath, err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveCheckpoint(ctx context.Context, uid string, c Checkpoint) error {
	q := `
	INSERT OR REPLACE INTO checkpoints (uid, x, y, z, heading)
	VALUES (?, ?, ?, ?, ?);
	`
	if _, err := r.db.ExecContext(ctx, q, uid, c.X, c.Y, c.Z, c.Heading); err != nil {
		return fmt.Errorf("repositories: saving checkpoint for %s: %w", uid, err)
	}
	return nil
}

func (r *SQLiteRepository) LoadCheckpoint(ctx context.Context, uid string) (Checkpoint, error) {
	q := `SELECT x, y, z, heading FROM checkpoints WHERE uid = ?;`
	var c Checkpoint
	if err := r.db.QueryRowContext(ctx, q, uid).Scan(&c.X, &c.Y, &c.Z, &c.Heading); err != nil {
		if err == sql.ErrNoRows {
			return Checkpoint{}, &ErrNotFound{}
		}
		return Checkpoint{}, fmt.Errorf("repositories: loading checkpoint for %s: %w", uid, err)
	}
	return c, nil
}
