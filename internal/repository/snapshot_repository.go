package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"patentvault/internal/engine"
)

// SnapshotRepository persists engine snapshots for restart-safety
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save stores a snapshot as JSONB
func (r *SnapshotRepository) Save(st *engine.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `INSERT INTO snapshots (state) VALUES ($1)`
	if _, err := r.db.Exec(query, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	return nil
}

// LoadLatest retrieves the most recent snapshot, or nil if none exists
func (r *SnapshotRepository) LoadLatest() (*engine.State, error) {
	query := `SELECT state FROM snapshots ORDER BY created_at DESC, id DESC LIMIT 1`

	var data []byte
	err := r.db.QueryRow(query).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var st engine.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &st, nil
}

// Prune deletes all but the newest keep snapshots
func (r *SnapshotRepository) Prune(keep int) error {
	query := `
		DELETE FROM snapshots
		WHERE id NOT IN (SELECT id FROM snapshots ORDER BY created_at DESC, id DESC LIMIT $1)
	`
	if _, err := r.db.Exec(query, keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return nil
}
