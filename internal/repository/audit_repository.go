package repository

import (
	"database/sql"
	"fmt"
	"log/slog"

	"patentvault/internal/models"
)

// AuditRepository stores the audit trail of access-sensitive actions.
// It implements the engine's audit sink.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record appends an audit entry. The engine treats auditing as best-effort,
// so failures are logged here rather than propagated into the operation.
func (r *AuditRepository) Record(entry models.AuditLog) {
	query := `
		INSERT INTO audit_logs (actor, action, resource, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	var actor sql.NullInt64
	if entry.Actor != nil {
		actor = sql.NullInt64{Int64: int64(*entry.Actor), Valid: true}
	}

	if _, err := r.db.Exec(query, actor, entry.Action, entry.Resource, entry.Details, entry.CreatedAt); err != nil {
		slog.Error("Failed to record audit entry", "action", entry.Action, "resource", entry.Resource, "error", err)
	}
}

// ListByResource retrieves audit entries for a resource, newest first
func (r *AuditRepository) ListByResource(resource string, limit int) ([]models.AuditLog, error) {
	query := `
		SELECT id, actor, action, resource, details, created_at
		FROM audit_logs
		WHERE resource = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, resource, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditLog
	for rows.Next() {
		var entry models.AuditLog
		var actor sql.NullInt64
		var details sql.NullString
		if err := rows.Scan(&entry.ID, &actor, &entry.Action, &entry.Resource, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if actor.Valid {
			p := models.Principal(actor.Int64)
			entry.Actor = &p
		}
		entry.Details = details.String
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
