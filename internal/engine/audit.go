package engine

import (
	"sync"

	"patentvault/internal/models"
)

// MemoryAudit is an in-process audit sink used when no database is
// configured and in tests.
type MemoryAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

// NewMemoryAudit creates an empty in-memory audit sink
func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

// Record appends an audit entry
func (a *MemoryAudit) Record(entry models.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry.ID = uint64(len(a.entries) + 1)
	a.entries = append(a.entries, entry)
}

// Entries returns a copy of all recorded entries in order
func (a *MemoryAudit) Entries() []models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.AuditLog(nil), a.entries...)
}
