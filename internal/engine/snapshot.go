package engine

import (
	"encoding/json"
	"fmt"

	"patentvault/internal/grants"
	"patentvault/internal/registry"
	"patentvault/internal/treasury"
)

// State aggregates the serializable state of the engine and all of its
// collaborators. Capturing it under the engine mutex gives a consistent
// cut across registry, grants, treasury, and the encrypted value service.
type State struct {
	Registry registry.State    `json:"registry"`
	Grants   grants.State      `json:"grants"`
	Treasury treasury.State    `json:"treasury"`
	Encval   json.RawMessage   `json:"encval"`
	Reveals  map[uint64]uint64 `json:"reveals,omitempty"`
}

// Snapshot captures the full system state for restart-safety
func (e *Engine) Snapshot() (*State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	encState, err := e.enc.ExportState()
	if err != nil {
		return nil, fmt.Errorf("failed to export encrypted value state: %w", err)
	}

	reveals := make(map[uint64]uint64, len(e.reveals))
	for req, appID := range e.reveals {
		reveals[req] = appID
	}

	return &State{
		Registry: e.registry.Snapshot(),
		Grants:   e.grants.Snapshot(),
		Treasury: e.treasury.Snapshot(),
		Encval:   encState,
		Reveals:  reveals,
	}, nil
}

// Restore replaces the engine and collaborator state with a snapshot
func (e *Engine) Restore(st *State) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.enc.ImportState(st.Encval); err != nil {
		return fmt.Errorf("failed to import encrypted value state: %w", err)
	}
	e.registry.Restore(st.Registry)
	e.grants.Restore(st.Grants)
	e.treasury.Restore(st.Treasury)

	e.reveals = make(map[uint64]uint64, len(st.Reveals))
	for req, appID := range st.Reveals {
		e.reveals[req] = appID
	}
	return nil
}
