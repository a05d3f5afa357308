package grants

import (
	"sync"

	"patentvault/internal/models"
)

// Ledger tracks, per encrypted handle, which principals may decrypt it.
// Entries are append-only set semantics: granting twice is a no-op and no
// revoke operation exists. Revoking an examiner deliberately leaves previously
// granted handles readable; visibility once expanded is permanent.
type Ledger struct {
	mu     sync.RWMutex
	grants map[models.Handle]map[models.Principal]struct{}
}

// NewLedger creates an empty access grant ledger
func NewLedger() *Ledger {
	return &Ledger{
		grants: make(map[models.Handle]map[models.Principal]struct{}),
	}
}

// Grant allows principal to decrypt handle. Idempotent.
func (l *Ledger) Grant(handle models.Handle, principal models.Principal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	set, ok := l.grants[handle]
	if !ok {
		set = make(map[models.Principal]struct{})
		l.grants[handle] = set
	}
	set[principal] = struct{}{}
}

// CanDecrypt reports whether principal has been granted access to handle
func (l *Ledger) CanDecrypt(handle models.Handle, principal models.Principal) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	set, ok := l.grants[handle]
	if !ok {
		return false
	}
	_, ok = set[principal]
	return ok
}

// Principals returns all principals granted access to handle
func (l *Ledger) Principals(handle models.Handle) []models.Principal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.Principal
	for p := range l.grants[handle] {
		out = append(out, p)
	}
	return out
}

// State is the serializable form of the ledger
type State struct {
	Grants map[models.Handle][]models.Principal `json:"grants"`
}

// Snapshot exports the ledger contents
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	st := State{Grants: make(map[models.Handle][]models.Principal, len(l.grants))}
	for h, set := range l.grants {
		for p := range set {
			st.Grants[h] = append(st.Grants[h], p)
		}
	}
	return st
}

// Restore replaces the ledger contents with a previously exported state
func (l *Ledger) Restore(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.grants = make(map[models.Handle]map[models.Principal]struct{}, len(st.Grants))
	for h, principals := range st.Grants {
		set := make(map[models.Principal]struct{}, len(principals))
		for _, p := range principals {
			set[p] = struct{}{}
		}
		l.grants[h] = set
	}
}
