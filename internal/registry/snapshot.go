package registry

import (
	"patentvault/internal/models"
)

// State is the registry's full serializable contents. Maps keyed by uint64
// survive JSON round-trips because Go encodes integer map keys as strings.
type State struct {
	Applications map[uint64]*models.Application                `json:"applications"`
	Order        []uint64                                      `json:"order"`
	Examiners    map[models.Principal]*models.ExaminerProfile  `json:"examiners"`
	Decisions    map[uint64]*models.ReviewDecision             `json:"decisions"`
	Requests     map[uint64]uint64                             `json:"requests"`
	Accounts     map[models.Principal]*models.PrincipalAccount `json:"accounts"`
	NextID       uint64                                        `json:"next_id"`
	NextAccount  models.Principal                              `json:"next_account"`
}

// Snapshot returns a deep copy of the registry state
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := State{
		Applications: make(map[uint64]*models.Application, len(r.applications)),
		Order:        append([]uint64(nil), r.order...),
		Examiners:    make(map[models.Principal]*models.ExaminerProfile, len(r.examiners)),
		Decisions:    make(map[uint64]*models.ReviewDecision, len(r.decisions)),
		Requests:     make(map[uint64]uint64, len(r.requests)),
		Accounts:     make(map[models.Principal]*models.PrincipalAccount, len(r.accounts)),
		NextID:       r.nextID,
		NextAccount:  r.nextAccount,
	}
	for id, app := range r.applications {
		st.Applications[id] = cloneApplication(app)
	}
	for p, profile := range r.examiners {
		copied := *profile
		st.Examiners[p] = &copied
	}
	for id, d := range r.decisions {
		copied := *d
		st.Decisions[id] = &copied
	}
	for req, id := range r.requests {
		st.Requests[req] = id
	}
	for p, account := range r.accounts {
		copied := *account
		st.Accounts[p] = &copied
	}
	return st
}

// Restore replaces the registry contents with a previously captured state
func (r *Registry) Restore(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.applications = make(map[uint64]*models.Application, len(st.Applications))
	r.byApplicant = make(map[models.Principal][]uint64)
	for id, app := range st.Applications {
		r.applications[id] = cloneApplication(app)
	}
	r.order = append([]uint64(nil), st.Order...)
	for _, id := range r.order {
		if app, ok := r.applications[id]; ok {
			r.byApplicant[app.Applicant] = append(r.byApplicant[app.Applicant], id)
		}
	}

	r.examiners = make(map[models.Principal]*models.ExaminerProfile, len(st.Examiners))
	for p, profile := range st.Examiners {
		copied := *profile
		r.examiners[p] = &copied
	}
	r.decisions = make(map[uint64]*models.ReviewDecision, len(st.Decisions))
	for id, d := range st.Decisions {
		copied := *d
		r.decisions[id] = &copied
	}
	r.requests = make(map[uint64]uint64, len(st.Requests))
	for req, id := range st.Requests {
		r.requests[req] = id
	}
	r.accounts = make(map[models.Principal]*models.PrincipalAccount, len(st.Accounts))
	r.accountNames = make(map[string]models.Principal)
	for p, account := range st.Accounts {
		copied := *account
		r.accounts[p] = &copied
		r.accountNames[account.Name] = p
	}

	r.nextID = st.NextID
	if r.nextID == 0 {
		r.nextID = 1
	}
	r.nextAccount = st.NextAccount
	if r.nextAccount == 0 {
		r.nextAccount = 1
	}
}
