// Package registry is the core entity store: it owns all application,
// examiner, decision, and account records, enforces uniqueness and existence
// invariants, and hands out dense 1-indexed application ids. Mutation helpers
// assert the precondition they require even though the lifecycle engine
// should never call them out of order.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"patentvault/internal/models"
)

var (
	ErrNotFound          = errors.New("application not found")
	ErrInvalidState      = errors.New("application is in an invalid state for this operation")
	ErrAlreadyAuthorized = errors.New("examiner already authorized")
	ErrNotAnExaminer     = errors.New("principal is not an authorized examiner")
	ErrNoDecision        = errors.New("no decision recorded")
	ErrDecisionExists    = errors.New("decision already recorded")
	ErrUnknownRequest    = errors.New("unknown decryption request")
	ErrAccountExists     = errors.New("account name already taken")
	ErrAccountNotFound   = errors.New("account not found")
)

// Registry is the process-wide application store. Application id 0 is a
// reserved invalid sentinel; ids are assigned densely starting at 1 and are
// never reused.
type Registry struct {
	mu           sync.RWMutex
	applications map[uint64]*models.Application
	order        []uint64
	byApplicant  map[models.Principal][]uint64
	examiners    map[models.Principal]*models.ExaminerProfile
	decisions    map[uint64]*models.ReviewDecision
	requests     map[uint64]uint64 // decryption request id -> application id
	accounts     map[models.Principal]*models.PrincipalAccount
	accountNames map[string]models.Principal
	nextID       uint64
	nextAccount  models.Principal
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		applications: make(map[uint64]*models.Application),
		byApplicant:  make(map[models.Principal][]uint64),
		examiners:    make(map[models.Principal]*models.ExaminerProfile),
		decisions:    make(map[uint64]*models.ReviewDecision),
		requests:     make(map[uint64]uint64),
		accounts:     make(map[models.Principal]*models.PrincipalAccount),
		accountNames: make(map[string]models.Principal),
		nextID:       1,
		nextAccount:  1,
	}
}

// Create allocates the next application id and stores a pending application
func (r *Registry) Create(app models.Application) *models.Application {
	r.mu.Lock()
	defer r.mu.Unlock()

	app.ID = r.nextID
	r.nextID++
	app.Status = models.StatusPending
	app.ConfidentialityMaintained = true

	stored := app
	r.applications[stored.ID] = &stored
	r.order = append(r.order, stored.ID)
	r.byApplicant[stored.Applicant] = append(r.byApplicant[stored.Applicant], stored.ID)
	return cloneApplication(&stored)
}

// Get retrieves a copy of an application by id
func (r *Registry) Get(id uint64) (*models.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.applications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneApplication(app), nil
}

// ListByApplicant returns the applicant's application ids in insertion order
func (r *Registry) ListByApplicant(applicant models.Principal) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uint64(nil), r.byApplicant[applicant]...)
}

// Count returns the number of stored applications
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// SetStatus transitions an application's status, asserting the current status
// is one of allowedFrom.
func (r *Registry) SetStatus(id uint64, to models.ApplicationStatus, allowedFrom ...models.ApplicationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	for _, from := range allowedFrom {
		if app.Status == from {
			app.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move %s from %s to %s", ErrInvalidState, statusLabel(id), app.Status, to)
}

// SetExaminer records the assigned examiner. Asserts the application is
// still pending; an application under review is never reassigned.
func (r *Registry) SetExaminer(id uint64, examiner models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	if app.Status != models.StatusPending {
		return fmt.Errorf("%w: %s is %s, not pending", ErrInvalidState, statusLabel(id), app.Status)
	}
	e := examiner
	app.AssignedExaminer = &e
	return nil
}

// SetPriorityScore replaces the encrypted priority score handle
func (r *Registry) SetPriorityScore(id uint64, handle models.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	app.EncryptedPriorityScore = handle
	return nil
}

// SetDecryptionRequest records an outstanding decryption request and indexes
// its request id. Asserts no request is already outstanding.
func (r *Registry) SetDecryptionRequest(id uint64, req models.DecryptionRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	if app.DecryptionRequest != nil {
		return fmt.Errorf("%w: %s already has an outstanding decryption request", ErrInvalidState, statusLabel(id))
	}
	stored := req
	app.DecryptionRequest = &stored
	r.requests[req.RequestID] = id
	return nil
}

// CompleteDecryptionRequest drops the outstanding request after its callback
// was processed. The request id stays indexed so a duplicate callback is
// recognized as already processed instead of unknown.
func (r *Registry) CompleteDecryptionRequest(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	app.DecryptionRequest = nil
	return nil
}

// ClearDecryptionRequest drops the outstanding request, if any, and unindexes
// its request id so a late callback cannot find the application again.
func (r *Registry) ClearDecryptionRequest(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	if app.DecryptionRequest != nil {
		delete(r.requests, app.DecryptionRequest.RequestID)
		app.DecryptionRequest = nil
	}
	return nil
}

// ApplicationByRequest resolves a decryption request id to an application id
func (r *Registry) ApplicationByRequest(requestID uint64) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.requests[requestID]
	if !ok {
		return 0, ErrUnknownRequest
	}
	return id, nil
}

// SetRevealedScore stores the decrypted score. Asserts it was not set before.
func (r *Registry) SetRevealedScore(id uint64, score uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	if app.RevealedScore != nil {
		return fmt.Errorf("%w: %s already has a revealed score", ErrInvalidState, statusLabel(id))
	}
	s := score
	app.RevealedScore = &s
	return nil
}

// MarkRefundProcessed flips the at-most-once refund guard. Asserts the
// application has reached the timed-out state and was not refunded before.
func (r *Registry) MarkRefundProcessed(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	if app.Status != models.StatusTimedOut {
		return fmt.Errorf("%w: %s is %s, not timed out", ErrInvalidState, statusLabel(id), app.Status)
	}
	if app.RefundProcessed {
		return fmt.Errorf("%w: %s refund already processed", ErrInvalidState, statusLabel(id))
	}
	app.RefundProcessed = true
	return nil
}

// SetConfidentialityBroken records an emergency reveal
func (r *Registry) SetConfidentialityBroken(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.applications[id]
	if !ok {
		return ErrNotFound
	}
	app.ConfidentialityMaintained = false
	return nil
}

// AuthorizeExaminer creates an examiner profile, or re-activates a revoked
// one keeping its historical counts. Fails if the examiner is already active.
func (r *Registry) AuthorizeExaminer(p models.Principal, specialization string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.examiners[p]; ok {
		if existing.IsActive {
			return ErrAlreadyAuthorized
		}
		existing.IsActive = true
		existing.Specialization = specialization
		return nil
	}

	r.examiners[p] = &models.ExaminerProfile{
		Principal:      p,
		IsActive:       true,
		Specialization: specialization,
		AuthorizedAt:   now,
	}
	return nil
}

// RevokeExaminer deactivates an examiner. The profile and its counts persist.
func (r *Registry) RevokeExaminer(p models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.examiners[p]
	if !ok || !profile.IsActive {
		return ErrNotAnExaminer
	}
	profile.IsActive = false
	return nil
}

// Examiner retrieves a copy of an examiner profile
func (r *Registry) Examiner(p models.Principal) (*models.ExaminerProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.examiners[p]
	if !ok {
		return nil, ErrNotAnExaminer
	}
	copied := *profile
	return &copied, nil
}

// IsActiveExaminer reports whether p is a currently authorized examiner
func (r *Registry) IsActiveExaminer(p models.Principal) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.examiners[p]
	return ok && profile.IsActive
}

// ListExaminers returns copies of all examiner profiles
func (r *Registry) ListExaminers() []models.ExaminerProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ExaminerProfile, 0, len(r.examiners))
	for _, profile := range r.examiners {
		out = append(out, *profile)
	}
	return out
}

// IncAssigned bumps an examiner's assignment count
func (r *Registry) IncAssigned(p models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.examiners[p]
	if !ok {
		return ErrNotAnExaminer
	}
	profile.AssignedCount++
	return nil
}

// IncCompleted bumps an examiner's completed review count
func (r *Registry) IncCompleted(p models.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.examiners[p]
	if !ok {
		return ErrNotAnExaminer
	}
	profile.CompletedCount++
	return nil
}

// PutDecision records the review decision for an application, at most once
func (r *Registry) PutDecision(d models.ReviewDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[d.ApplicationID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.decisions[d.ApplicationID]; ok {
		return ErrDecisionExists
	}
	stored := d
	r.decisions[d.ApplicationID] = &stored
	return nil
}

// Decision retrieves the recorded decision for an application
func (r *Registry) Decision(applicationID uint64) (*models.ReviewDecision, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.decisions[applicationID]
	if !ok {
		return nil, ErrNoDecision
	}
	copied := *d
	return &copied, nil
}

// CreateAccount registers a login identity with a dense principal id
func (r *Registry) CreateAccount(name, passwordHash string, now time.Time) (*models.PrincipalAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accountNames[name]; ok {
		return nil, ErrAccountExists
	}

	account := &models.PrincipalAccount{
		ID:           r.nextAccount,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	r.nextAccount++
	r.accounts[account.ID] = account
	r.accountNames[name] = account.ID

	copied := *account
	return &copied, nil
}

// AccountByName retrieves a login identity by name
func (r *Registry) AccountByName(name string) (*models.PrincipalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.accountNames[name]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *r.accounts[id]
	return &copied, nil
}

// Account retrieves a login identity by principal id
func (r *Registry) Account(p models.Principal) (*models.PrincipalAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[p]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func cloneApplication(app *models.Application) *models.Application {
	copied := *app
	if app.AssignedExaminer != nil {
		e := *app.AssignedExaminer
		copied.AssignedExaminer = &e
	}
	if app.DecryptionRequest != nil {
		d := *app.DecryptionRequest
		copied.DecryptionRequest = &d
	}
	if app.RevealedScore != nil {
		s := *app.RevealedScore
		copied.RevealedScore = &s
	}
	return &copied
}

func statusLabel(id uint64) string {
	return fmt.Sprintf("application %d", id)
}
