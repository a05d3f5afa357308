// Package engine implements the application lifecycle state machine. Every
// operation validates the caller's role, checks the state-machine
// preconditions, and then applies its effects; a failure at any point aborts
// the operation with no partial mutation. All mutating operations are
// serialized by a single engine mutex, which gives each one the atomic,
// isolated semantics the rest of the system assumes.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"patentvault/internal/config"
	"patentvault/internal/encval"
	"patentvault/internal/grants"
	"patentvault/internal/models"
	"patentvault/internal/registry"
	"patentvault/internal/treasury"
)

// Initial priority scores are drawn uniformly below this bound so the
// encrypted score carries no information before any real scoring occurs.
const scoreObfuscationBound = 1_000

// AuditSink receives a record of every access-sensitive action. A nil sink
// disables auditing.
type AuditSink interface {
	Record(entry models.AuditLog)
}

// Engine is the lifecycle state machine over the application registry,
// access grant ledger, fee treasury, and encrypted value service.
type Engine struct {
	mu       sync.Mutex
	cfg      config.FeesConfig
	admin    models.Principal
	registry *registry.Registry
	grants   *grants.Ledger
	treasury *treasury.Treasury
	enc      encval.Service
	audit    AuditSink

	// reveals maps emergency-reveal decryption requests to applications;
	// these results are audited, never stored as a revealed score.
	reveals map[uint64]uint64

	now func() time.Time
}

// New wires the engine to its collaborators. The admin principal is the sole
// administrative identity; it is fixed at construction.
func New(cfg config.FeesConfig, admin models.Principal, reg *registry.Registry, ledger *grants.Ledger, tre *treasury.Treasury, enc encval.Service, audit AuditSink) *Engine {
	return &Engine{
		cfg:      cfg,
		admin:    admin,
		registry: reg,
		grants:   ledger,
		treasury: tre,
		enc:      enc,
		audit:    audit,
		reveals:  make(map[uint64]uint64),
		now:      time.Now,
	}
}

// Admin returns the administrative principal
func (e *Engine) Admin() models.Principal {
	return e.admin
}

func (e *Engine) isAdmin(p models.Principal) bool {
	return p == e.admin
}

func isApplicantOf(app *models.Application, p models.Principal) bool {
	return app.Applicant == p
}

func isAssignedExaminerOf(app *models.Application, p models.Principal) bool {
	return app.AssignedExaminer != nil && *app.AssignedExaminer == p
}

func (e *Engine) record(actor models.Principal, action, resource, details string) {
	if e.audit == nil {
		return
	}
	a := actor
	e.audit.Record(models.AuditLog{
		Actor:     &a,
		Action:    action,
		Resource:  resource,
		Details:   details,
		CreatedAt: e.now(),
	})
}

// SubmitApplication creates a pending application. The title, description,
// and claims digests must be non-zero and the category must lie in [1, 10].
// Payment at or above the application fee is accepted in full; excess is kept.
func (e *Engine) SubmitApplication(caller models.Principal, titleDigest, descriptionDigest, claimsDigest, category uint64, payment models.Amount) (*models.Application, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if titleDigest == 0 || descriptionDigest == 0 || claimsDigest == 0 {
		return nil, fmt.Errorf("%w: all content digests must be non-zero", ErrInvalidInput)
	}
	if category < 1 || category > 10 {
		return nil, fmt.Errorf("%w: category %d outside [1, 10]", ErrInvalidInput, category)
	}
	if payment < models.Amount(e.cfg.ApplicationFee) {
		return nil, fmt.Errorf("%w: got %d, need %d", ErrInsufficientFee, payment, e.cfg.ApplicationFee)
	}

	title, err := e.enc.Wrap(titleDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: title: %v", ErrInvalidInput, err)
	}
	description, err := e.enc.Wrap(descriptionDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: description: %v", ErrInvalidInput, err)
	}
	claims, err := e.enc.Wrap(claimsDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: claims: %v", ErrInvalidInput, err)
	}
	categoryHandle, err := e.enc.Wrap(category)
	if err != nil {
		return nil, fmt.Errorf("%w: category: %v", ErrInvalidInput, err)
	}
	score, err := e.enc.WrapRandom(scoreObfuscationBound)
	if err != nil {
		return nil, fmt.Errorf("%w: priority score: %v", ErrInvalidInput, err)
	}

	now := e.now()
	app := e.registry.Create(models.Application{
		Applicant:              caller,
		EncryptedTitle:         title,
		EncryptedDescription:   description,
		EncryptedClaims:        claims,
		EncryptedCategory:      categoryHandle,
		SubmissionTime:         now,
		ReviewDeadline:         now.Add(e.cfg.ReviewPeriod),
		FeePaid:                true,
		EncryptedPriorityScore: score,
	})

	for _, h := range []models.Handle{title, description, claims, categoryHandle} {
		e.enc.Grant(h, caller)
	}
	e.treasury.Deposit(payment)

	e.record(caller, "submit_application", fmt.Sprintf("application/%d", app.ID), "")
	return app, nil
}

// AuthorizeExaminer activates an examiner profile. Admin only.
func (e *Engine) AuthorizeExaminer(caller, examiner models.Principal, specialization string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isAdmin(caller) {
		return fmt.Errorf("%w: only the admin may authorize examiners", ErrAccessDenied)
	}
	if err := e.registry.AuthorizeExaminer(examiner, specialization, e.now()); err != nil {
		return err
	}
	e.record(caller, "authorize_examiner", fmt.Sprintf("examiner/%d", examiner), specialization)
	return nil
}

// RevokeExaminer deactivates an examiner. Admin only. Grants the examiner
// already holds are not retracted; visibility once expanded is permanent.
func (e *Engine) RevokeExaminer(caller, examiner models.Principal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isAdmin(caller) {
		return fmt.Errorf("%w: only the admin may revoke examiners", ErrAccessDenied)
	}
	if err := e.registry.RevokeExaminer(examiner); err != nil {
		return err
	}
	e.record(caller, "revoke_examiner", fmt.Sprintf("examiner/%d", examiner), "")
	return nil
}

// AssignExaminer moves a pending application under review by the given
// examiner and grants the examiner decrypt access to the application's
// confidential fields. Admin only.
func (e *Engine) AssignExaminer(caller models.Principal, appID uint64, examiner models.Principal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isAdmin(caller) {
		return fmt.Errorf("%w: only the admin may assign examiners", ErrAccessDenied)
	}
	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if !e.registry.IsActiveExaminer(examiner) {
		return fmt.Errorf("%w: examiner %d", ErrExaminerNotAuthorized, examiner)
	}
	if app.Status != models.StatusPending {
		return fmt.Errorf("%w: application %d is %s", ErrNotPending, appID, app.Status)
	}

	if err := e.registry.SetExaminer(appID, examiner); err != nil {
		return err
	}
	if err := e.registry.SetStatus(appID, models.StatusUnderReview, models.StatusPending); err != nil {
		return err
	}
	if err := e.registry.IncAssigned(examiner); err != nil {
		return err
	}

	for _, h := range []models.Handle{app.EncryptedTitle, app.EncryptedDescription, app.EncryptedClaims, app.EncryptedCategory} {
		e.enc.Grant(h, examiner)
	}

	e.record(caller, "assign_examiner", fmt.Sprintf("application/%d", appID), fmt.Sprintf("examiner=%d", examiner))
	return nil
}

// SubmitDecision records the assigned examiner's verdict, moves the
// application to its terminal approved or rejected state, and grants the
// applicant decrypt access to the feedback.
func (e *Engine) SubmitDecision(caller models.Principal, appID uint64, decision models.Decision, feedbackDigest uint64, makePublic bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if !isAssignedExaminerOf(app, caller) {
		return fmt.Errorf("%w: application %d", ErrNotAssignedToYou, appID)
	}
	if app.Status != models.StatusUnderReview {
		return fmt.Errorf("%w: application %d is %s", ErrNotUnderReview, appID, app.Status)
	}
	if !decision.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}

	feedback, err := e.enc.Wrap(feedbackDigest)
	if err != nil {
		return fmt.Errorf("%w: feedback: %v", ErrInvalidInput, err)
	}

	target := models.StatusApproved
	if decision == models.DecisionRejected {
		target = models.StatusRejected
	}

	if err := e.registry.PutDecision(models.ReviewDecision{
		ApplicationID:     appID,
		Examiner:          caller,
		Decision:          decision,
		EncryptedFeedback: feedback,
		DecisionTime:      e.now(),
		IsPublic:          makePublic,
	}); err != nil {
		return err
	}
	if err := e.registry.SetStatus(appID, target, models.StatusUnderReview); err != nil {
		return err
	}
	if err := e.registry.IncCompleted(caller); err != nil {
		return err
	}
	e.enc.Grant(feedback, app.Applicant)

	e.record(caller, "submit_decision", fmt.Sprintf("application/%d", appID), string(decision))
	return nil
}

// Withdraw lets the applicant pull a pending or under-review application.
func (e *Engine) Withdraw(caller models.Principal, appID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if !isApplicantOf(app, caller) {
		return fmt.Errorf("%w: application %d", ErrNotYourApplication, appID)
	}
	if app.Status != models.StatusPending && app.Status != models.StatusUnderReview {
		return fmt.Errorf("%w: application %d is %s", ErrCannotWithdrawAtThisStage, appID, app.Status)
	}

	if err := e.registry.SetStatus(appID, models.StatusWithdrawn, models.StatusPending, models.StatusUnderReview); err != nil {
		return err
	}
	e.record(caller, "withdraw", fmt.Sprintf("application/%d", appID), "")
	return nil
}

// RequestConfidentialAccess logs the viewer and, when the caller is an
// authorized examiner, grants limited decrypt access to title and category.
// Only the applicant, the assigned examiner, or the admin may call it.
func (e *Engine) RequestConfidentialAccess(caller models.Principal, appID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if !e.isAdmin(caller) && !isApplicantOf(app, caller) && !isAssignedExaminerOf(app, caller) {
		return fmt.Errorf("%w: application %d", ErrAccessDenied, appID)
	}

	if e.registry.IsActiveExaminer(caller) {
		e.enc.Grant(app.EncryptedTitle, caller)
		e.enc.Grant(app.EncryptedCategory, caller)
	}

	e.record(caller, "request_confidential_access", fmt.Sprintf("application/%d", appID), "")
	return nil
}

// RequestScoreDecryption schedules asynchronous decryption of the priority
// score. Assigned examiner or admin only; one outstanding request at a time.
func (e *Engine) RequestScoreDecryption(caller models.Principal, appID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, err := e.registry.Get(appID)
	if err != nil {
		return 0, err
	}
	if !e.isAdmin(caller) && !isAssignedExaminerOf(app, caller) {
		return 0, fmt.Errorf("%w: application %d", ErrAccessDenied, appID)
	}
	if app.Status != models.StatusUnderReview {
		return 0, fmt.Errorf("%w: application %d is %s", ErrNotUnderReview, appID, app.Status)
	}
	if app.DecryptionRequest != nil {
		return 0, fmt.Errorf("%w: application %d request %d outstanding", ErrDecryptionAlreadyRequested, appID, app.DecryptionRequest.RequestID)
	}

	requestID, err := e.enc.RequestDecryption([]models.Handle{app.EncryptedPriorityScore})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.registry.SetDecryptionRequest(appID, models.DecryptionRequest{
		RequestID:   requestID,
		RequestedAt: e.now(),
	}); err != nil {
		return 0, err
	}

	e.record(caller, "request_score_decryption", fmt.Sprintf("application/%d", appID), fmt.Sprintf("request=%d", requestID))
	return requestID, nil
}

// ProcessScoreDecryption finalizes a score decryption request. It is invoked
// by the oracle callback, verifies the proof, and stores the revealed score
// exactly once. A request cleared by a refund is unknown here; its late
// callback is rejected rather than allowed to overwrite state.
func (e *Engine) ProcessScoreDecryption(requestID uint64, values []uint64, proof []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if appID, ok := e.reveals[requestID]; ok {
		return e.finishRevealLocked(requestID, appID, values, proof)
	}

	appID, err := e.registry.ApplicationByRequest(requestID)
	if err != nil {
		return err
	}
	if !e.enc.VerifyProof(requestID, values, proof) {
		return fmt.Errorf("%w: request %d", ErrInvalidProof, requestID)
	}
	if len(values) != 1 {
		return fmt.Errorf("%w: expected one value, got %d", ErrInvalidInput, len(values))
	}

	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if app.RevealedScore != nil {
		return fmt.Errorf("%w: request %d", ErrCallbackAlreadyProcessed, requestID)
	}

	if err := e.registry.SetRevealedScore(appID, values[0]); err != nil {
		return err
	}
	if err := e.registry.CompleteDecryptionRequest(appID); err != nil {
		return err
	}

	e.record(e.admin, "process_score_decryption", fmt.Sprintf("application/%d", appID), fmt.Sprintf("request=%d", requestID))
	return nil
}

// DecryptionCallback adapts ProcessScoreDecryption to the encrypted value
// service's callback signature; rejected callbacks are logged, not retried.
func (e *Engine) DecryptionCallback(requestID uint64, values []uint64, proof []byte) {
	if err := e.ProcessScoreDecryption(requestID, values, proof); err != nil {
		slog.Warn("decryption callback rejected", "request_id", requestID, "error", err)
	}
}

// UpdatePriorityScore homomorphically adds an encrypted delta to the stored
// priority score. Assigned examiner or admin only; the delta must carry a
// valid encryption proof.
func (e *Engine) UpdatePriorityScore(caller models.Principal, appID uint64, delta models.Handle, proof []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if !e.isAdmin(caller) && !isAssignedExaminerOf(app, caller) {
		return fmt.Errorf("%w: application %d", ErrAccessDenied, appID)
	}
	if app.Status != models.StatusUnderReview {
		return fmt.Errorf("%w: application %d is %s", ErrNotUnderReview, appID, app.Status)
	}
	if !e.enc.VerifyInput(delta, proof) {
		return fmt.Errorf("%w: delta handle %d", ErrInvalidProof, delta)
	}

	sum, err := e.enc.Add(app.EncryptedPriorityScore, delta)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.registry.SetPriorityScore(appID, sum); err != nil {
		return err
	}

	e.record(caller, "update_priority_score", fmt.Sprintf("application/%d", appID), "")
	return nil
}

// MarkForRefund flags an application for refund. Admin only; an approved
// application is never refundable, and a processed refund is final.
func (e *Engine) MarkForRefund(caller models.Principal, appID uint64, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isAdmin(caller) {
		return fmt.Errorf("%w: only the admin may mark refunds", ErrAccessDenied)
	}
	app, err := e.registry.Get(appID)
	if err != nil {
		return err
	}
	if app.Status == models.StatusApproved {
		return fmt.Errorf("%w: application %d", ErrAlreadyApproved, appID)
	}
	if app.RefundProcessed {
		return fmt.Errorf("%w: application %d", ErrRefundAlreadyProcessed, appID)
	}

	if err := e.registry.SetStatus(appID, models.StatusRefundRequested,
		models.StatusPending, models.StatusUnderReview, models.StatusRejected,
		models.StatusWithdrawn, models.StatusRefundRequested, models.StatusTimedOut); err != nil {
		return err
	}
	e.record(caller, "mark_for_refund", fmt.Sprintf("application/%d", appID), reason)
	return nil
}

// RequestRefund pays the applicant the refund fraction of the fee and moves
// the application to the timed-out state. Eligibility requires a stale
// decryption request, an expired timeout period, or an admin refund flag.
// The payout happens before any state is committed, so a failed transfer
// leaves the application untouched.
func (e *Engine) RequestRefund(caller models.Principal, appID uint64) (models.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, err := e.registry.Get(appID)
	if err != nil {
		return 0, err
	}
	if !isApplicantOf(app, caller) {
		return 0, fmt.Errorf("%w: application %d", ErrNotYourApplication, appID)
	}
	if !app.FeePaid {
		return 0, fmt.Errorf("%w: application %d", ErrFeeNotPaid, appID)
	}
	if app.RefundProcessed {
		return 0, fmt.Errorf("%w: application %d", ErrRefundAlreadyProcessed, appID)
	}

	now := e.now()
	eligible := app.Status == models.StatusRefundRequested ||
		(app.DecryptionRequest != nil && now.Sub(app.DecryptionRequest.RequestedAt) >= e.cfg.DecryptionTimeout) ||
		!now.Before(app.SubmissionTime.Add(e.cfg.TimeoutPeriod))
	if !eligible {
		return 0, fmt.Errorf("%w: application %d", ErrRefundNotEligible, appID)
	}
	switch app.Status {
	case models.StatusPending, models.StatusUnderReview, models.StatusRefundRequested:
	default:
		return 0, fmt.Errorf("%w: application %d is %s", ErrRefundNotEligible, appID, app.Status)
	}

	amount := models.Amount(e.cfg.ApplicationFee * e.cfg.RefundPercent / 100)
	if err := e.treasury.Refund(caller, amount); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if err := e.registry.SetStatus(appID, models.StatusTimedOut,
		models.StatusPending, models.StatusUnderReview, models.StatusRefundRequested); err != nil {
		return 0, err
	}
	if err := e.registry.ClearDecryptionRequest(appID); err != nil {
		return 0, err
	}
	if err := e.registry.MarkRefundProcessed(appID); err != nil {
		return 0, err
	}

	e.record(caller, "request_refund", fmt.Sprintf("application/%d", appID), fmt.Sprintf("amount=%d", amount))
	return amount, nil
}

// CheckTimeout reports whether the application's timeout period has elapsed
// and how many seconds remain if not. Pure query.
func (e *Engine) CheckTimeout(appID uint64) (bool, uint64, error) {
	app, err := e.registry.Get(appID)
	if err != nil {
		return false, 0, err
	}

	deadline := app.SubmissionTime.Add(e.cfg.TimeoutPeriod)
	now := e.now()
	if !now.Before(deadline) {
		return true, 0, nil
	}
	return false, uint64(deadline.Sub(now) / time.Second), nil
}

// EmergencyReveal requests decryption of the title for dispute resolution and
// marks confidentiality broken. Admin only. The result is audited when the
// callback arrives; it never touches the revealed score.
func (e *Engine) EmergencyReveal(caller models.Principal, appID uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isAdmin(caller) {
		return 0, fmt.Errorf("%w: only the admin may force a reveal", ErrAccessDenied)
	}
	app, err := e.registry.Get(appID)
	if err != nil {
		return 0, err
	}

	requestID, err := e.enc.RequestDecryption([]models.Handle{app.EncryptedTitle})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := e.registry.SetConfidentialityBroken(appID); err != nil {
		return 0, err
	}
	e.reveals[requestID] = appID

	e.record(caller, "emergency_reveal", fmt.Sprintf("application/%d", appID), fmt.Sprintf("request=%d", requestID))
	return requestID, nil
}

func (e *Engine) finishRevealLocked(requestID, appID uint64, values []uint64, proof []byte) error {
	if !e.enc.VerifyProof(requestID, values, proof) {
		return fmt.Errorf("%w: request %d", ErrInvalidProof, requestID)
	}
	delete(e.reveals, requestID)

	slog.Info("emergency reveal completed", "application_id", appID, "request_id", requestID)
	e.record(e.admin, "emergency_reveal_completed", fmt.Sprintf("application/%d", appID), fmt.Sprintf("request=%d values=%d", requestID, len(values)))
	return nil
}

// WithdrawFees transfers the full treasury balance to the admin. Admin only.
func (e *Engine) WithdrawFees(caller models.Principal) (models.Amount, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isAdmin(caller) {
		return 0, fmt.Errorf("%w: only the admin may withdraw fees", ErrAccessDenied)
	}
	amount, err := e.treasury.WithdrawAll(caller)
	if err != nil {
		return 0, err
	}
	e.record(caller, "withdraw_fees", "treasury", fmt.Sprintf("amount=%d", amount))
	return amount, nil
}

// GetApplication retrieves an application. Status and metadata are visible to
// any authenticated principal; confidential fields stay opaque handles.
func (e *Engine) GetApplication(appID uint64) (*models.Application, error) {
	return e.registry.Get(appID)
}

// ListMyApplications returns the caller's application ids in insertion order
func (e *Engine) ListMyApplications(caller models.Principal) []uint64 {
	return e.registry.ListByApplicant(caller)
}

// GetDecision retrieves the recorded decision for an application. Public
// decisions are visible to anyone; private ones only to the applicant, the
// deciding examiner, or the admin.
func (e *Engine) GetDecision(caller models.Principal, appID uint64) (*models.ReviewDecision, error) {
	d, err := e.registry.Decision(appID)
	if err != nil {
		return nil, err
	}
	if d.IsPublic || e.isAdmin(caller) || d.Examiner == caller {
		return d, nil
	}
	app, err := e.registry.Get(appID)
	if err != nil {
		return nil, err
	}
	if isApplicantOf(app, caller) {
		return d, nil
	}
	return nil, fmt.Errorf("%w: decision for application %d is not public", ErrAccessDenied, appID)
}

// Examiner retrieves an examiner profile
func (e *Engine) Examiner(p models.Principal) (*models.ExaminerProfile, error) {
	return e.registry.Examiner(p)
}

// ListExaminers returns all examiner profiles
func (e *Engine) ListExaminers() []models.ExaminerProfile {
	return e.registry.ListExaminers()
}

// TreasuryBalance returns the current collected fee balance
func (e *Engine) TreasuryBalance() models.Amount {
	return e.treasury.Balance()
}
