package models

import (
	"time"
)

// Principal identifies an authenticated caller (applicant, examiner, or admin).
type Principal uint64

// Handle is an opaque reference to an encrypted value held by the encrypted
// value service. It is never the plaintext itself.
type Handle uint64

// Amount is a monetary value in micro-units (1 unit = 1_000_000 micro-units).
type Amount int64

// ApplicationStatus is the lifecycle state of an application.
type ApplicationStatus string

const (
	StatusPending         ApplicationStatus = "pending"
	StatusUnderReview     ApplicationStatus = "under_review"
	StatusApproved        ApplicationStatus = "approved"
	StatusRejected        ApplicationStatus = "rejected"
	StatusWithdrawn       ApplicationStatus = "withdrawn"
	StatusRefundRequested ApplicationStatus = "refund_requested"
	StatusTimedOut        ApplicationStatus = "timed_out"
)

// IsTerminal reports whether no further status-changing operation may succeed
// from s. Refund bookkeeping on a timed-out application is the only exception
// and is handled explicitly by the engine.
func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusWithdrawn, StatusTimedOut:
		return true
	}
	return false
}

// Decision is an examiner's verdict on an application.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid reports whether d is one of the two accepted verdicts.
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// DecryptionRequest tracks an outstanding asynchronous score decryption.
// Present on an application iff the oracle callback has not yet completed.
type DecryptionRequest struct {
	RequestID   uint64    `json:"request_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// Application is one confidential patent application. Title, description,
// claims, category, and priority score are opaque encrypted handles; who may
// decrypt them is tracked by the access grant ledger, not here.
type Application struct {
	ID                        uint64             `json:"id"`
	Applicant                 Principal          `json:"applicant"`
	EncryptedTitle            Handle             `json:"encrypted_title"`
	EncryptedDescription      Handle             `json:"encrypted_description"`
	EncryptedClaims           Handle             `json:"encrypted_claims"`
	EncryptedCategory         Handle             `json:"encrypted_category"`
	SubmissionTime            time.Time          `json:"submission_time"`
	ReviewDeadline            time.Time          `json:"review_deadline"`
	Status                    ApplicationStatus  `json:"status"`
	AssignedExaminer          *Principal         `json:"assigned_examiner,omitempty"`
	FeePaid                   bool               `json:"fee_paid"`
	ConfidentialityMaintained bool               `json:"confidentiality_maintained"`
	DecryptionRequest         *DecryptionRequest `json:"decryption_request,omitempty"`
	EncryptedPriorityScore    Handle             `json:"encrypted_priority_score"`
	RevealedScore             *uint64            `json:"revealed_score,omitempty"`
	RefundProcessed           bool               `json:"refund_processed"`
}

// ExaminerProfile is one authorized examiner. Revocation flips IsActive but
// the counts persist as a historical record.
type ExaminerProfile struct {
	Principal      Principal `json:"principal"`
	IsActive       bool      `json:"is_active"`
	AssignedCount  int       `json:"assigned_count"`
	CompletedCount int       `json:"completed_count"`
	Specialization string    `json:"specialization"`
	AuthorizedAt   time.Time `json:"authorized_at"`
}

// ReviewDecision is the recorded outcome of a completed review.
type ReviewDecision struct {
	ApplicationID     uint64    `json:"application_id"`
	Examiner          Principal `json:"examiner"`
	Decision          Decision  `json:"decision"`
	EncryptedFeedback Handle    `json:"encrypted_feedback"`
	DecisionTime      time.Time `json:"decision_time"`
	IsPublic          bool      `json:"is_public"`
}

// PrincipalAccount is a login identity mapped to a principal.
type PrincipalAccount struct {
	ID           Principal `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditLog is one recorded action against the registry.
type AuditLog struct {
	ID        uint64     `json:"id"`
	Actor     *Principal `json:"actor,omitempty"`
	Action    string     `json:"action"`
	Resource  string     `json:"resource"`
	Details   string     `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
