package engine

import (
	"errors"

	"patentvault/internal/registry"
	"patentvault/internal/treasury"
)

// The lifecycle engine surfaces every failure as one of these sentinels,
// wrapped with context. Nothing is retried internally; a precondition failure
// aborts the whole operation with no partial state mutation.
var (
	ErrAccessDenied = errors.New("access denied")

	ErrNotFound       = registry.ErrNotFound
	ErrUnknownRequest = registry.ErrUnknownRequest

	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidDecision = errors.New("invalid decision")
	ErrInvalidProof    = errors.New("invalid proof")

	ErrNotPending                 = errors.New("application is not pending")
	ErrNotUnderReview             = errors.New("application is not under review")
	ErrAlreadyApproved            = errors.New("application is already approved")
	ErrRefundAlreadyProcessed     = errors.New("refund already processed")
	ErrCallbackAlreadyProcessed   = errors.New("decryption callback already processed")
	ErrDecryptionAlreadyRequested = errors.New("decryption already requested")

	ErrInsufficientFee   = errors.New("payment below required application fee")
	ErrFeeNotPaid        = errors.New("no fee recorded for this application")
	ErrRefundNotEligible = errors.New("application is not eligible for a refund")
	ErrNoFeesToWithdraw  = treasury.ErrNoFeesToWithdraw
	ErrTransferFailed    = errors.New("value transfer failed")

	ErrAlreadyAuthorized     = registry.ErrAlreadyAuthorized
	ErrNotAnExaminer         = registry.ErrNotAnExaminer
	ErrExaminerNotAuthorized = errors.New("examiner is not authorized")

	ErrNotAssignedToYou          = errors.New("application is not assigned to you")
	ErrNotYourApplication        = errors.New("application does not belong to you")
	ErrCannotWithdrawAtThisStage = errors.New("application cannot be withdrawn at this stage")
)
