package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"patentvault/internal/engine"
	"patentvault/internal/registry"
)

// Common error message constants shared across handlers
const (
	ErrMsgInvalidRequestBody   = "Invalid request body"
	ErrMsgInvalidApplicationID = "Invalid application ID"
	ErrMsgUnauthorized         = "Unauthorized"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithEngineError maps the engine's error taxonomy onto HTTP status
// codes and surfaces the sentinel's message to the caller.
func respondWithEngineError(w http.ResponseWriter, err error) {
	respondWithError(w, engineErrorStatus(err), err.Error())
}

func engineErrorStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, engine.ErrUnknownRequest),
		errors.Is(err, registry.ErrNoDecision),
		errors.Is(err, registry.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrAccessDenied),
		errors.Is(err, engine.ErrNotAssignedToYou),
		errors.Is(err, engine.ErrNotYourApplication):
		return http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidInput),
		errors.Is(err, engine.ErrInvalidDecision),
		errors.Is(err, engine.ErrInvalidProof):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInsufficientFee),
		errors.Is(err, engine.ErrFeeNotPaid):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrTransferFailed):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrNotPending),
		errors.Is(err, engine.ErrNotUnderReview),
		errors.Is(err, engine.ErrAlreadyApproved),
		errors.Is(err, engine.ErrRefundAlreadyProcessed),
		errors.Is(err, engine.ErrCallbackAlreadyProcessed),
		errors.Is(err, engine.ErrDecryptionAlreadyRequested),
		errors.Is(err, engine.ErrCannotWithdrawAtThisStage),
		errors.Is(err, engine.ErrRefundNotEligible),
		errors.Is(err, engine.ErrNoFeesToWithdraw),
		errors.Is(err, engine.ErrAlreadyAuthorized),
		errors.Is(err, engine.ErrNotAnExaminer),
		errors.Is(err, engine.ErrExaminerNotAuthorized),
		errors.Is(err, registry.ErrDecisionExists),
		errors.Is(err, registry.ErrInvalidState),
		errors.Is(err, registry.ErrAccountExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// pathID parses the {id} path segment of a request
func pathID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(r.PathValue("id"), 10, 64)
}
