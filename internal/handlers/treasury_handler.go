package handlers

import (
	"encoding/json"
	"net/http"

	"patentvault/internal/engine"
	"patentvault/internal/middleware"
	"patentvault/internal/models"
)

// TreasuryHandler handles fee and refund operations
type TreasuryHandler struct {
	engine *engine.Engine
}

// NewTreasuryHandler creates a new treasury handler
func NewTreasuryHandler(eng *engine.Engine) *TreasuryHandler {
	return &TreasuryHandler{engine: eng}
}

// BalanceResponse reports the treasury balance in micro-units
type BalanceResponse struct {
	Balance models.Amount `json:"balance"`
}

// Balance returns the collected fee balance (admin only)
// @Summary Treasury balance
// @Description Get the current collected fee balance
// @Tags Treasury
// @Produce json
// @Security BearerAuth
// @Success 200 {object} BalanceResponse
// @Router /treasury/balance [get]
func (h *TreasuryHandler) Balance(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, BalanceResponse{Balance: h.engine.TreasuryBalance()})
}

// MarkForRefundRequest carries the admin's reason for flagging a refund
type MarkForRefundRequest struct {
	Reason string `json:"reason"`
}

// MarkForRefund flags an application for refund (admin only)
// @Summary Mark for refund
// @Description Flag an application so its applicant may claim a refund
// @Tags Treasury
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Param request body MarkForRefundRequest true "Reason"
// @Success 204 "Marked"
// @Failure 409 {object} map[string]string "Already approved or refund processed"
// @Router /applications/{id}/refund/mark [post]
func (h *TreasuryHandler) MarkForRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidApplicationID)
		return
	}

	var req MarkForRefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	if err := h.engine.MarkForRefund(caller, id, req.Reason); err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RefundResponse reports the amount paid out
type RefundResponse struct {
	Amount models.Amount `json:"amount"`
}

// RequestRefund claims a timeout-driven refund
// @Summary Request a refund
// @Description Claim the partial refund on a timed-out or refund-flagged application
// @Tags Treasury
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 200 {object} RefundResponse
// @Failure 402 {object} map[string]string "Fee not paid"
// @Failure 409 {object} map[string]string "Not eligible or already processed"
// @Router /applications/{id}/refund [post]
func (h *TreasuryHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidApplicationID)
		return
	}

	amount, err := h.engine.RequestRefund(caller, id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, RefundResponse{Amount: amount})
}

// WithdrawFees transfers the full treasury balance to the admin (admin only)
// @Summary Withdraw fees
// @Description Transfer the full collected fee balance to the admin
// @Tags Treasury
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RefundResponse
// @Failure 409 {object} map[string]string "No fees to withdraw"
// @Router /treasury/withdraw [post]
func (h *TreasuryHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	amount, err := h.engine.WithdrawFees(caller)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, RefundResponse{Amount: amount})
}
