package handlers

import (
	"encoding/json"
	"net/http"

	"patentvault/internal/engine"
	"patentvault/internal/middleware"
	"patentvault/internal/models"
	"patentvault/pkg/validator"
)

// ApplicationHandler handles the applicant-facing lifecycle operations
type ApplicationHandler struct {
	engine *engine.Engine
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(eng *engine.Engine) *ApplicationHandler {
	return &ApplicationHandler{engine: eng}
}

// SubmitRequest is the payload for submitting an application. The content
// fields are digests of the confidential documents; the server wraps them
// into encrypted handles.
type SubmitRequest struct {
	TitleDigest       uint64        `json:"title_digest"`
	DescriptionDigest uint64        `json:"description_digest"`
	ClaimsDigest      uint64        `json:"claims_digest"`
	Category          uint64        `json:"category"`
	Payment           models.Amount `json:"payment"`
}

// Submit creates a new application
// @Summary Submit an application
// @Description Submit a confidential application with the fee payment attached
// @Tags Applications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SubmitRequest true "Application content digests, category and payment"
// @Success 201 {object} models.Application
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 402 {object} map[string]string "Insufficient fee"
// @Router /applications [post]
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	for field, digest := range map[string]uint64{
		"title": req.TitleDigest, "description": req.DescriptionDigest, "claims": req.ClaimsDigest,
	} {
		if err := validator.ValidateDigest(field, digest); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := validator.ValidateCategory(req.Category); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.engine.SubmitApplication(caller, req.TitleDigest, req.DescriptionDigest, req.ClaimsDigest, req.Category, req.Payment)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, app)
}

// Get retrieves an application
// @Summary Get an application
// @Description Get an application's status and metadata; confidential fields stay opaque handles
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 200 {object} models.Application
// @Failure 404 {object} map[string]string "Not found"
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidApplicationID)
		return
	}

	app, err := h.engine.GetApplication(id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, app)
}

// ListMine lists the caller's applications
// @Summary List my applications
// @Description List the caller's application IDs in submission order
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string][]uint64
// @Router /applications/mine [get]
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	ids := h.engine.ListMyApplications(caller)
	if ids == nil {
		ids = []uint64{}
	}
	respondWithJSON(w, http.StatusOK, map[string][]uint64{"ids": ids})
}

// Withdraw pulls a pending or under-review application
// @Summary Withdraw an application
// @Description Withdraw the caller's own application before it is decided
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 200 {object} models.Application
// @Failure 403 {object} map[string]string "Not your application"
// @Failure 409 {object} map[string]string "Cannot withdraw at this stage"
// @Router /applications/{id}/withdraw [post]
func (h *ApplicationHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
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

	if err := h.engine.Withdraw(caller, id); err != nil {
		respondWithEngineError(w, err)
		return
	}

	app, err := h.engine.GetApplication(id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, app)
}

// RequestAccess logs a confidential access request and, for authorized
// examiners, grants limited decrypt access.
// @Summary Request confidential access
// @Description Log a confidential access request; authorized examiners gain title and category access
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 204 "Access recorded"
// @Failure 403 {object} map[string]string "Access denied"
// @Router /applications/{id}/access [post]
func (h *ApplicationHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
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

	if err := h.engine.RequestConfidentialAccess(caller, id); err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TimeoutResponse reports an application's timeout status
type TimeoutResponse struct {
	TimedOut         bool   `json:"timed_out"`
	SecondsRemaining uint64 `json:"seconds_remaining"`
}

// CheckTimeout reports whether the timeout period has elapsed
// @Summary Check timeout
// @Description Report whether the application's timeout period has elapsed and the seconds remaining
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 200 {object} TimeoutResponse
// @Failure 404 {object} map[string]string "Not found"
// @Router /applications/{id}/timeout [get]
func (h *ApplicationHandler) CheckTimeout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidApplicationID)
		return
	}

	timedOut, remaining, err := h.engine.CheckTimeout(id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, TimeoutResponse{TimedOut: timedOut, SecondsRemaining: remaining})
}

// GetDecision retrieves the decision for an application
// @Summary Get the decision
// @Description Get the recorded review decision; private decisions are visible only to involved parties
// @Tags Applications
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 200 {object} models.ReviewDecision
// @Failure 403 {object} map[string]string "Decision not public"
// @Failure 404 {object} map[string]string "No decision recorded"
// @Router /applications/{id}/decision [get]
func (h *ApplicationHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
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

	decision, err := h.engine.GetDecision(caller, id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, decision)
}
