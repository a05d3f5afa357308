package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"patentvault/internal/encval"
	"patentvault/internal/engine"
	"patentvault/internal/middleware"
	"patentvault/internal/models"
)

// ExaminerHandler handles examiner administration and review operations
type ExaminerHandler struct {
	engine *engine.Engine
	enc    encval.Service
}

// NewExaminerHandler creates a new examiner handler
func NewExaminerHandler(eng *engine.Engine, enc encval.Service) *ExaminerHandler {
	return &ExaminerHandler{engine: eng, enc: enc}
}

// AuthorizeRequest is the payload for authorizing an examiner
type AuthorizeRequest struct {
	Examiner       models.Principal `json:"examiner"`
	Specialization string           `json:"specialization"`
}

// Authorize activates an examiner profile (admin only)
// @Summary Authorize an examiner
// @Description Create or re-activate an examiner profile
// @Tags Examiners
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body AuthorizeRequest true "Examiner and specialization"
// @Success 201 {object} models.ExaminerProfile
// @Failure 403 {object} map[string]string "Admin only"
// @Failure 409 {object} map[string]string "Already authorized"
// @Router /examiners [post]
func (h *ExaminerHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}

	var req AuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	if err := h.engine.AuthorizeExaminer(caller, req.Examiner, req.Specialization); err != nil {
		respondWithEngineError(w, err)
		return
	}

	profile, err := h.engine.Examiner(req.Examiner)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, profile)
}

// Revoke deactivates an examiner (admin only)
// @Summary Revoke an examiner
// @Description Deactivate an examiner; historical counts and existing grants persist
// @Tags Examiners
// @Produce json
// @Security BearerAuth
// @Param id path int true "Examiner principal"
// @Success 204 "Revoked"
// @Failure 409 {object} map[string]string "Not an examiner"
// @Router /examiners/{id} [delete]
func (h *ExaminerHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.GetPrincipal(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrMsgUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid examiner principal")
		return
	}

	if err := h.engine.RevokeExaminer(caller, models.Principal(id)); err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// List returns all examiner profiles
// @Summary List examiners
// @Description List all examiner profiles, active and revoked
// @Tags Examiners
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ExaminerProfile
// @Router /examiners [get]
func (h *ExaminerHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles := h.engine.ListExaminers()
	if profiles == nil {
		profiles = []models.ExaminerProfile{}
	}
	respondWithJSON(w, http.StatusOK, profiles)
}

// AssignRequest is the payload for assigning an examiner
type AssignRequest struct {
	Examiner models.Principal `json:"examiner"`
}

// Assign moves a pending application under review (admin only)
// @Summary Assign an examiner
// @Description Assign an authorized examiner to a pending application
// @Tags Examiners
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Param request body AssignRequest true "Examiner principal"
// @Success 200 {object} models.Application
// @Failure 409 {object} map[string]string "Not pending or examiner not authorized"
// @Router /applications/{id}/assign [post]
func (h *ExaminerHandler) Assign(w http.ResponseWriter, r *http.Request) {
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

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	if err := h.engine.AssignExaminer(caller, id, req.Examiner); err != nil {
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

// DecideRequest is the payload for submitting a decision
type DecideRequest struct {
	Decision       models.Decision `json:"decision"`
	FeedbackDigest uint64          `json:"feedback_digest"`
	MakePublic     bool            `json:"make_public"`
}

// Decide records the assigned examiner's verdict
// @Summary Submit a decision
// @Description Approve or reject an application under review
// @Tags Examiners
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Param request body DecideRequest true "Verdict and feedback digest"
// @Success 200 {object} models.ReviewDecision
// @Failure 403 {object} map[string]string "Not assigned to you"
// @Failure 409 {object} map[string]string "Not under review"
// @Router /applications/{id}/decision [post]
func (h *ExaminerHandler) Decide(w http.ResponseWriter, r *http.Request) {
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

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	if err := h.engine.SubmitDecision(caller, id, req.Decision, req.FeedbackDigest, req.MakePublic); err != nil {
		respondWithEngineError(w, err)
		return
	}

	decision, err := h.engine.GetDecision(caller, id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, decision)
}

// DecryptionRequestResponse carries the id of a scheduled decryption
type DecryptionRequestResponse struct {
	RequestID uint64 `json:"request_id"`
}

// RequestScoreDecryption schedules asynchronous decryption of the score
// @Summary Request score decryption
// @Description Schedule asynchronous decryption of the priority score; the result arrives via the oracle callback
// @Tags Examiners
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 202 {object} DecryptionRequestResponse
// @Failure 409 {object} map[string]string "Not under review or already requested"
// @Router /applications/{id}/score/decrypt [post]
func (h *ExaminerHandler) RequestScoreDecryption(w http.ResponseWriter, r *http.Request) {
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

	requestID, err := h.engine.RequestScoreDecryption(caller, id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, DecryptionRequestResponse{RequestID: requestID})
}

// UpdateScoreRequest carries an encrypted delta and its encryption proof
type UpdateScoreRequest struct {
	Delta models.Handle `json:"delta"`
	Proof string        `json:"proof"` // base64
}

// UpdateScore homomorphically adds a delta to the priority score
// @Summary Update the priority score
// @Description Add an encrypted delta to the stored priority score
// @Tags Examiners
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Param request body UpdateScoreRequest true "Encrypted delta handle and proof"
// @Success 204 "Score updated"
// @Failure 400 {object} map[string]string "Invalid proof"
// @Failure 409 {object} map[string]string "Not under review"
// @Router /applications/{id}/score [post]
func (h *ExaminerHandler) UpdateScore(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Proof must be base64")
		return
	}

	if err := h.engine.UpdatePriorityScore(caller, id, req.Delta, proof); err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// WrapRequest is the payload for creating an encrypted input
type WrapRequest struct {
	Value uint64 `json:"value"`
}

// WrapResponse carries a freshly wrapped handle and its encryption proof
type WrapResponse struct {
	Handle models.Handle `json:"handle"`
	Proof  string        `json:"proof"` // base64
}

// WrapValue produces an encrypted handle plus proof for use as a score delta
// @Summary Wrap a value
// @Description Produce an encrypted handle and encryption proof for a plaintext value
// @Tags Examiners
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body WrapRequest true "Value to wrap"
// @Success 201 {object} WrapResponse
// @Router /encrypted-values [post]
func (h *ExaminerHandler) WrapValue(w http.ResponseWriter, r *http.Request) {
	var req WrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	handle, err := h.enc.Wrap(req.Value)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to wrap value")
		return
	}
	proof, err := h.enc.ProveInput(handle)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to prove input")
		return
	}

	respondWithJSON(w, http.StatusCreated, WrapResponse{
		Handle: handle,
		Proof:  base64.StdEncoding.EncodeToString(proof),
	})
}
