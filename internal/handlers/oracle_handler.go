package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"patentvault/internal/engine"
	"patentvault/internal/middleware"
)

// OracleHandler handles the decryption oracle callback and the admin's
// emergency reveal. The built-in scheduler delivers local decryptions
// directly; this surface exists for an external oracle deployment.
type OracleHandler struct {
	engine *engine.Engine
}

// NewOracleHandler creates a new oracle handler
func NewOracleHandler(eng *engine.Engine) *OracleHandler {
	return &OracleHandler{engine: eng}
}

// CallbackRequest is the oracle's decryption result
type CallbackRequest struct {
	RequestID uint64   `json:"request_id"`
	Values    []uint64 `json:"values"`
	Proof     string   `json:"proof"` // base64
}

// Callback finalizes an asynchronous decryption request
// @Summary Decryption callback
// @Description Deliver a decryption result with its verifiable proof; duplicates and late callbacks are rejected
// @Tags Oracle
// @Accept json
// @Produce json
// @Param request body CallbackRequest true "Request id, cleartext values and proof"
// @Success 204 "Processed"
// @Failure 400 {object} map[string]string "Invalid proof"
// @Failure 404 {object} map[string]string "Unknown request"
// @Failure 409 {object} map[string]string "Already processed"
// @Router /oracle/callback [post]
func (h *OracleHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Proof must be base64")
		return
	}

	if err := h.engine.ProcessScoreDecryption(req.RequestID, req.Values, proof); err != nil {
		respondWithEngineError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// EmergencyReveal requests decryption of an application's title (admin only)
// @Summary Emergency reveal
// @Description Request decryption of the title for dispute resolution; marks confidentiality broken
// @Tags Oracle
// @Produce json
// @Security BearerAuth
// @Param id path int true "Application ID"
// @Success 202 {object} DecryptionRequestResponse
// @Failure 404 {object} map[string]string "Not found"
// @Router /applications/{id}/reveal [post]
func (h *OracleHandler) EmergencyReveal(w http.ResponseWriter, r *http.Request) {
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

	requestID, err := h.engine.EmergencyReveal(caller, id)
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, DecryptionRequestResponse{RequestID: requestID})
}
