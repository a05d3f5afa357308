package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"patentvault/internal/auth"
	"patentvault/internal/models"
	"patentvault/internal/registry"
	"patentvault/pkg/validator"
)

// AuthHandler handles account registration and login
type AuthHandler struct {
	authService *auth.Service
	registry    *registry.Registry
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, reg *registry.Registry) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		registry:    reg,
	}
}

// RegisterRequest is the payload for account registration
type RegisterRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the payload for login
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// TokenResponse carries an issued JWT
type TokenResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	Principal models.Principal `json:"principal"`
}

// Register creates a new principal account
// @Summary Register an account
// @Description Create a new principal account with name and password
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Account details"
// @Success 201 {object} models.PrincipalAccount
// @Failure 400 {object} map[string]string "Invalid request"
// @Failure 409 {object} map[string]string "Name already taken"
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}
	name := validator.SanitizeAccountName(req.Name)
	if err := validator.ValidateAccountName(name); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidatePassword(req.Password); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	account, err := h.registry.CreateAccount(name, hash, time.Now())
	if err != nil {
		respondWithEngineError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, account)
}

// Login authenticates an account and issues a JWT
// @Summary Log in
// @Description Authenticate with name and password and receive a JWT
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, ErrMsgInvalidRequestBody)
		return
	}

	account, err := h.registry.AccountByName(validator.SanitizeAccountName(req.Name))
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := h.authService.VerifyPassword(account.PasswordHash, req.Password); err != nil {
		respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, expiresAt, err := h.authService.GenerateToken(account.ID, account.Name)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	respondWithJSON(w, http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Principal: account.ID,
	})
}
