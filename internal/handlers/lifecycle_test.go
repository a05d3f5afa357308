package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"patentvault/internal/auth"
	"patentvault/internal/config"
	"patentvault/internal/encval/localenc"
	"patentvault/internal/engine"
	"patentvault/internal/grants"
	"patentvault/internal/handlers"
	"patentvault/internal/middleware"
	"patentvault/internal/models"
	"patentvault/internal/registry"
	"patentvault/internal/treasury"
)

type testServer struct {
	srv    *httptest.Server
	auth   *auth.Service
	reg    *registry.Registry
	enc    *localenc.Service
	eng    *engine.Engine
	admin  models.Principal
	tokens map[models.Principal]string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	jwtCfg := &config.JWTConfig{Secret: "test-secret-key-for-handler-tests", Expiration: time.Hour}
	authService := auth.NewService(jwtCfg)

	reg := registry.New()
	ledger := grants.NewLedger()
	tre := treasury.New(treasury.NewLedgerSink())
	enc := localenc.New([]byte(jwtCfg.Secret), ledger)

	adminAccount, err := reg.CreateAccount("admin", "unused", time.Now())
	if err != nil {
		t.Fatalf("Failed to create admin account: %v", err)
	}

	eng := engine.New(config.FeesConfig{
		ApplicationFee:    100_000,
		ReviewPeriod:      30 * 24 * time.Hour,
		TimeoutPeriod:     90 * 24 * time.Hour,
		DecryptionTimeout: 7 * 24 * time.Hour,
		RefundPercent:     70,
	}, adminAccount.ID, reg, ledger, tre, enc, engine.NewMemoryAudit())
	enc.OnDecryption(eng.DecryptionCallback)

	authHandler := handlers.NewAuthHandler(authService, reg)
	appHandler := handlers.NewApplicationHandler(eng)
	examinerHandler := handlers.NewExaminerHandler(eng, enc)
	treasuryHandler := handlers.NewTreasuryHandler(eng)
	oracleHandler := handlers.NewOracleHandler(eng)

	authMw := middleware.NewAuthMiddleware(authService)
	adminMw := middleware.NewAdminMiddleware(eng.Admin())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/oracle/callback", oracleHandler.Callback)

	mux.Handle("POST /api/v1/applications", authMw.Authenticate(http.HandlerFunc(appHandler.Submit)))
	mux.Handle("GET /api/v1/applications/mine", authMw.Authenticate(http.HandlerFunc(appHandler.ListMine)))
	mux.Handle("GET /api/v1/applications/{id}", authMw.Authenticate(http.HandlerFunc(appHandler.Get)))
	mux.Handle("POST /api/v1/applications/{id}/withdraw", authMw.Authenticate(http.HandlerFunc(appHandler.Withdraw)))
	mux.Handle("GET /api/v1/applications/{id}/decision", authMw.Authenticate(http.HandlerFunc(appHandler.GetDecision)))
	mux.Handle("POST /api/v1/applications/{id}/decision", authMw.Authenticate(http.HandlerFunc(examinerHandler.Decide)))
	mux.Handle("POST /api/v1/applications/{id}/assign", authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(examinerHandler.Assign))))
	mux.Handle("POST /api/v1/examiners", authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(examinerHandler.Authorize))))
	mux.Handle("GET /api/v1/treasury/balance", authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(treasuryHandler.Balance))))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ts := &testServer{
		srv:    srv,
		auth:   authService,
		reg:    reg,
		enc:    enc,
		eng:    eng,
		admin:  adminAccount.ID,
		tokens: make(map[models.Principal]string),
	}
	ts.tokens[adminAccount.ID] = ts.token(t, adminAccount.ID, "admin")
	return ts
}

func (ts *testServer) token(t *testing.T, p models.Principal, name string) string {
	t.Helper()
	token, _, err := ts.auth.GenerateToken(p, name)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ts.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, into interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func (ts *testServer) register(t *testing.T, name string) (models.Principal, string) {
	t.Helper()

	resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name":     name,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Register returned %d", resp.StatusCode)
	}
	var account models.PrincipalAccount
	decode(t, resp, &account)

	resp = ts.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"name":     name,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Login returned %d", resp.StatusCode)
	}
	var tr handlers.TokenResponse
	decode(t, resp, &tr)
	return account.ID, tr.Token
}

func TestFullLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	applicantID, applicantToken := ts.register(t, "applicant")
	examinerID, examinerToken := ts.register(t, "examiner")
	adminToken := ts.tokens[ts.admin]

	// Submit an application.
	resp := ts.do(t, http.MethodPost, "/api/v1/applications", applicantToken, handlers.SubmitRequest{
		TitleDigest:       111,
		DescriptionDigest: 222,
		ClaimsDigest:      333,
		Category:          5,
		Payment:           100_000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Submit returned %d", resp.StatusCode)
	}
	var app models.Application
	decode(t, resp, &app)
	if app.ID != 1 || app.Status != models.StatusPending {
		t.Fatalf("Unexpected application: %+v", app)
	}
	if app.Applicant != applicantID {
		t.Errorf("Expected applicant %d, got %d", applicantID, app.Applicant)
	}

	// Authorize and assign the examiner; both are admin-gated.
	resp = ts.do(t, http.MethodPost, "/api/v1/examiners", applicantToken, handlers.AuthorizeRequest{
		Examiner: examinerID, Specialization: "mechanical",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("Non-admin authorize returned %d, want 403", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, "/api/v1/examiners", adminToken, handlers.AuthorizeRequest{
		Examiner: examinerID, Specialization: "mechanical",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Authorize returned %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/applications/%d/assign", app.ID), adminToken, handlers.AssignRequest{Examiner: examinerID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Assign returned %d", resp.StatusCode)
	}
	var assigned models.Application
	decode(t, resp, &assigned)
	if assigned.Status != models.StatusUnderReview {
		t.Fatalf("Expected under_review, got %s", assigned.Status)
	}

	// The examiner decides.
	resp = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/applications/%d/decision", app.ID), examinerToken, handlers.DecideRequest{
		Decision: models.DecisionApproved, FeedbackDigest: 444, MakePublic: true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Decide returned %d", resp.StatusCode)
	}
	var decision models.ReviewDecision
	decode(t, resp, &decision)
	if decision.Decision != models.DecisionApproved {
		t.Errorf("Expected approved, got %s", decision.Decision)
	}

	// The applicant reads the public decision.
	resp = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/applications/%d/decision", app.ID), applicantToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GetDecision returned %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Treasury holds the fee; only the admin can see it.
	resp = ts.do(t, http.MethodGet, "/api/v1/treasury/balance", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Balance returned %d", resp.StatusCode)
	}
	var balance handlers.BalanceResponse
	decode(t, resp, &balance)
	if balance.Balance != 100_000 {
		t.Errorf("Expected balance 100000, got %d", balance.Balance)
	}
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	_, token := ts.register(t, "applicant")

	tests := []struct {
		name string
		req  handlers.SubmitRequest
		want int
	}{
		{"zero title digest", handlers.SubmitRequest{TitleDigest: 0, DescriptionDigest: 2, ClaimsDigest: 3, Category: 5, Payment: 100_000}, http.StatusBadRequest},
		{"category out of range", handlers.SubmitRequest{TitleDigest: 1, DescriptionDigest: 2, ClaimsDigest: 3, Category: 11, Payment: 100_000}, http.StatusBadRequest},
		{"insufficient fee", handlers.SubmitRequest{TitleDigest: 1, DescriptionDigest: 2, ClaimsDigest: 3, Category: 5, Payment: 99_999}, http.StatusPaymentRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.do(t, http.MethodPost, "/api/v1/applications", token, tt.req)
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/applications", "", handlers.SubmitRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/v1/applications", "garbage-token", handlers.SubmitRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad token, got %d", resp.StatusCode)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "ok-name", "password": "short",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for short password, got %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"name": "has space", "password": "password123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid name, got %d", resp.StatusCode)
	}

	// Duplicate name conflicts.
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		resp := ts.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"name": "alice", "password": "password123",
		})
		resp.Body.Close()
		if resp.StatusCode != want {
			t.Errorf("Attempt %d: expected %d, got %d", i+1, want, resp.StatusCode)
		}
	}
}

func TestOracleCallbackOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	_, applicantToken := ts.register(t, "applicant")
	examinerID, _ := ts.register(t, "examiner")
	adminToken := ts.tokens[ts.admin]

	resp := ts.do(t, http.MethodPost, "/api/v1/applications", applicantToken, handlers.SubmitRequest{
		TitleDigest: 1, DescriptionDigest: 2, ClaimsDigest: 3, Category: 5, Payment: 100_000,
	})
	var app models.Application
	decode(t, resp, &app)

	resp = ts.do(t, http.MethodPost, "/api/v1/examiners", adminToken, handlers.AuthorizeRequest{Examiner: examinerID, Specialization: "general"})
	resp.Body.Close()
	resp = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/applications/%d/assign", app.ID), adminToken, handlers.AssignRequest{Examiner: examinerID})
	resp.Body.Close()

	requestID, err := ts.eng.RequestScoreDecryption(ts.admin, app.ID)
	if err != nil {
		t.Fatalf("RequestScoreDecryption failed: %v", err)
	}

	// A forged callback is rejected with 400.
	resp = ts.do(t, http.MethodPost, "/api/v1/oracle/callback", "", handlers.CallbackRequest{
		RequestID: requestID,
		Values:    []uint64{42},
		Proof:     "Zm9yZ2Vk",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for forged proof, got %d", resp.StatusCode)
	}

	got, err := ts.eng.GetApplication(app.ID)
	if err != nil {
		t.Fatalf("GetApplication failed: %v", err)
	}
	if got.RevealedScore != nil {
		t.Error("Forged callback must not reveal the score")
	}
}
