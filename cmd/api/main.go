package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "patentvault/docs" // This is for Swagger
	"patentvault/internal/auth"
	"patentvault/internal/config"
	"patentvault/internal/database"
	"patentvault/internal/encval"
	"patentvault/internal/encval/localenc"
	"patentvault/internal/encval/vaultenc"
	"patentvault/internal/engine"
	"patentvault/internal/grants"
	"patentvault/internal/handlers"
	"patentvault/internal/logger"
	"patentvault/internal/middleware"
	"patentvault/internal/models"
	"patentvault/internal/registry"
	"patentvault/internal/repository"
	"patentvault/internal/scheduler"
	"patentvault/internal/treasury"
	"patentvault/internal/vault"

	httpSwagger "github.com/swaggo/http-swagger"
)

// @title PatentVault API
// @version 1.0
// @description Backend API for confidential patent application lifecycle management

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	logger.Setup(logger.Config{
		Level:   cfg.Log.Level,
		Service: cfg.App.Name,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	// Core state components
	reg := registry.New()
	ledger := grants.NewLedger()
	payouts := treasury.NewLedgerSink()
	tre := treasury.New(payouts)

	// Encrypted value service: Vault transit when enabled, otherwise the
	// in-process backend.
	var enc encval.Service
	if cfg.Vault.Enabled {
		vaultClient, err := vault.NewClient(&vault.Config{
			Address:      cfg.Vault.Address,
			Token:        cfg.Vault.Token,
			TransitMount: cfg.Vault.TransitMount,
		})
		if err != nil {
			slog.Error("Failed to connect to vault", "error", err)
			os.Exit(1)
		}
		enc, err = vaultenc.New(vaultClient, ledger)
		if err != nil {
			slog.Error("Failed to initialize vault encryption", "error", err)
			os.Exit(1)
		}
		slog.Info("Using Vault transit encryption")
	} else {
		enc = localenc.New([]byte(cfg.JWT.Secret), ledger)
		slog.Info("Using local encryption backend")
	}

	// Optional persistence sidecar for snapshots and audit history
	var snapshotRepo *repository.SnapshotRepository
	var audit engine.AuditSink = engine.NewMemoryAudit()
	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func(db *database.Database) {
			if err := db.Close(); err != nil {
				slog.Error("Failed to close database connection", "error", err)
			}
		}(db)
		slog.Info("Database connection established")

		migrator := database.NewMigrationExecutor(db.DB)
		if err := migrator.RunMigrations("./migrations"); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			os.Exit(1)
		}
		slog.Info("Database migrations completed")

		snapshotRepo = repository.NewSnapshotRepository(db.DB)
		audit = repository.NewAuditRepository(db.DB)
	}

	// Load the latest snapshot, if any, to determine the admin principal
	// before the engine is constructed.
	var snapshot *engine.State
	if snapshotRepo != nil {
		snapshot, err = snapshotRepo.LoadLatest()
		if err != nil {
			slog.Error("Failed to load snapshot", "error", err)
			os.Exit(1)
		}
	}

	authService := auth.NewService(&cfg.JWT)

	var admin models.Principal
	if snapshot != nil {
		admin = adminFromSnapshot(snapshot, cfg.Admin.Name)
	}
	if admin == 0 {
		hash, err := authService.HashPassword(cfg.Admin.Password)
		if err != nil {
			slog.Error("Failed to hash admin password", "error", err)
			os.Exit(1)
		}
		account, err := reg.CreateAccount(cfg.Admin.Name, hash, time.Now())
		if err != nil {
			slog.Error("Failed to create admin account", "error", err)
			os.Exit(1)
		}
		admin = account.ID
	}

	eng := engine.New(cfg.Fees, admin, reg, ledger, tre, enc, audit)
	if snapshot != nil {
		if err := eng.Restore(snapshot); err != nil {
			slog.Error("Failed to restore snapshot", "error", err)
			os.Exit(1)
		}
		slog.Info("State restored from snapshot", "applications", reg.Count())
	}

	// Decryption results re-enter the engine through this callback
	enc.OnDecryption(eng.DecryptionCallback)

	// Background tasks: callback delivery, snapshots, timeout sweep
	var snapshotStore scheduler.SnapshotStore
	if snapshotRepo != nil {
		snapshotStore = snapshotRepo
	}
	sched := scheduler.NewScheduler(eng, enc, snapshotStore, &cfg.Scheduler)
	sched.Start()
	defer sched.Stop()

	// Handlers
	authHandler := handlers.NewAuthHandler(authService, reg)
	applicationHandler := handlers.NewApplicationHandler(eng)
	examinerHandler := handlers.NewExaminerHandler(eng, enc)
	treasuryHandler := handlers.NewTreasuryHandler(eng)
	oracleHandler := handlers.NewOracleHandler(eng)

	// Middleware
	authMw := middleware.NewAuthMiddleware(authService)
	adminMw := middleware.NewAdminMiddleware(admin)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit)

	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/oracle/callback", oracleHandler.Callback)

	// Applicant routes
	mux.Handle("POST /api/v1/applications",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.Submit)))
	mux.Handle("GET /api/v1/applications/mine",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.ListMine)))
	mux.Handle("GET /api/v1/applications/{id}",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.Get)))
	mux.Handle("POST /api/v1/applications/{id}/withdraw",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.Withdraw)))
	mux.Handle("POST /api/v1/applications/{id}/access",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.RequestAccess)))
	mux.Handle("GET /api/v1/applications/{id}/timeout",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.CheckTimeout)))
	mux.Handle("GET /api/v1/applications/{id}/decision",
		authMw.Authenticate(http.HandlerFunc(applicationHandler.GetDecision)))
	mux.Handle("POST /api/v1/applications/{id}/refund",
		authMw.Authenticate(http.HandlerFunc(treasuryHandler.RequestRefund)))

	// Examiner routes; the engine checks the assignment relationship
	mux.Handle("POST /api/v1/applications/{id}/decision",
		authMw.Authenticate(http.HandlerFunc(examinerHandler.Decide)))
	mux.Handle("POST /api/v1/applications/{id}/score",
		authMw.Authenticate(http.HandlerFunc(examinerHandler.UpdateScore)))
	mux.Handle("POST /api/v1/applications/{id}/score/decrypt",
		authMw.Authenticate(http.HandlerFunc(examinerHandler.RequestScoreDecryption)))
	mux.Handle("GET /api/v1/examiners",
		authMw.Authenticate(http.HandlerFunc(examinerHandler.List)))
	mux.Handle("POST /api/v1/encrypted-values",
		authMw.Authenticate(http.HandlerFunc(examinerHandler.WrapValue)))

	// Admin routes
	mux.Handle("POST /api/v1/examiners",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(examinerHandler.Authorize))))
	mux.Handle("DELETE /api/v1/examiners/{id}",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(examinerHandler.Revoke))))
	mux.Handle("POST /api/v1/applications/{id}/assign",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(examinerHandler.Assign))))
	mux.Handle("POST /api/v1/applications/{id}/refund/mark",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(treasuryHandler.MarkForRefund))))
	mux.Handle("POST /api/v1/applications/{id}/reveal",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(oracleHandler.EmergencyReveal))))
	mux.Handle("GET /api/v1/treasury/balance",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(treasuryHandler.Balance))))
	mux.Handle("POST /api/v1/treasury/withdraw",
		authMw.Authenticate(adminMw.RequireAdmin(http.HandlerFunc(treasuryHandler.WithdrawFees))))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy","version":"` + cfg.App.Version + `"}`)); err != nil {
			slog.Error("Failed to write health check response", "error", err)
		}
	})

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(
				rateLimiter.Limit(mux),
			),
		),
	)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	// Persist a final snapshot so a restart resumes where we left off
	if snapshotRepo != nil {
		if st, err := eng.Snapshot(); err != nil {
			slog.Error("Failed to capture final snapshot", "error", err)
		} else if err := snapshotRepo.Save(st); err != nil {
			slog.Error("Failed to persist final snapshot", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

// adminFromSnapshot finds the admin principal inside a restored account table
func adminFromSnapshot(st *engine.State, name string) models.Principal {
	for _, account := range st.Registry.Accounts {
		if account.Name == name {
			return account.ID
		}
	}
	return 0
}
