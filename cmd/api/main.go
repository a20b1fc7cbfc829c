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

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/auth"
	"github.com/bastionhq/bastion/internal/background"
	"github.com/bastionhq/bastion/internal/config"
	"github.com/bastionhq/bastion/internal/database"
	"github.com/bastionhq/bastion/internal/handlers"
	middlewareCustom "github.com/bastionhq/bastion/internal/middleware"
	"github.com/bastionhq/bastion/internal/models"
	"github.com/bastionhq/bastion/internal/ratelimit"
	"github.com/bastionhq/bastion/internal/rbac"
	"github.com/bastionhq/bastion/internal/repositories"
	"github.com/bastionhq/bastion/internal/routes"
	"github.com/bastionhq/bastion/internal/services"
	"github.com/bastionhq/bastion/internal/token"
	"github.com/bastionhq/bastion/internal/totp"
	pkgauth "github.com/bastionhq/bastion/pkg/auth"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	roleRepo := repositories.NewRoleRepository(db)
	recoveryCodeRepo := repositories.NewRecoveryCodeRepository(db)
	auditLogRepo := repositories.NewAuditLogRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	// Core security components
	limiter := ratelimit.New(logger)
	recorder := audit.NewRecorder(auditLogRepo, logger)
	resolver := rbac.NewResolver(roleRepo, logger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.SessionSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	issuer := token.NewIssuer(cfg.Auth.CustomerTokenSecret, cfg.Auth.CustomerTokenTTL)
	timingDelay := auth.NewTimingDelay(cfg.Auth.TimingDelayBase, cfg.Auth.TimingDelayRandom)

	totpEngine, err := totp.NewEngine(cfg.Auth.TOTPEncryptionKey, cfg.Auth.TOTPIssuer)
	if err != nil {
		logger.Error("failed to initialize totp engine", slog.Any("error", err))
		os.Exit(1)
	}

	// Security alerts go out over SES when enabled
	var alerts services.AlertMailer = services.NopAlertMailer{}
	if cfg.Security.AlertsEnabled {
		mailer, err := services.NewSESAlertMailer(
			cfg.Security.AWSRegion,
			cfg.Security.AlertsFromAddress,
			cfg.Security.AlertsToAddress,
			logger,
		)
		if err != nil {
			logger.Error("failed to initialize alert mailer", slog.Any("error", err))
			os.Exit(1)
		}
		alerts = mailer
	}

	// Initialize services
	authService := services.NewAuthService(userRepo, limiter, tokenManager, issuer, recorder, timingDelay, alerts, logger)
	mfaService := services.NewMFAService(userRepo, recoveryCodeRepo, totpEngine, limiter, recorder, timingDelay, alerts, logger)
	userService := services.NewUserService(userRepo, roleRepo, recorder, logger)
	roleService := services.NewRoleService(roleRepo, recorder, logger)
	auditService := services.NewAuditService(auditLogRepo, logger)
	settingsService := services.NewSettingsService(settingsRepo, recorder, logger)

	// Background sweeper compacts limiter state and enforces audit retention
	sweeper := background.NewSweeper(limiter, auditLogRepo, cfg.Security.AuditRetentionDays, cfg.Security.SweepInterval, logger)

	// Bootstrap first admin user if configured
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(ctx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	cancel()

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middlewareCustom.OuterRateLimit(300))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService, mfaService, userRepo, tokenManager),
		MFA:      handlers.NewMFAHandler(mfaService, userRepo),
		Users:    handlers.NewUserHandler(userService),
		Roles:    handlers.NewRoleHandler(roleService),
		Audit:    handlers.NewAuditHandler(auditService),
		Settings: handlers.NewSettingsHandler(settingsService),
	}, routes.Deps{
		TokenManager: tokenManager,
		Issuer:       issuer,
		Limiter:      limiter,
		Resolver:     resolver,
		Settings:     settingsRepo,
		Logger:       logger,
	})

	// Health check with database
	router.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()

	go sweeper.Start(sweepCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	sweepCancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_EMAIL and ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashedPassword, err := pkgauth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.User{
		Email:        adminEmail,
		PasswordHash: hashedPassword,
		Name:         "Admin",
		Role:         "admin",
		Status:       "active",
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
