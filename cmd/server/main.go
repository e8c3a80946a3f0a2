package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/farmorders/internal/events"
	"github.com/aryan0dhankhar/farmorders/internal/handler"
	"github.com/aryan0dhankhar/farmorders/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/farmorders/internal/observability/tracing"
	"github.com/aryan0dhankhar/farmorders/internal/security/audit"
	"github.com/aryan0dhankhar/farmorders/internal/security/auth"
	"github.com/aryan0dhankhar/farmorders/internal/security/middleware"
	"github.com/aryan0dhankhar/farmorders/internal/security/ratelimit"
	"github.com/aryan0dhankhar/farmorders/internal/security/revocation"
	"github.com/aryan0dhankhar/farmorders/internal/service"
	"github.com/aryan0dhankhar/farmorders/internal/worker"
	"github.com/aryan0dhankhar/farmorders/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.Log)
	slog.SetDefault(log)
	log.Info("starting farmorders server",
		slog.String("environment", cfg.Environment),
		slog.String("store", cfg.StoreBackend),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, "farmorders", cfg.Environment, log)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Initialize repositories
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.close()

	// 5. Change hub, shared across instances through Redis when available
	hub := events.NewHub(32, log)
	if st.pubsub != nil {
		relay := events.NewRelay(hub, st.pubsub, events.DefaultChannel, log)
		if err := relay.Start(ctx); err != nil {
			log.Error("failed to start change relay", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 6. Initialize services
	secret := cfg.JWTSecret
	if secret == "" {
		secret = "development-secret"
		log.Warn("JWT_SECRET not set; using an insecure development secret")
	}
	tokenManager := auth.NewTokenManager(secret, "farmorders")
	auditLogger := audit.NewLogger(log)
	tokenTTL := time.Duration(cfg.TokenTTLHours) * time.Hour
	var revocationStore revocation.Store = revocation.NewMemoryStore()
	if st.revocations != nil {
		revocationStore = st.revocations
	}
	revocations := revocation.NewList(revocationStore, "farmorders", tokenTTL, log)
	deps := service.Deps{Events: hub, Audit: auditLogger, Logger: log, Revocations: revocations}

	userService := service.NewUserService(st.users, nil, cfg.LoginDomain, deps)
	authService := service.NewAuthService(st.users, userService, tokenManager, tokenTTL, deps)
	orderService := service.NewOrderService(st.orders, st.users, deps)
	absenceService := service.NewAbsenceService(st.absences, deps)
	dashboardService := service.NewDashboardService(st.orders, st.users, st.absences, deps)

	seeded, err := authService.SeedAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminPassword)
	if err != nil {
		log.Error("failed to seed admin", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if seeded {
		log.Info("seeded initial admin", slog.String("username", cfg.SeedAdminUsername))
	}

	// 7. Initialize handlers and routes
	directory := userService.Directory()
	handlers := handler.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		Users:     handler.NewUserHandler(userService, log),
		Orders:    handler.NewOrderHandler(orderService, directory, log),
		Absences:  handler.NewAbsenceHandler(absenceService, directory, log),
		Catalog:   handler.NewCatalogHandler(log),
		Dashboard: handler.NewDashboardHandler(dashboardService, directory, log),
		Health:    handler.NewHealthHandler(st.checks, log),
		Changes:   handler.NewChangesHandler(hub, log, cfg.CORSAllowedOrigins),
	}
	mux := http.NewServeMux()
	handlers.Register(mux, log)

	// 8. Middleware chain
	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Error("invalid trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	defer rateLimiter.Stop()
	root := handler.Wrap(mux, handler.StackConfig{
		Tokens:         tokenManager,
		Revoked:        authService,
		Limiter:        rateLimiter,
		LoginAttempts:  10,
		LoginWindow:    time.Minute,
		Audit:          auditLogger,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies: proxies,
		Logger:         log,
	})
	traced := otelhttp.NewHandler(root, "farmorders",
		// Long-lived websocket connections would hold a span open forever
		otelhttp.WithFilter(func(r *http.Request) bool { return !strings.HasPrefix(r.URL.Path, "/ws/") }),
	)

	// 9. Start order sweeper in background
	sweeper := worker.NewOrderSweeper(orderService, authService, log, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	go sweeper.Start(ctx)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      traced,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // Stop sweeper and relay
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}
