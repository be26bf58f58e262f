// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	mux_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iridium40/roam-platform-sub004/internal/approval"
	"github.com/Iridium40/roam-platform-sub004/internal/approvaltoken"
	"github.com/Iridium40/roam-platform-sub004/internal/config"
	"github.com/Iridium40/roam-platform-sub004/internal/handlers"
	"github.com/Iridium40/roam-platform-sub004/internal/handlers/approvals"
	"github.com/Iridium40/roam-platform-sub004/internal/middleware"
	"github.com/Iridium40/roam-platform-sub004/internal/notify"
	"github.com/Iridium40/roam-platform-sub004/internal/repo"
)

func main() {
	// --- Load config (config.yaml + env overrides) ---
	cfg := config.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Connect to Postgres ---
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("db ping error: %v", err)
	}

	r := repo.New(pool)

	// --- Approval token codec ---
	codec, err := approvaltoken.NewCodec(approvaltoken.Config{
		Secret:   cfg.Approval.Secret,
		Issuer:   cfg.Approval.Issuer,
		Audience: cfg.Approval.Audience,
		TTL:      cfg.Approval.TokenTTL,
	})
	if err != nil {
		log.Fatalf("approval token codec: %v", err)
	}

	mailer := notify.New(notify.Config{
		Provider:        cfg.Email.Provider,
		APIKey:          cfg.Email.APIKey,
		Endpoint:        cfg.Email.Endpoint,
		From:            cfg.Email.From,
		Timeout:         cfg.Email.Timeout,
		BreakerFailures: cfg.Email.BreakerFailures,
		BreakerCooldown: cfg.Email.BreakerCooldown,
	})
	if !mailer.Configured() {
		log.Printf("%s API key not set; approval emails will be skipped", mailer.Provider())
	}

	svc := approval.NewService(r, r, mailer, codec, approval.Options{
		BaseURL:     cfg.BaseURL,
		StepTimeout: cfg.Database.Timeout,
	})

	// --- Router ---
	mux := chi.NewRouter()

	mux.Use(middleware.RequestID)
	// Simple request logger (logs method, path, status, and duration)
	mux.Use(mux_middleware.Logger)
	mux.Use(mux_middleware.Recoverer)

	// --- CORS middleware ---
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by browsers
	}))

	handlers.RegisterRoutes(mux, approvals.New(svc, codec), pool)

	// --- Start server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s (BASE_URL=%s)", srv.Addr, cfg.BaseURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
