package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/diagnosis/cruise-bookings/internal/credentials"
	"github.com/diagnosis/cruise-bookings/internal/csrf"
	apihttp "github.com/diagnosis/cruise-bookings/internal/http"
	"github.com/diagnosis/cruise-bookings/internal/http/handlers"
	"github.com/diagnosis/cruise-bookings/internal/http/middleware"
	"github.com/diagnosis/cruise-bookings/internal/lockout"
	"github.com/diagnosis/cruise-bookings/internal/mailer"
	"github.com/diagnosis/cruise-bookings/internal/payments"
	"github.com/diagnosis/cruise-bookings/internal/repository"
	"github.com/diagnosis/cruise-bookings/internal/service"
	"github.com/diagnosis/cruise-bookings/internal/session"
	"github.com/diagnosis/cruise-bookings/pkg/config"
	"github.com/diagnosis/cruise-bookings/pkg/database"
	"github.com/diagnosis/cruise-bookings/pkg/events"
	"github.com/diagnosis/cruise-bookings/pkg/kv"
	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(os.Stdout, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("API server error", "error", err)
		os.Exit(1)
	}
	logger.Info("API server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Database
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	// Shared state for lockout, CSRF bindings, limiter windows and idempotency
	var store kv.Store
	if cfg.Redis.URL != "" {
		rs, err := kv.NewRedisStore(ctx, cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		store = rs
		logger.Info("Connected to Redis")
	} else {
		store = kv.NewMemoryStore()
		logger.Warn("REDIS_URL not set, using in-process store; lockouts and limits are per instance")
	}
	defer store.Close()

	// Events
	var bus events.EventBus
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			return err
		}
		bus = nb
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	} else {
		bus = events.NewLogBus()
	}
	defer bus.Close()

	// Repositories
	users := repository.NewUserRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	paymentRepo := repository.NewPaymentRepository(pool)
	catalogRepo := repository.NewCatalogRepository(pool)
	enquiryRepo := repository.NewEnquiryRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	// Payments
	var gateway payments.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payments.NewStripeGateway(cfg.Stripe.SecretKey)
		logger.Info("Stripe gateway enabled", "environment", cfg.Stripe.Environment)
	} else {
		gateway = payments.NewDevGateway()
		logger.Warn("STRIPE_SECRET_KEY not set, payments are simulated")
	}

	// Services
	hasher := credentials.NewHasher(credentials.ParamsFrom(
		cfg.Auth.Argon2Memory,
		cfg.Auth.Argon2Iterations,
		cfg.Auth.Argon2Parallelism,
	))
	accounts := service.NewAccountService(
		users,
		hasher,
		credentials.NewResetTokens(users, cfg.Auth.ResetTokenTTL),
		lockout.NewTracker(store, cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration),
		mailer.New(cfg.Email),
		service.AccountConfig{BaseURL: cfg.Server.BaseURL},
	)
	bookings := service.NewBookingService(bookingRepo, paymentRepo, catalogRepo, gateway, bus)
	enquiries := service.NewEnquiryService(enquiryRepo, users, bus)
	catalog := service.NewCatalogService(catalogRepo)

	sessions := session.NewManager(sessionRepo, users, session.Config{
		CookieName: cfg.Auth.SessionCookieName,
		TTL:        cfg.Auth.SessionTTL,
		Secure:     cfg.Auth.SessionCookieSecure,
	})
	csrfManager := csrf.NewManager(store, csrf.Config{
		CookieName: cfg.Auth.CSRFCookieName,
		TTL:        cfg.Auth.CSRFTokenTTL,
		Secure:     cfg.Auth.SessionCookieSecure,
	})

	if cfg.Auth.ResetTokenEcho {
		logger.Warn("RESET_TOKEN_ECHO enabled, reset tokens are returned in responses")
	}
	h := handlers.New(accounts, bookings, enquiries, catalog, sessions, csrfManager, handlers.Options{
		EchoResetToken: cfg.Auth.ResetTokenEcho,
	})

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Handlers:       h,
		Sessions:       sessions,
		CSRF:           csrfManager,
		Store:          store,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		GlobalLimit: middleware.RateLimitConfig{
			Requests: cfg.Auth.GlobalRateLimit,
			Window:   cfg.Auth.GlobalRateWindow,
		},
		ResetLimit: middleware.RateLimitConfig{
			Requests: cfg.Auth.ResetRateLimit,
			Window:   cfg.Auth.ResetRateWindow,
		},
		Ping: pool.Ping,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		cleanupSessions(gctx, sessions, cfg.Auth.SessionCleanup)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanupSessions removes expired session rows until ctx is done.
func cleanupSessions(ctx context.Context, sessions *session.Manager, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.CleanupExpired(ctx)
			if err != nil {
				logger.Error("Session cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Expired sessions removed", "count", n)
			}
		}
	}
}
