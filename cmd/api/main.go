package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/taskflow/taskflow-go/internal/config"
	"github.com/taskflow/taskflow-go/internal/crypto"
	"github.com/taskflow/taskflow-go/internal/handler"
	"github.com/taskflow/taskflow-go/internal/lock"
	"github.com/taskflow/taskflow-go/internal/mail"
	"github.com/taskflow/taskflow-go/internal/middleware"
	"github.com/taskflow/taskflow-go/internal/repository"
	"github.com/taskflow/taskflow-go/internal/scheduler"
	"github.com/taskflow/taskflow-go/internal/service"
	"github.com/taskflow/taskflow-go/internal/validate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(cfg.DatabaseDSN)
	if err != nil {
		logger.Error("database setup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)

	// Redis is optional: without it the sweep lock is in-process and the
	// resend cooldown is off.
	var (
		locker   lock.Locker = lock.NewLocalLocker()
		cooldown service.Cooldown
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, using in-process lock", slog.String("error", err.Error()))
		} else {
			locker = lock.NewRedisLocker(rdb, "")
			cooldown = lock.NewCooldown(rdb, "")
			logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))
		}
	}

	var sender mail.Sender
	if cfg.Mail.Enabled() {
		sender = mail.NewSMTPSender(cfg.Mail, logger)
	} else {
		logger.Warn("smtp not configured, emails will only be logged")
		sender = mail.NewLogSender(logger)
	}

	dispatcher := mail.NewDispatcher(sender, logger, mail.DispatcherOptions{
		Workers:     cfg.Mail.Workers,
		QueueSize:   cfg.Mail.QueueSize,
		MaxAttempts: cfg.Mail.MaxAttempts,
		SendTimeout: cfg.Mail.SendTimeout,
		Backoff:     2 * time.Second,
	})
	// Not tied to ctx so Shutdown can drain what is still queued.
	dispatcher.Start(context.Background())

	v := validate.New()
	tokens := crypto.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiry, cfg.ResetTokenTTL)
	otp := service.NewOTPManager(userRepo, dispatcher, cooldown, cfg.OTP, logger)
	authService := service.NewAuthService(userRepo, otp, tokens, crypto.DefaultPasswordHasher(), v, logger)
	taskService := service.NewTaskService(taskRepo, userRepo, dispatcher, v, logger)

	authHandler := handler.NewAuthHandler(authService, logger)
	taskHandler := handler.NewTaskHandler(taskService, logger)

	sched := scheduler.New(taskRepo, sender, locker, logger,
		scheduler.WithInterval(cfg.Sweep.Interval),
		scheduler.WithConcurrency(cfg.Sweep.Concurrency),
		scheduler.WithSendTimeout(cfg.Mail.SendTimeout))
	sched.Start(ctx)

	r := chi.NewRouter()
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(ctx, 5, 10))
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/resend-otp", authHandler.HandleResendOTP)
			r.Post("/verify-otp", authHandler.HandleVerifyOTP)
			r.Post("/forgot-password", authHandler.HandleForgotPassword)
			r.Post("/verify-reset-otp", authHandler.HandleVerifyResetOTP)
			r.Post("/reset-password", authHandler.HandleResetPassword)
			r.Post("/check-otp-status", authHandler.HandleCheckOTPStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(tokens, userRepo, logger))
			r.Get("/profile", authHandler.HandleGetProfile)
			r.Put("/profile", authHandler.HandleUpdateProfile)
			r.Delete("/profile", authHandler.HandleDeleteAccount)
		})
	})

	r.Route("/tasks", func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens, userRepo, logger))
		r.Post("/", taskHandler.HandleCreate)
		r.Get("/", taskHandler.HandleList)
		r.Get("/{id}", taskHandler.HandleGet)
		r.Put("/{id}", taskHandler.HandleUpdate)
		r.Delete("/{id}", taskHandler.HandleDelete)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", slog.String("error", err.Error()))
	}

	if err := dispatcher.Shutdown(10 * time.Second); err != nil {
		logger.Error("mail queue not drained", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// newLogger builds a JSON logger in production and a text logger elsewhere.
func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
