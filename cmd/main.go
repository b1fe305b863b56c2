package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account_service/internal/account"
	"account_service/internal/config"
	"account_service/internal/follow"
	deleteHandler "account_service/internal/http_server/handlers/delete"
	"account_service/internal/http_server/handlers/edit"
	followHandler "account_service/internal/http_server/handlers/follow"
	"account_service/internal/http_server/handlers/followers"
	"account_service/internal/http_server/handlers/invite"
	"account_service/internal/http_server/handlers/login"
	"account_service/internal/http_server/handlers/logout"
	"account_service/internal/http_server/handlers/performreset"
	"account_service/internal/http_server/handlers/refresh"
	register "account_service/internal/http_server/handlers/register"
	"account_service/internal/http_server/handlers/requestreset"
	"account_service/internal/http_server/handlers/show"
	"account_service/internal/http_server/handlers/sysadmin"
	"account_service/internal/http_server/handlers/unfollow"
	"account_service/internal/http_server/handlers/users"
	mwactor "account_service/internal/middleware/actor"
	rateLimit "account_service/internal/middleware/ratelimit"
	"account_service/internal/rabbitmq"
	"account_service/internal/resetkey"
	"account_service/internal/storage/postgres"
	"account_service/internal/storage/redis"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting account service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	resetKeys, err := redis.New(ctx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer resetKeys.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.MailQueue, cfg.RabbitMQ.EventsQueue)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	accountService := account.New(
		log, storage, storage, msgBroker,
		cfg.Tokens.AccessTokenTTL, cfg.Tokens.RefreshTokenTTL, cfg.Tokens.JWTSecret,
	)
	resetService := resetkey.New(
		log, resetKeys, storage, accountService, msgBroker,
		cfg.Tokens.ResetKeyTTL, cfg.SiteURL,
	)
	followService := follow.New(log, storage, storage)

	router := setupRouter(log, cfg, accountService, resetService, followService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	cfg *config.Config,
	accountService *account.Service,
	resetService *resetkey.Service,
	followService *follow.Service,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(mwactor.Middleware(cfg.Tokens.JWTSecret))

	validate := validator.New()

	r.With(rateLimit.Register()).Post("/register",
		register.New(log, validate, accountService),
	)
	r.With(rateLimit.Login()).Post("/login",
		login.New(log, validate, accountService),
	)
	r.With(rateLimit.Refresh()).Post("/refresh",
		refresh.New(log, validate, accountService),
	)
	r.With(rateLimit.Logout()).Post("/logout",
		logout.New(log, validate, accountService),
	)

	r.Get("/users",
		users.New(log, accountService, cfg.Avatars),
	)
	r.Post("/users/invite",
		invite.New(log, validate, accountService, resetService),
	)
	r.Get("/users/{name}",
		show.New(log, accountService, cfg.Avatars),
	)
	r.Patch("/users/{name}",
		edit.New(log, accountService, cfg.Avatars),
	)
	r.Delete("/users/{name}",
		deleteHandler.New(log, accountService),
	)
	r.Post("/users/{name}/sysadmin",
		sysadmin.New(log, accountService),
	)
	r.Post("/users/{name}/follow",
		followHandler.New(log, followService),
	)
	r.Delete("/users/{name}/follow",
		unfollow.New(log, followService),
	)
	r.Get("/users/{name}/followers",
		followers.New(log, followService, cfg.Avatars),
	)

	r.With(rateLimit.RequestReset()).Post("/reset/request",
		requestreset.New(log, validate, resetService),
	)
	r.With(rateLimit.PerformReset()).Post("/reset/perform",
		performreset.New(log, validate, resetService),
	)

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
