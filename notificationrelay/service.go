package notificationrelay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-notification-relay/internal/api"
	"github.com/tinywideclouds/go-notification-relay/internal/auth"
	"github.com/tinywideclouds/go-notification-relay/internal/storage/gormstore"
	"github.com/tinywideclouds/go-notification-relay/notificationrelay/config"
	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

type Wrapper struct {
	*microservice.BaseServer
	logger *slog.Logger
}

// New assembles the service: storage, auth, API surface and routing.
// The notifier is the fan-out orchestrator; it is injected so tests can
// substitute a recorder.
func New(
	cfg *config.Config,
	store *gormstore.Store,
	tokenStore dispatch.TokenStore,
	notifier api.Notifier,
	verifier auth.Verifier,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. API handlers
	allowlist, err := api.NewIPAllowlist(cfg.AllowedNetworks)
	if err != nil {
		return nil, fmt.Errorf("failed to parse allowed networks: %w", err)
	}

	loginAPI := api.NewLoginAPI(store, verifier, cfg.SecretKey, cfg.AccessTokenTTL, cfg.AdminUsers, logger)
	usersAPI := api.NewUsersAPI(store, tokenStore, logger)
	servicesAPI := api.NewServicesAPI(store, notifier, allowlist, rate.Limit(cfg.RateLimitPerSec), logger)

	// 3. Middleware
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	authMiddleware := auth.NewMiddleware(cfg.SecretKey, store, logger)

	// Register Routes
	mux := baseServer.Mux()

	public := func(h http.HandlerFunc) http.Handler {
		return corsMiddleware(h)
	}
	protected := func(h http.HandlerFunc) http.Handler {
		return corsMiddleware(authMiddleware.RequireUser(h))
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return corsMiddleware(authMiddleware.RequireAdmin(h))
	}

	// OPTIONS preflight
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	// Login
	mux.Handle("POST /api/v1/login", public(loginAPI.Login))

	// Current user
	mux.Handle("GET /api/v1/users/me", protected(usersAPI.Profile))
	mux.Handle("POST /api/v1/users/me/device-tokens", protected(usersAPI.RegisterDeviceToken))
	mux.Handle("DELETE /api/v1/users/me/device-tokens", protected(usersAPI.UnregisterDeviceToken))
	mux.Handle("GET /api/v1/users/me/services", protected(usersAPI.UserServices))
	mux.Handle("PATCH /api/v1/users/me/services", protected(usersAPI.UpdateUserServices))
	mux.Handle("GET /api/v1/users/me/notifications", protected(usersAPI.UserNotifications))
	mux.Handle("PATCH /api/v1/users/me/notifications", protected(usersAPI.UpdateUserNotifications))

	// User administration
	mux.Handle("GET /api/v1/users", admin(usersAPI.ListUsers))
	mux.Handle("PATCH /api/v1/users/{id}", admin(usersAPI.UpdateUser))
	mux.Handle("DELETE /api/v1/users/{id}", admin(usersAPI.DeleteUser))

	// Services
	mux.Handle("GET /api/v1/services", protected(servicesAPI.ListServices))
	mux.Handle("POST /api/v1/services", admin(servicesAPI.CreateService))
	mux.Handle("PATCH /api/v1/services/{id}", admin(servicesAPI.UpdateService))
	mux.Handle("GET /api/v1/services/{id}/notifications", admin(servicesAPI.ServiceNotifications))

	// Notification ingestion is machine-to-machine, gated by source network
	// and rate limit instead of a bearer token.
	mux.Handle("POST /api/v1/services/{id}/notifications", public(servicesAPI.CreateNotification))

	return &Wrapper{
		BaseServer: baseServer,
		logger:     logger,
	}, nil
}

func (w *Wrapper) Start(_ context.Context) error {
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		return err
	}
	w.logger.Info("Service shutdown complete.")
	return nil
}
