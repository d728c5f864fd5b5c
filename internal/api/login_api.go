package api

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-notification-relay/internal/auth"
	"github.com/tinywideclouds/go-notification-relay/internal/model"
	"github.com/tinywideclouds/go-notification-relay/internal/storage/gormstore"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// LoginAPI exchanges directory credentials for an access token. Users are
// created on first successful login.
type LoginAPI struct {
	Store      *gormstore.Store
	Verifier   auth.Verifier
	Secret     string
	TokenTTL   time.Duration
	AdminUsers []string
	Logger     *slog.Logger
}

func NewLoginAPI(store *gormstore.Store, verifier auth.Verifier, secret string, ttl time.Duration, adminUsers []string, logger *slog.Logger) *LoginAPI {
	return &LoginAPI{
		Store:      store,
		Verifier:   verifier,
		Secret:     secret,
		TokenTTL:   ttl,
		AdminUsers: adminUsers,
		Logger:     logger.With("component", "login_api"),
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (api *LoginAPI) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := strings.ToLower(strings.TrimSpace(r.PostFormValue("username")))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing username or password")
		return
	}

	ok, err := api.Verifier.Verify(ctx, username, password)
	if err != nil {
		api.Logger.Error("credential verification failed", "err", err)
		response.WriteJSONError(w, http.StatusBadGateway, "authentication backend unavailable")
		return
	}
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "incorrect username or password")
		return
	}

	created := false
	user, err := api.Store.UserByUsername(ctx, username)
	if errors.Is(err, notify.ErrNotFound) {
		user, err = api.Store.CreateUser(ctx, username, slices.Contains(api.AdminUsers, username))
		created = err == nil
	}
	if err != nil {
		api.Logger.Error("failed to load or create user", "username", username, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	if !user.IsActive {
		response.WriteJSONError(w, http.StatusForbidden, "user is deactivated")
		return
	}

	token, expiry, err := auth.CreateAccessToken(api.Secret, user.Username, api.TokenTTL)
	if err != nil {
		api.Logger.Error("failed to mint access token", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "token creation failed")
		return
	}
	if err := api.Store.SetLoginExpiry(ctx, user.ID, expiry); err != nil {
		api.Logger.Warn("failed to record login expiry", "user_id", user.ID, "err", err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		api.Logger.Info("created user on first login", "username", user.Username, "admin", user.IsAdmin)
	}
	writeJSON(w, status, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Username: u.Username,
		IsActive: u.IsActive,
		IsAdmin:  u.IsAdmin,
	}
}
