package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-notification-relay/internal/auth"
	"github.com/tinywideclouds/go-notification-relay/internal/storage/gormstore"
	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// UsersAPI serves the authenticated user's profile, subscriptions, device
// tokens and notification history, plus the admin user management surface.
type UsersAPI struct {
	Store  *gormstore.Store
	Tokens dispatch.TokenStore
	Logger *slog.Logger
}

func NewUsersAPI(store *gormstore.Store, tokens dispatch.TokenStore, logger *slog.Logger) *UsersAPI {
	return &UsersAPI{
		Store:  store,
		Tokens: tokens,
		Logger: logger.With("component", "users_api"),
	}
}

// --- Profile ---

func (api *UsersAPI) Profile(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// --- Device tokens ---

type registerTokenRequest struct {
	Token string `json:"device_token"`
}

func (api *UsersAPI) RegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing device_token")
		return
	}

	added, err := api.Tokens.AddDeviceToken(ctx, user.ID, req.Token)
	if err != nil {
		api.Logger.Error("failed to register device token", "user_id", user.ID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
		api.Logger.Info("device token registered",
			"user", user.Username, "platform", notify.ClassifyToken(req.Token))
	}
	w.WriteHeader(status)
}

func (api *UsersAPI) UnregisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req registerTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	// Idempotent by design, removing an unknown token is fine.
	if err := api.Tokens.RemoveDeviceToken(ctx, user.ID, req.Token); err != nil {
		api.Logger.Warn("failed to unregister device token", "user_id", user.ID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Subscriptions ---

func (api *UsersAPI) UserServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	services, err := api.Store.UserServices(ctx, user.ID)
	if err != nil {
		api.Logger.Error("failed to list user services", "user_id", user.ID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	out := make([]userServiceResponse, len(services))
	for i, s := range services {
		out[i] = userServiceResponse{
			serviceResponse: serviceResponse{ID: s.ID, Category: s.Category, Color: s.Color, Owner: s.Owner},
			IsSubscribed:    s.IsSubscribed,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type subscriptionPatch struct {
	ServiceID    uuid.UUID `json:"id"`
	IsSubscribed bool      `json:"is_subscribed"`
}

func (api *UsersAPI) UpdateUserServices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var patches []subscriptionPatch
	if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updates := make([]gormstore.SubscriptionUpdate, len(patches))
	for i, p := range patches {
		updates[i] = gormstore.SubscriptionUpdate{ServiceID: p.ServiceID, IsSubscribed: p.IsSubscribed}
	}
	if err := api.Store.UpdateUserSubscriptions(ctx, user.ID, updates); err != nil {
		api.Logger.Error("failed to update subscriptions", "user_id", user.ID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Notification history ---

func (api *UsersAPI) UserNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	history, err := api.Store.UserNotifications(ctx, user.ID)
	if err != nil {
		api.Logger.Error("failed to list notifications", "user_id", user.ID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	out := make([]userNotificationResponse, len(history))
	for i, n := range history {
		out[i] = userNotificationResponse{
			notificationResponse: toNotificationResponse(n.Notification),
			IsRead:               n.IsRead,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type notificationPatch struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

func (api *UsersAPI) UpdateUserNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var patches []notificationPatch
	if err := json.NewDecoder(r.Body).Decode(&patches); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updates := make([]gormstore.NotificationStatusUpdate, len(patches))
	for i, p := range patches {
		status := gormstore.NotificationStatus(p.Status)
		switch status {
		case gormstore.StatusRead, gormstore.StatusUnread, gormstore.StatusDeleted:
		default:
			response.WriteJSONError(w, http.StatusBadRequest, "status must be read, unread or deleted")
			return
		}
		updates[i] = gormstore.NotificationStatusUpdate{NotificationID: p.ID, Status: status}
	}
	if err := api.Store.UpdateUserNotifications(ctx, user.ID, updates); err != nil {
		api.Logger.Error("failed to update notification state", "user_id", user.ID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Admin ---

func (api *UsersAPI) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := api.Store.Users(r.Context())
	if err != nil {
		api.Logger.Error("failed to list users", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	out := make([]userResponse, len(users))
	for i := range users {
		out[i] = toUserResponse(&users[i])
	}
	writeJSON(w, http.StatusOK, out)
}

type userPatch struct {
	IsActive *bool `json:"is_active"`
	IsAdmin  *bool `json:"is_admin"`
}

func (api *UsersAPI) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	var patch userPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	updated, err := api.Store.UpdateUser(ctx, userID, gormstore.UserUpdate{
		IsActive: patch.IsActive,
		IsAdmin:  patch.IsAdmin,
	})
	if errors.Is(err, notify.ErrNotFound) {
		response.WriteJSONError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		api.Logger.Error("failed to update user", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(updated))
}

func (api *UsersAPI) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}

	if err := api.Store.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			response.WriteJSONError(w, http.StatusNotFound, "user not found")
			return
		}
		api.Logger.Error("failed to delete user", "user_id", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathUserID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return uint(id), true
}

func toNotificationResponse(n notify.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		ServiceID: n.ServiceID,
		Timestamp: n.Timestamp,
		Title:     n.Title,
		Subtitle:  n.Subtitle,
		URL:       n.URL,
	}
}
