package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-notification-relay/internal/storage/gormstore"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// ServicesAPI manages services and accepts notifications for them.
type ServicesAPI struct {
	Store     *gormstore.Store
	Notifier  Notifier
	Allowlist *IPAllowlist
	Limiter   *rate.Limiter
	Logger    *slog.Logger

	validate *validator.Validate
}

func NewServicesAPI(store *gormstore.Store, notifier Notifier, allowlist *IPAllowlist, createLimit rate.Limit, logger *slog.Logger) *ServicesAPI {
	return &ServicesAPI{
		Store:     store,
		Notifier:  notifier,
		Allowlist: allowlist,
		Limiter:   rate.NewLimiter(createLimit, int(createLimit)+1),
		Logger:    logger.With("component", "services_api"),
		validate:  validator.New(),
	}
}

// --- Service CRUD ---

func (api *ServicesAPI) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := api.Store.Services(r.Context())
	if err != nil {
		api.Logger.Error("failed to list services", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	out := make([]serviceResponse, len(services))
	for i, s := range services {
		out[i] = serviceResponse{ID: s.ID, Category: s.Category, Color: s.Color, Owner: s.Owner}
	}
	writeJSON(w, http.StatusOK, out)
}

type serviceCreateRequest struct {
	Category string `json:"category" validate:"required,min=1,max=128"`
	Color    string `json:"color" validate:"omitempty,hexadecimal,len=6"`
	Owner    string `json:"owner" validate:"omitempty,max=128"`
}

func (api *ServicesAPI) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := api.validate.Struct(req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, err := api.Store.CreateService(r.Context(), req.Category, req.Color, req.Owner)
	if err != nil {
		api.Logger.Error("failed to create service", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("service created", "service_id", svc.ID, "category", svc.Category)
	writeJSON(w, http.StatusCreated, serviceResponse{ID: svc.ID, Category: svc.Category, Color: svc.Color, Owner: svc.Owner})
}

type servicePatchRequest struct {
	Category *string `json:"category" validate:"omitempty,min=1,max=128"`
	Color    *string `json:"color" validate:"omitempty,hexadecimal,len=6"`
	Owner    *string `json:"owner" validate:"omitempty,max=128"`
}

func (api *ServicesAPI) UpdateService(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathServiceID(w, r)
	if !ok {
		return
	}

	var req servicePatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := api.validate.Struct(req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, err := api.Store.UpdateService(r.Context(), serviceID, gormstore.ServiceUpdate{
		Category: req.Category,
		Color:    req.Color,
		Owner:    req.Owner,
	})
	if errors.Is(err, notify.ErrNotFound) {
		response.WriteJSONError(w, http.StatusNotFound, "service not found")
		return
	}
	if err != nil {
		api.Logger.Error("failed to update service", "service_id", serviceID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse{ID: svc.ID, Category: svc.Category, Color: svc.Color, Owner: svc.Owner})
}

// --- Notifications ---

func (api *ServicesAPI) ServiceNotifications(w http.ResponseWriter, r *http.Request) {
	serviceID, ok := pathServiceID(w, r)
	if !ok {
		return
	}

	notifications, err := api.Store.ServiceNotifications(r.Context(), serviceID)
	if err != nil {
		api.Logger.Error("failed to list service notifications", "service_id", serviceID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	out := make([]notificationResponse, len(notifications))
	for i, n := range notifications {
		out[i] = toNotificationResponse(n)
	}
	writeJSON(w, http.StatusOK, out)
}

type notificationCreateRequest struct {
	Title    string `json:"title" validate:"required,min=1,max=256"`
	Subtitle string `json:"subtitle" validate:"omitempty"`
	URL      string `json:"url" validate:"omitempty,max=2048"`
}

// CreateNotification stores the notification and kicks off push delivery in
// the background. The 201 response does not wait for any pushes.
func (api *ServicesAPI) CreateNotification(w http.ResponseWriter, r *http.Request) {
	if !api.Allowlist.Allows(r) {
		response.WriteJSONError(w, http.StatusForbidden, "source network not allowed")
		return
	}
	if !api.Limiter.Allow() {
		response.WriteJSONError(w, http.StatusTooManyRequests, "too many notifications")
		return
	}

	serviceID, ok := pathServiceID(w, r)
	if !ok {
		return
	}

	var req notificationCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := api.validate.Struct(req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The full subtitle is stored; push payloads carry only a truncated
	// preview and clients fetch the rest from the history endpoint.
	n, err := api.Store.CreateNotification(r.Context(), serviceID, gormstore.NotificationCreate{
		Title:    req.Title,
		Subtitle: req.Subtitle,
		URL:      req.URL,
	})
	if errors.Is(err, notify.ErrNotFound) {
		response.WriteJSONError(w, http.StatusNotFound, "service not found")
		return
	}
	if err != nil {
		api.Logger.Error("failed to store notification", "service_id", serviceID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	// Fan-out is detached from the request, it must not inherit a context
	// that dies when the response is written.
	go api.Notifier.SendNotification(context.WithoutCancel(r.Context()), n.ID)

	writeJSON(w, http.StatusCreated, toNotificationResponse(*n))
}

func pathServiceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid service id")
		return uuid.Nil, false
	}
	return id, true
}
