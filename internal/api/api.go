package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Notifier starts the background fan-out for a stored notification.
type Notifier interface {
	SendNotification(ctx context.Context, notificationID int64)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// --- Wire DTOs ---

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	IsActive bool   `json:"is_active"`
	IsAdmin  bool   `json:"is_admin"`
}

type serviceResponse struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
	Color    string    `json:"color"`
	Owner    string    `json:"owner"`
}

type userServiceResponse struct {
	serviceResponse
	IsSubscribed bool `json:"is_subscribed"`
}

type notificationResponse struct {
	ID        int64     `json:"id"`
	ServiceID uuid.UUID `json:"service_id"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	URL       string    `json:"url"`
}

type userNotificationResponse struct {
	notificationResponse
	IsRead bool `json:"is_read"`
}
