// Package notify contains the public domain types for the notification relay.
package notify

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when the requested entity does not exist.
var ErrNotFound = errors.New("notify: not found")

// Platform identifies which push provider a device token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// apnsTokenLength is the length of an APNs device token in hex characters.
const apnsTokenLength = 64

// ClassifyToken reports which platform a device token belongs to.
//
// Tokens of exactly 64 hexadecimal characters are treated as APNs device
// tokens (iOS); any other non-empty token is treated as an FCM registration
// token (Android). This is a shape heuristic, not a validation: a malformed
// token that happens to be 64 hex characters long is routed to APNs.
func ClassifyToken(token string) Platform {
	if len(token) == apnsTokenLength && isHex(token) {
		return PlatformIOS
	}
	return PlatformAndroid
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// MaxPreviewLen is the maximum number of characters of the subtitle embedded
// in a push alert. Providers cap the payload around 4KB and only a short
// preview is displayed; the client fetches the full message from the API.
const MaxPreviewLen = 256

// Preview hard-truncates s to MaxPreviewLen characters. The cut is not
// word-boundary aware.
func Preview(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxPreviewLen {
		return s
	}
	return string(runes[:MaxPreviewLen])
}

// Notification is one message posted against a service. It is immutable once
// created; only retention cleanup removes it.
type Notification struct {
	ID        int64     `json:"id"`
	ServiceID uuid.UUID `json:"service_id"`
	Timestamp time.Time `json:"timestamp"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	URL       string    `json:"url"`
}

// UserNotification is a notification together with the user's read state.
type UserNotification struct {
	Notification
	IsRead bool `json:"is_read"`
}

// Service is a named notification category a user can subscribe to.
type Service struct {
	ID       uuid.UUID `json:"id"`
	Category string    `json:"category"`
	Color    string    `json:"color"`
	Owner    string    `json:"owner"`
}

// UserService is a service annotated with the user's subscription state.
type UserService struct {
	Service
	IsSubscribed bool `json:"is_subscribed"`
}
