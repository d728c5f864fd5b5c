// Package dispatch defines the contracts between the fan-out pipeline and
// the platform clients and stores it depends on.
package dispatch

import (
	"context"
	"time"

	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// PushMessage is the platform-neutral content of one push send. Badge is the
// recipient's unread count at dispatch time and is only rendered on iOS.
type PushMessage struct {
	Title    string
	Subtitle string
	URL      string
	Badge    int
}

// Result reports the outcome of a single send.
//
// TokenInvalid is set only when the provider unambiguously signalled that the
// device token is permanently dead (app uninstalled, token rotated) and it
// should be removed from the user's device set. A transient failure is
// reported as a transport error instead, with the token retained.
type Result struct {
	Delivered    bool
	TokenInvalid bool
}

// Dispatcher sends one notification to one platform-specific device token.
type Dispatcher interface {
	Send(ctx context.Context, deviceToken string, msg PushMessage) (Result, error)
}

// TokenStore manages a user's device tokens: an ordered, duplicate-free list.
type TokenStore interface {
	// DeviceTokens returns the user's tokens in registration order.
	DeviceTokens(ctx context.Context, userID uint) ([]string, error)

	// AddDeviceToken registers a token. Adding a token the user already has
	// is a no-op; the bool reports whether the token was actually added.
	AddDeviceToken(ctx context.Context, userID uint, token string) (bool, error)

	// RemoveDeviceToken removes a token. Removing an absent token is a no-op.
	RemoveDeviceToken(ctx context.Context, userID uint, token string) error
}

// Recipient is one entitled recipient of a notification, as linked at
// notification-creation time.
type Recipient struct {
	UserID         uint
	Username       string
	IsActive       bool
	LoginExpiresAt *time.Time
}

// RecipientStore is the read side of the fan-out: the notification itself,
// its fixed recipient set, and per-user unread counts.
type RecipientStore interface {
	// Notification returns notify.ErrNotFound when the notification has been
	// deleted (e.g. by retention cleanup) before the fan-out ran.
	Notification(ctx context.Context, id int64) (*notify.Notification, error)

	Recipients(ctx context.Context, notificationID int64) ([]Recipient, error)

	// UnreadCount is evaluated live at call time, never cached.
	UnreadCount(ctx context.Context, userID uint) (int, error)
}

// EligibilityPolicy decides whether a recipient should receive pushes.
// It is injectable so deployments can gate on activity alone or also on the
// freshness of the user's login token.
type EligibilityPolicy func(Recipient) bool

// ActiveOnly admits every active user.
func ActiveOnly(r Recipient) bool {
	return r.IsActive
}

// ActiveWithFreshLogin admits active users whose login token has not expired.
// Users that never logged in through the API (no expiry recorded) are skipped.
func ActiveWithFreshLogin(now func() time.Time) EligibilityPolicy {
	return func(r Recipient) bool {
		if !r.IsActive || r.LoginExpiresAt == nil {
			return false
		}
		return r.LoginExpiresAt.After(now())
	}
}
