// Package apns provides the client for the Apple Push Notification service.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

// APNSClient defines the subset of the apns2.Client methods we use.
// This allows mocking for unit tests.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Config holds the credentials required to sign APNs provider tokens.
type Config struct {
	KeyID  string
	TeamID string
	// BundleID is the app bundle identifier, sent as the apns-topic header.
	BundleID string
	// P8KeyContent is the raw string content of the .p8 signing key.
	P8KeyContent string
	// Host overrides the push host (e.g. api.development.push.apple.com).
	// Empty selects the production host.
	Host string
}

type Dispatcher struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// NewDispatcher creates a configured APNs dispatcher.
//
// It parses the P8 key immediately to fail fast on startup if credentials are
// bad. The resulting client signs one ES256 provider token and reuses it as
// the bearer credential across every push until it ages out, so a fan-out
// burst does not pay the signing cost per device.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	tokenSource := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	}

	client := apns2.NewTokenClient(tokenSource)
	if cfg.Host != "" {
		client.Host = "https://" + cfg.Host
	} else {
		client.Host = apns2.HostProduction
	}

	return &Dispatcher{
		client: client,
		topic:  cfg.BundleID,
		logger: logger.With("component", "APNSDispatcher"),
	}, nil
}

// Send pushes one notification to one APNs device token.
//
// The request is sent with apns-expiration=0 (deliver now or drop, no
// provider-side queuing) and apns-priority=10 (immediate). A 410 Gone
// response marks the token permanently invalid; every other rejection or
// transport failure is transient and leaves the token alone.
func (d *Dispatcher) Send(ctx context.Context, deviceToken string, msg dispatch.PushMessage) (dispatch.Result, error) {
	builder := payload.NewPayload().
		AlertTitle(msg.Title).
		AlertSubtitle(msg.Subtitle).
		Badge(msg.Badge).
		Sound("default")
	if msg.URL != "" {
		builder.Custom("url", msg.URL)
	}

	n := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       d.topic,
		Payload:     builder,
		Expiration:  time.Unix(0, 0),
		Priority:    apns2.PriorityHigh,
	}

	res, err := d.client.PushWithContext(ctx, n)
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("apns transport failed: %w", err)
	}

	if res.Sent() {
		return dispatch.Result{Delivered: true}, nil
	}

	if res.StatusCode == http.StatusGone {
		// Token is dead (app uninstalled or token rotated).
		return dispatch.Result{TokenInvalid: true}, nil
	}

	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return dispatch.Result{TokenInvalid: true}, nil
	}

	// Other rejections (TopicDisallowed, TooManyRequests, 5xx) can mean our
	// configuration is wrong or the provider is unhappy; the token may be fine.
	d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
	return dispatch.Result{}, nil
}
