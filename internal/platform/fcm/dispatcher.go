// Package fcm provides the client for Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

// NewDispatcher accepts the concrete client but stores it as the interface.
// The SDK exchanges the service-account credential for an OAuth2 access token
// and caches it until expiry, so the bearer token is reused across sends.
func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Send pushes one notification to one FCM registration token.
//
// The payload is a data message carrying title, body and url; the Android app
// renders the notification itself and fetches the full content from the API.
// NotRegistered and InvalidArgument responses mark the token permanently
// invalid; every other failure is transient.
func (d *Dispatcher) Send(ctx context.Context, deviceToken string, msg dispatch.PushMessage) (dispatch.Result, error) {
	m := &messaging.Message{
		Token: deviceToken,
		Data: map[string]string{
			"title": msg.Title,
			"body":  msg.Subtitle,
			"url":   msg.URL,
		},
	}

	_, err := d.client.Send(ctx, m)
	if err != nil {
		if messaging.IsRegistrationTokenNotRegistered(err) || messaging.IsInvalidArgument(err) {
			return dispatch.Result{TokenInvalid: true}, nil
		}
		return dispatch.Result{}, fmt.Errorf("fcm transport failed: %w", err)
	}

	return dispatch.Result{Delivered: true}, nil
}
