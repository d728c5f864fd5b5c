package fcm_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-relay/internal/platform/fcm"
	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

// MockClient satisfies the MessagingClient interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Send(ctx context.Context, msg *messaging.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFCMSend_Lifecycle(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	msg := dispatch.PushMessage{Title: "My Alert", Subtitle: "This is a test", URL: "https://x"}

	t.Run("Happy Path - Success", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("Send", ctx, mock.MatchedBy(func(m *messaging.Message) bool {
			return m.Token == "token-4" &&
				m.Data["title"] == "My Alert" &&
				m.Data["body"] == "This is a test" &&
				m.Data["url"] == "https://x"
		})).Return("projects/p/messages/1", nil)

		res, err := dispatcher.Send(ctx, "token-4", msg)

		require.NoError(t, err)
		assert.True(t, res.Delivered)
		assert.False(t, res.TokenInvalid)
		mockClient.AssertExpectations(t)
	})

	t.Run("Transport Failure (Retryable)", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("Send", ctx, mock.Anything).Return("", errors.New("network down"))

		res, err := dispatcher.Send(ctx, "token-4", msg)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
		assert.False(t, res.Delivered)
		assert.False(t, res.TokenInvalid)
	})

	// Note: We rely on the integration environment to verify the specific
	// parsing of IsRegistrationTokenNotRegistered / IsInvalidArgument errors,
	// as constructing the internal error types of the Firebase SDK in a unit
	// test is brittle.
}
