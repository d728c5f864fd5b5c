package apns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func TestSend_Internal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	msg := dispatch.PushMessage{Title: "My Alert", Subtitle: "This is a test", URL: "https://x", Badge: 2}

	t.Run("Happy Path - Success", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := &Dispatcher{
			client: mockClient,
			topic:  "com.test.app",
			logger: logger,
		}

		mockResponse := &apns2.Response{StatusCode: http.StatusOK}
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "token-1" &&
				n.Topic == "com.test.app" &&
				n.Priority == apns2.PriorityHigh &&
				n.Expiration.Unix() == 0
		})).Return(mockResponse, nil)

		res, err := dispatcher.Send(ctx, "token-1", msg)

		require.NoError(t, err)
		assert.True(t, res.Delivered)
		assert.False(t, res.TokenInvalid)
		mockClient.AssertExpectations(t)
	})

	t.Run("Permanent Invalid - 410 Gone", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := &Dispatcher{
			client: mockClient,
			topic:  "com.test.app",
			logger: logger,
		}

		mockResponse := &apns2.Response{
			StatusCode: http.StatusGone,
			Reason:     apns2.ReasonUnregistered,
		}
		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(mockResponse, nil)

		res, err := dispatcher.Send(ctx, "dead-token", msg)

		require.NoError(t, err)
		assert.False(t, res.Delivered)
		assert.True(t, res.TokenInvalid)
	})

	t.Run("Permanent Invalid - BadDeviceToken", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := &Dispatcher{
			client: mockClient,
			topic:  "com.test.app",
			logger: logger,
		}

		mockResponse := &apns2.Response{
			StatusCode: http.StatusBadRequest,
			Reason:     apns2.ReasonBadDeviceToken,
		}
		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(mockResponse, nil)

		res, err := dispatcher.Send(ctx, "bad-token", msg)

		require.NoError(t, err)
		assert.True(t, res.TokenInvalid)
	})

	t.Run("Transient - 5xx keeps token", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := &Dispatcher{
			client: mockClient,
			topic:  "com.test.app",
			logger: logger,
		}

		mockResponse := &apns2.Response{
			StatusCode: http.StatusInternalServerError,
			Reason:     apns2.ReasonInternalServerError,
		}
		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(mockResponse, nil)

		res, err := dispatcher.Send(ctx, "token-1", msg)

		require.NoError(t, err)
		assert.False(t, res.Delivered)
		assert.False(t, res.TokenInvalid)
	})

	t.Run("Transport Failure - Retryable", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		dispatcher := &Dispatcher{
			client: mockClient,
			topic:  "com.test.app",
			logger: logger,
		}

		mockClient.On("PushWithContext", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		res, err := dispatcher.Send(ctx, "token-1", msg)

		require.Error(t, err)
		assert.False(t, res.Delivered)
		assert.False(t, res.TokenInvalid)
	})
}

func TestNewDispatcher_BadKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewDispatcher(Config{
		KeyID:        "key",
		TeamID:       "team",
		BundleID:     "com.test.app",
		P8KeyContent: "not a pem key",
	}, logger)

	require.Error(t, err)
}
