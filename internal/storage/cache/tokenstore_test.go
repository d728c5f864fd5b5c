package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTokenStore is a hand-written mock for dispatch.TokenStore.
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) DeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTokenStore) AddDeviceToken(ctx context.Context, userID uint, token string) (bool, error) {
	args := m.Called(ctx, userID, token)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenStore) RemoveDeviceToken(ctx context.Context, userID uint, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func TestCachedTokenStore_ReadAside(t *testing.T) {
	ctx := context.Background()
	tokens := []string{"tok-1", "tok-2"}

	t.Run("miss populates cache, second read is served from cache", func(t *testing.T) {
		real := new(MockTokenStore)
		real.On("DeviceTokens", mock.Anything, uint(7)).Return(tokens, nil).Once()

		store := NewCachedTokenStore(real, NewMemoryClient(time.Minute), time.Minute)

		got, err := store.DeviceTokens(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, tokens, got)

		// The real store must not be hit again.
		got, err = store.DeviceTokens(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, tokens, got)

		real.AssertExpectations(t)
	})

	t.Run("remove invalidates so next read refetches", func(t *testing.T) {
		real := new(MockTokenStore)
		real.On("DeviceTokens", mock.Anything, uint(7)).Return(tokens, nil).Once()
		real.On("RemoveDeviceToken", mock.Anything, uint(7), "tok-1").Return(nil).Once()
		real.On("DeviceTokens", mock.Anything, uint(7)).Return([]string{"tok-2"}, nil).Once()

		store := NewCachedTokenStore(real, NewMemoryClient(time.Minute), time.Minute)

		_, err := store.DeviceTokens(ctx, 7)
		require.NoError(t, err)

		require.NoError(t, store.RemoveDeviceToken(ctx, 7, "tok-1"))

		got, err := store.DeviceTokens(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, []string{"tok-2"}, got)

		real.AssertExpectations(t)
	})

	t.Run("add invalidates", func(t *testing.T) {
		real := new(MockTokenStore)
		real.On("DeviceTokens", mock.Anything, uint(7)).Return(tokens, nil).Once()
		real.On("AddDeviceToken", mock.Anything, uint(7), "tok-3").Return(true, nil).Once()
		real.On("DeviceTokens", mock.Anything, uint(7)).Return([]string{"tok-1", "tok-2", "tok-3"}, nil).Once()

		store := NewCachedTokenStore(real, NewMemoryClient(time.Minute), time.Minute)

		_, err := store.DeviceTokens(ctx, 7)
		require.NoError(t, err)

		added, err := store.AddDeviceToken(ctx, 7, "tok-3")
		require.NoError(t, err)
		assert.True(t, added)

		got, err := store.DeviceTokens(ctx, 7)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		real.AssertExpectations(t)
	})

	t.Run("real store failure is propagated", func(t *testing.T) {
		real := new(MockTokenStore)
		real.On("DeviceTokens", mock.Anything, uint(9)).Return(nil, assert.AnError).Once()

		store := NewCachedTokenStore(real, NewMemoryClient(time.Minute), time.Minute)

		_, err := store.DeviceTokens(ctx, 9)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestMemoryClient_Expiry(t *testing.T) {
	client := NewMemoryClient(time.Minute)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "k", []string{"v"}, 10*time.Millisecond))

	var got []string
	require.NoError(t, client.Get(ctx, "k", &got))
	assert.Equal(t, []string{"v"}, got)

	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, client.Get(ctx, "k", &got), ErrMiss)
}
