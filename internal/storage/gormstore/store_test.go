package gormstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// newTestStore opens a private in-memory database per test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	store := New(db)
	require.NoError(t, store.Migrate())
	return store
}

func TestDeviceTokens_OrderedAndDeduplicated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice", false)
	require.NoError(t, err)

	added, err := store.AddDeviceToken(ctx, user.ID, "token-b")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.AddDeviceToken(ctx, user.ID, "token-a")
	require.NoError(t, err)
	assert.True(t, added)

	// Duplicate registration is a no-op.
	added, err = store.AddDeviceToken(ctx, user.ID, "token-b")
	require.NoError(t, err)
	assert.False(t, added)

	tokens, err := store.DeviceTokens(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"token-b", "token-a"}, tokens)
}

func TestRemoveDeviceToken_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice", false)
	require.NoError(t, err)
	_, err = store.AddDeviceToken(ctx, user.ID, "token-a")
	require.NoError(t, err)
	_, err = store.AddDeviceToken(ctx, user.ID, "token-b")
	require.NoError(t, err)

	require.NoError(t, store.RemoveDeviceToken(ctx, user.ID, "token-a"))
	afterFirst, err := store.DeviceTokens(ctx, user.ID)
	require.NoError(t, err)

	// Removing the same token again leaves the set identical.
	require.NoError(t, store.RemoveDeviceToken(ctx, user.ID, "token-a"))
	afterSecond, err := store.DeviceTokens(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, afterFirst, afterSecond)
	assert.Equal(t, []string{"token-b"}, afterSecond)
}

func TestCreateNotification_LinksCurrentSubscribers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "alice", false)
	require.NoError(t, err)
	bob, err := store.CreateUser(ctx, "bob", false)
	require.NoError(t, err)
	carol, err := store.CreateUser(ctx, "carol", false)
	require.NoError(t, err)

	svc, err := store.CreateService(ctx, "cryo", "039be5", "ops")
	require.NoError(t, err)

	for _, id := range []uint{alice.ID, bob.ID} {
		err = store.UpdateUserSubscriptions(ctx, id, []SubscriptionUpdate{{ServiceID: svc.ID, IsSubscribed: true}})
		require.NoError(t, err)
	}

	n, err := store.CreateNotification(ctx, svc.ID, NotificationCreate{
		Title:    "My Alert",
		Subtitle: "This is a test",
		URL:      "https://x",
	})
	require.NoError(t, err)
	assert.NotZero(t, n.ID)

	recipients, err := store.Recipients(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 2)

	names := []string{recipients[0].Username, recipients[1].Username}
	assert.ElementsMatch(t, []string{"alice", "bob"}, names)

	// Carol never subscribed and is not a recipient.
	unread, err := store.UnreadCount(ctx, carol.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	unread, err = store.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestCreateNotification_UnknownService(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateNotification(context.Background(), uuid.New(), NotificationCreate{Title: "x"})
	assert.ErrorIs(t, err, notify.ErrNotFound)
}

func TestNotification_NotFoundAfterRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	svc, err := store.CreateService(ctx, "cryo", "", "")
	require.NoError(t, err)
	n, err := store.CreateNotification(ctx, svc.ID, NotificationCreate{Title: "old"})
	require.NoError(t, err)

	deleted, err := store.DeleteNotificationsBefore(ctx, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = store.Notification(ctx, n.ID)
	assert.ErrorIs(t, err, notify.ErrNotFound)
}

func TestUserNotifications_ReadStateLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "alice", false)
	require.NoError(t, err)
	svc, err := store.CreateService(ctx, "cryo", "", "")
	require.NoError(t, err)
	err = store.UpdateUserSubscriptions(ctx, alice.ID, []SubscriptionUpdate{{ServiceID: svc.ID, IsSubscribed: true}})
	require.NoError(t, err)

	first, err := store.CreateNotification(ctx, svc.ID, NotificationCreate{Title: "first"})
	require.NoError(t, err)
	second, err := store.CreateNotification(ctx, svc.ID, NotificationCreate{Title: "second"})
	require.NoError(t, err)

	unread, err := store.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	err = store.UpdateUserNotifications(ctx, alice.ID, []NotificationStatusUpdate{
		{NotificationID: first.ID, Status: StatusRead},
	})
	require.NoError(t, err)

	unread, err = store.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	history, err := store.UserNotifications(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "first", history[0].Title)
	assert.True(t, history[0].IsRead)
	assert.Equal(t, "second", history[1].Title)
	assert.False(t, history[1].IsRead)

	err = store.UpdateUserNotifications(ctx, alice.ID, []NotificationStatusUpdate{
		{NotificationID: second.ID, Status: StatusDeleted},
	})
	require.NoError(t, err)

	history, err = store.UserNotifications(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Title)
}

func TestUserServices_SubscriptionToggles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "alice", false)
	require.NoError(t, err)
	cryo, err := store.CreateService(ctx, "cryo", "", "")
	require.NoError(t, err)
	vacuum, err := store.CreateService(ctx, "vacuum", "", "")
	require.NoError(t, err)

	err = store.UpdateUserSubscriptions(ctx, alice.ID, []SubscriptionUpdate{
		{ServiceID: cryo.ID, IsSubscribed: true},
		{ServiceID: uuid.New(), IsSubscribed: true}, // unknown service skipped
	})
	require.NoError(t, err)

	services, err := store.UserServices(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, services, 2)
	assert.Equal(t, "cryo", services[0].Category)
	assert.True(t, services[0].IsSubscribed)
	assert.Equal(t, vacuum.ID, services[1].ID)
	assert.Equal(t, "vacuum", services[1].Category)
	assert.False(t, services[1].IsSubscribed)

	// Double-subscribe is a no-op, unsubscribe removes the link.
	err = store.UpdateUserSubscriptions(ctx, alice.ID, []SubscriptionUpdate{{ServiceID: cryo.ID, IsSubscribed: true}})
	require.NoError(t, err)
	err = store.UpdateUserSubscriptions(ctx, alice.ID, []SubscriptionUpdate{{ServiceID: cryo.ID, IsSubscribed: false}})
	require.NoError(t, err)

	ids, err := store.SubscriberIDs(ctx, cryo.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// New notifications only reach current subscribers.
	_, err = store.CreateNotification(ctx, cryo.ID, NotificationCreate{Title: "late"})
	require.NoError(t, err)
	unread, err := store.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestUpdateUser_PartialPatch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.CreateUser(ctx, "alice", false)
	require.NoError(t, err)

	inactive := false
	updated, err := store.UpdateUser(ctx, alice.ID, UserUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.False(t, updated.IsAdmin)

	reloaded, err := store.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)
}
