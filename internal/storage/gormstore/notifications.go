package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tinywideclouds/go-notification-relay/internal/model"
	"github.com/tinywideclouds/go-notification-relay/pkg/dispatch"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// historyLimit caps the per-user notification history returned to clients.
const historyLimit = 50

// NotificationCreate is the content of a new notification.
type NotificationCreate struct {
	Title    string
	Subtitle string
	URL      string
}

// CreateNotification persists the notification and, in the same transaction,
// links it to every current subscriber of the service. The fan-out pipeline
// later reads exactly this fixed recipient set and never discovers
// subscribers on its own.
func (s *Store) CreateNotification(ctx context.Context, serviceID uuid.UUID, in NotificationCreate) (*notify.Notification, error) {
	n := model.Notification{
		Timestamp: time.Now().UTC(),
		Title:     in.Title,
		Subtitle:  in.Subtitle,
		URL:       in.URL,
		ServiceID: serviceID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var service model.Service
		if err := tx.Where("id = ?", serviceID).First(&service).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("service %s: %w", serviceID, notify.ErrNotFound)
			}
			return err
		}

		if err := tx.Create(&n).Error; err != nil {
			return fmt.Errorf("failed to create notification: %w", err)
		}

		var subscriberIDs []uint
		err := tx.Table("users_services").
			Where("service_id = ?", serviceID).
			Pluck("user_id", &subscriberIDs).Error
		if err != nil {
			return err
		}

		if len(subscriberIDs) == 0 {
			return nil
		}
		links := make([]model.UserNotification, 0, len(subscriberIDs))
		for _, userID := range subscriberIDs {
			links = append(links, model.UserNotification{UserID: userID, NotificationID: n.ID})
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return nil, err
	}

	return toDomain(n), nil
}

// Notification loads one notification; notify.ErrNotFound when it has been
// deleted (e.g. by retention cleanup).
func (s *Store) Notification(ctx context.Context, id int64) (*notify.Notification, error) {
	var n model.Notification
	err := s.db.WithContext(ctx).First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("notification %d: %w", id, notify.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return toDomain(n), nil
}

// ServiceNotifications returns the service's notifications sorted by
// creation time.
func (s *Store) ServiceNotifications(ctx context.Context, serviceID uuid.UUID) ([]notify.Notification, error) {
	var rows []model.Notification
	err := s.db.WithContext(ctx).
		Where("service_id = ?", serviceID).
		Order("timestamp").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make([]notify.Notification, 0, len(rows))
	for _, n := range rows {
		result = append(result, *toDomain(n))
	}
	return result, nil
}

// Recipients returns the entitled recipients of the notification: every user
// that was linked to it at creation time, with the fields the eligibility
// policy needs.
func (s *Store) Recipients(ctx context.Context, notificationID int64) ([]dispatch.Recipient, error) {
	var recipients []dispatch.Recipient
	err := s.db.WithContext(ctx).
		Model(&model.User{}).
		Select("users.id AS user_id, users.username, users.is_active, users.login_token_expires_at AS login_expires_at").
		Joins("JOIN user_notifications ON user_notifications.user_id = users.id").
		Where("user_notifications.notification_id = ?", notificationID).
		Scan(&recipients).Error
	return recipients, err
}

// UnreadCount counts the user's unread notifications at call time.
func (s *Store) UnreadCount(ctx context.Context, userID uint) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.UserNotification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return int(count), err
}

// UserNotifications returns the user's most recent notifications (up to 50)
// sorted by timestamp, oldest first, each with its read state.
func (s *Store) UserNotifications(ctx context.Context, userID uint) ([]notify.UserNotification, error) {
	type row struct {
		ID        int64
		ServiceID uuid.UUID
		Timestamp time.Time
		Title     string
		Subtitle  string
		URL       string
		IsRead    bool
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&model.Notification{}).
		Select("notifications.id, notifications.service_id, notifications.timestamp, notifications.title, notifications.subtitle, notifications.url, user_notifications.is_read").
		Joins("JOIN user_notifications ON user_notifications.notification_id = notifications.id").
		Where("user_notifications.user_id = ?", userID).
		Order("notifications.timestamp DESC, notifications.id DESC").
		Limit(historyLimit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]notify.UserNotification, len(rows))
	for i, r := range rows {
		// Reverse into ascending timestamp order.
		result[len(rows)-1-i] = notify.UserNotification{
			Notification: notify.Notification{
				ID:        r.ID,
				ServiceID: r.ServiceID,
				Timestamp: r.Timestamp,
				Title:     r.Title,
				Subtitle:  r.Subtitle,
				URL:       r.URL,
			},
			IsRead: r.IsRead,
		}
	}
	return result, nil
}

// NotificationStatus is a requested change to one history entry.
type NotificationStatus string

const (
	StatusRead    NotificationStatus = "read"
	StatusUnread  NotificationStatus = "unread"
	StatusDeleted NotificationStatus = "deleted"
)

// NotificationStatusUpdate targets one of the user's notification links.
type NotificationStatusUpdate struct {
	NotificationID int64
	Status         NotificationStatus
}

// UpdateUserNotifications applies read/unread/delete changes to the user's
// notification links. Unknown notification ids are skipped.
func (s *Store) UpdateUserNotifications(ctx context.Context, userID uint, updates []NotificationStatusUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, upd := range updates {
			q := tx.Where("user_id = ? AND notification_id = ?", userID, upd.NotificationID)
			switch upd.Status {
			case StatusRead:
				if err := q.Model(&model.UserNotification{}).Update("is_read", true).Error; err != nil {
					return err
				}
			case StatusUnread:
				if err := q.Model(&model.UserNotification{}).Update("is_read", false).Error; err != nil {
					return err
				}
			case StatusDeleted:
				if err := q.Delete(&model.UserNotification{}).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DeleteNotificationsBefore removes notifications older than the cutoff along
// with their per-user links. Used by the retention cleanup command.
func (s *Store) DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(
			"DELETE FROM user_notifications WHERE notification_id IN (SELECT id FROM notifications WHERE timestamp < ?)",
			cutoff,
		).Error
		if err != nil {
			return err
		}
		res := tx.Where("timestamp < ?", cutoff).Delete(&model.Notification{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

func toDomain(n model.Notification) *notify.Notification {
	return &notify.Notification{
		ID:        n.ID,
		ServiceID: n.ServiceID,
		Timestamp: n.Timestamp,
		Title:     n.Title,
		Subtitle:  n.Subtitle,
		URL:       n.URL,
	}
}
