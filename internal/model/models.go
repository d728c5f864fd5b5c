// Package model defines the persistent entities of the notification relay.
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account known to the relay, created on first login.
type User struct {
	ID                  uint       `gorm:"primaryKey"`
	Username            string     `gorm:"uniqueIndex;not null"`
	IsActive            bool       `gorm:"not null;default:true"`
	IsAdmin             bool       `gorm:"not null;default:false"`
	LoginTokenExpiresAt *time.Time

	// DeviceTokens is an ordered, duplicate-free list; the unique index on
	// (user_id, token) is the invariant's backstop.
	DeviceTokens []DeviceToken `gorm:"constraint:OnDelete:CASCADE"`
	Services     []*Service    `gorm:"many2many:users_services"`
}

// DeviceToken is one registered push-delivery address for a user.
// Registration order is preserved through the auto-increment key.
type DeviceToken struct {
	ID     uint   `gorm:"primaryKey"`
	UserID uint   `gorm:"uniqueIndex:idx_user_token;not null"`
	Token  string `gorm:"uniqueIndex:idx_user_token;not null"`
}

// Service is a notification category users subscribe to.
type Service struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Category string    `gorm:"index;not null"`
	Color    string
	Owner    string

	Notifications []Notification `gorm:"constraint:OnDelete:CASCADE"`
	Subscribers   []*User        `gorm:"many2many:users_services"`
}

// BeforeCreate assigns a random id when none was set.
func (s *Service) BeforeCreate(_ *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Notification is immutable once created; only retention cleanup deletes it.
type Notification struct {
	ID        int64     `gorm:"primaryKey"`
	Timestamp time.Time `gorm:"index;not null"`
	Title     string    `gorm:"not null"`
	Subtitle  string
	URL       string
	ServiceID uuid.UUID `gorm:"type:uuid;not null"`
}

// UserNotification links a user to a notification with a per-user read flag.
// Exactly one row exists per (user, notification) pair the user is entitled
// to see, created transactionally at notification-creation time.
type UserNotification struct {
	UserID         uint  `gorm:"primaryKey"`
	NotificationID int64 `gorm:"primaryKey"`
	IsRead         bool  `gorm:"not null;default:false"`
}

// All returns every entity for migration.
func All() []any {
	return []any{&User{}, &DeviceToken{}, &Service{}, &Notification{}, &UserNotification{}}
}
