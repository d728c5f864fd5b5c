// Package gormstore implements the relay's persistence on a relational
// database through GORM. It is the source of truth behind the token cache
// and the read side of the fan-out pipeline.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tinywideclouds/go-notification-relay/internal/model"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema. Intended for development and tests;
// production deployments run migrations out of band.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(model.All()...)
}

// --- Users ---

// Users returns all users sorted by username.
func (s *Store) Users(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := s.db.WithContext(ctx).Order("username").Find(&users).Error
	return users, err
}

func (s *Store) User(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, notify.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %q: %w", username, notify.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, username string, isAdmin bool) (*model.User, error) {
	user := model.User{Username: username, IsActive: true, IsAdmin: isAdmin}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %q: %w", username, err)
	}
	return &user, nil
}

// UserUpdate carries the mutable user fields; nil leaves a field unchanged.
type UserUpdate struct {
	IsActive *bool
	IsAdmin  *bool
}

func (s *Store) UpdateUser(ctx context.Context, id uint, upd UserUpdate) (*model.User, error) {
	user, err := s.User(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if upd.IsActive != nil {
		changes["is_active"] = *upd.IsActive
	}
	if upd.IsAdmin != nil {
		changes["is_admin"] = *upd.IsAdmin
	}
	if len(changes) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(changes).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notify.ErrNotFound
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.DeviceToken{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&model.UserNotification{}).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM users_services WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.User{}, id).Error
	})
}

// SetLoginExpiry records when the user's current access token expires; the
// fresh-login eligibility policy reads it back during fan-out.
func (s *Store) SetLoginExpiry(ctx context.Context, userID uint, expiry time.Time) error {
	return s.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Update("login_token_expires_at", expiry).Error
}

// --- Device tokens ---

// DeviceTokens returns the user's tokens in registration order.
func (s *Store) DeviceTokens(ctx context.Context, userID uint) ([]string, error) {
	var tokens []string
	err := s.db.WithContext(ctx).
		Model(&model.DeviceToken{}).
		Where("user_id = ?", userID).
		Order("id").
		Pluck("token", &tokens).Error
	return tokens, err
}

// AddDeviceToken registers a token for the user. Registering a token the
// user already has is a no-op; the bool reports whether a row was created.
func (s *Store) AddDeviceToken(ctx context.Context, userID uint, token string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.DeviceToken{}).
		Where("user_id = ? AND token = ?", userID, token).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	err = s.db.WithContext(ctx).Create(&model.DeviceToken{UserID: userID, Token: token}).Error
	if err != nil {
		return false, fmt.Errorf("failed to add device token: %w", err)
	}
	return true, nil
}

// RemoveDeviceToken removes a token. Removing an absent token is a no-op.
func (s *Store) RemoveDeviceToken(ctx context.Context, userID uint, token string) error {
	return s.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", userID, token).
		Delete(&model.DeviceToken{}).Error
}
