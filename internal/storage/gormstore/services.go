package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tinywideclouds/go-notification-relay/internal/model"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

// Services returns all services sorted by category.
func (s *Store) Services(ctx context.Context) ([]model.Service, error) {
	var services []model.Service
	err := s.db.WithContext(ctx).Order("category").Find(&services).Error
	return services, err
}

func (s *Store) Service(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	var service model.Service
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&service).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("service %s: %w", id, notify.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &service, nil
}

func (s *Store) CreateService(ctx context.Context, category, color, owner string) (*model.Service, error) {
	service := model.Service{Category: category, Color: color, Owner: owner}
	if err := s.db.WithContext(ctx).Create(&service).Error; err != nil {
		return nil, fmt.Errorf("failed to create service %q: %w", category, err)
	}
	return &service, nil
}

// ServiceUpdate carries the mutable service fields; nil leaves one unchanged.
type ServiceUpdate struct {
	Category *string
	Color    *string
	Owner    *string
}

func (s *Store) UpdateService(ctx context.Context, id uuid.UUID, upd ServiceUpdate) (*model.Service, error) {
	service, err := s.Service(ctx, id)
	if err != nil {
		return nil, err
	}
	changes := map[string]any{}
	if upd.Category != nil {
		changes["category"] = *upd.Category
	}
	if upd.Color != nil {
		changes["color"] = *upd.Color
	}
	if upd.Owner != nil {
		changes["owner"] = *upd.Owner
	}
	if len(changes) == 0 {
		return service, nil
	}
	if err := s.db.WithContext(ctx).Model(service).Updates(changes).Error; err != nil {
		return nil, err
	}
	return service, nil
}

// UserServices returns every service annotated with the user's subscription
// state, sorted by category.
func (s *Store) UserServices(ctx context.Context, userID uint) ([]notify.UserService, error) {
	services, err := s.Services(ctx)
	if err != nil {
		return nil, err
	}

	var subscribedIDs []uuid.UUID
	err = s.db.WithContext(ctx).
		Table("users_services").
		Where("user_id = ?", userID).
		Pluck("service_id", &subscribedIDs).Error
	if err != nil {
		return nil, err
	}
	subscribed := make(map[uuid.UUID]bool, len(subscribedIDs))
	for _, id := range subscribedIDs {
		subscribed[id] = true
	}

	result := make([]notify.UserService, 0, len(services))
	for _, svc := range services {
		result = append(result, notify.UserService{
			Service: notify.Service{
				ID:       svc.ID,
				Category: svc.Category,
				Color:    svc.Color,
				Owner:    svc.Owner,
			},
			IsSubscribed: subscribed[svc.ID],
		})
	}
	return result, nil
}

// SubscriptionUpdate toggles one service subscription for a user.
type SubscriptionUpdate struct {
	ServiceID    uuid.UUID
	IsSubscribed bool
}

// UpdateUserSubscriptions applies the requested subscription changes.
// Unknown service ids are skipped; subscribing twice is a no-op.
func (s *Store) UpdateUserSubscriptions(ctx context.Context, userID uint, updates []SubscriptionUpdate) error {
	services, err := s.Services(ctx)
	if err != nil {
		return err
	}
	known := make(map[uuid.UUID]bool, len(services))
	for _, svc := range services {
		known[svc.ID] = true
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, upd := range updates {
			if !known[upd.ServiceID] {
				continue
			}
			if upd.IsSubscribed {
				err := tx.Exec(
					"INSERT INTO users_services (user_id, service_id) SELECT ?, ? WHERE NOT EXISTS (SELECT 1 FROM users_services WHERE user_id = ? AND service_id = ?)",
					userID, upd.ServiceID, userID, upd.ServiceID,
				).Error
				if err != nil {
					return err
				}
			} else {
				err := tx.Exec(
					"DELETE FROM users_services WHERE user_id = ? AND service_id = ?",
					userID, upd.ServiceID,
				).Error
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SubscriberIDs returns the ids of the users currently subscribed to the
// service.
func (s *Store) SubscriberIDs(ctx context.Context, serviceID uuid.UUID) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).
		Table("users_services").
		Where("service_id = ?", serviceID).
		Pluck("user_id", &ids).Error
	return ids, err
}
