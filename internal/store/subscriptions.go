package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"booking-engine/internal/model"
)

// SavePushSubscription creates or replaces a subscription keyed by its endpoint.
func (s *gormStore) SavePushSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save push subscription: %w", err)
	}
	return nil
}

func (s *gormStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete push subscription %s: %w", endpoint, err)
	}
	return nil
}

func (s *gormStore) PushSubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch push subscriptions for user %s: %w", userID, err)
	}
	return subs, nil
}

func (s *gormStore) SaveTelegramChat(ctx context.Context, chat *model.TelegramChat) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_id", "updated_at"}),
	}).Create(chat).Error
	if err != nil {
		return fmt.Errorf("failed to save telegram chat for user %s: %w", chat.UserID, err)
	}
	return nil
}

func (s *gormStore) TelegramChatForUser(ctx context.Context, userID string) (*model.TelegramChat, error) {
	var chat model.TelegramChat
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&chat).Error; err != nil {
		return nil, notFound(err, "telegram chat for user %s", userID)
	}
	return &chat, nil
}
