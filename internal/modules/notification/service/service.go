package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	notifRepo "helios.network/testnetapi/internal/modules/notification/repository"
	"helios.network/testnetapi/pkg/dto"
)

// ChannelFor is the redis pub/sub channel carrying a user's notifications.
func ChannelFor(userID uuid.UUID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

type NotificationService interface {
	CreateNotification(ctx context.Context, notification *entity.Notification) error
	NotifyLevelUp(ctx context.Context, user *entity.User, previousLevel int)
	NotifyBadgeAwarded(ctx context.Context, userID uuid.UUID, badge *entity.Badge)
	NotifyXPReceived(ctx context.Context, userID uuid.UUID, from string, amount int)
	NotifyApplicationReviewed(ctx context.Context, userID uuid.UUID, status entity.ApplicationStatus)
	GetNotifications(ctx context.Context, userID uuid.UUID, page dto.PageQuery) (*dto.Paginated[entity.Notification], error)
	MarkAsRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	redisClient *redis.Client
}

func NewNotificationService(repo notifRepo.NotificationRepository, redisClient *redis.Client) NotificationService {
	return &notificationService{
		repo:        repo,
		redisClient: redisClient,
	}
}

func (s *notificationService) CreateNotification(ctx context.Context, notification *entity.Notification) error {
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}

	if s.redisClient != nil {
		payload, err := json.Marshal(notification)
		if err == nil {
			if err := s.redisClient.Publish(ctx, ChannelFor(notification.UserID), payload).Err(); err != nil {
				logger.WarnCtx(ctx, "failed to publish notification", zap.Error(err))
			}
		}
	}
	return nil
}

// notify is best effort; notification failures never fail the caller.
func (s *notificationService) notify(ctx context.Context, n *entity.Notification) {
	if err := s.CreateNotification(ctx, n); err != nil {
		logger.WarnCtx(ctx, "failed to store notification",
			zap.String("type", n.Type),
			zap.String("user_id", n.UserID.String()),
			zap.Error(err),
		)
	}
}

func (s *notificationService) NotifyLevelUp(ctx context.Context, user *entity.User, previousLevel int) {
	if user.Level <= previousLevel {
		return
	}
	s.notify(ctx, &entity.Notification{
		UserID:  user.ID,
		Type:    entity.NotificationLevelUp,
		Title:   "Level up!",
		Message: fmt.Sprintf("You reached level %d.", user.Level),
		Data:    jsonData(map[string]any{"previous_level": previousLevel, "level": user.Level, "xp": user.XP}),
	})
}

func (s *notificationService) NotifyBadgeAwarded(ctx context.Context, userID uuid.UUID, badge *entity.Badge) {
	s.notify(ctx, &entity.Notification{
		UserID:  userID,
		Type:    entity.NotificationBadgeAwarded,
		Title:   "New badge",
		Message: fmt.Sprintf("You earned the %s badge.", badge.Name),
		Data:    jsonData(map[string]any{"badge_id": badge.ID, "slug": badge.Slug, "rarity": badge.Rarity}),
	})
}

func (s *notificationService) NotifyXPReceived(ctx context.Context, userID uuid.UUID, from string, amount int) {
	s.notify(ctx, &entity.Notification{
		UserID:  userID,
		Type:    entity.NotificationXPReceived,
		Title:   "XP received",
		Message: fmt.Sprintf("%s sent you %d XP.", from, amount),
		Data:    jsonData(map[string]any{"from": from, "amount": amount}),
	})
}

func (s *notificationService) NotifyApplicationReviewed(ctx context.Context, userID uuid.UUID, status entity.ApplicationStatus) {
	s.notify(ctx, &entity.Notification{
		UserID:  userID,
		Type:    entity.NotificationApplicationDone,
		Title:   "Contributor application reviewed",
		Message: fmt.Sprintf("Your contributor application was %s.", status),
		Data:    jsonData(map[string]any{"status": status}),
	})
}

func (s *notificationService) GetNotifications(ctx context.Context, userID uuid.UUID, page dto.PageQuery) (*dto.Paginated[entity.Notification], error) {
	page = page.Normalize()
	items, total, err := s.repo.GetByUserID(ctx, userID, page.Limit, page.Offset())
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []entity.Notification{}
	}
	return &dto.Paginated[entity.Notification]{
		Data: items,
		Meta: dto.NewPaginationMeta(page, total),
	}, nil
}

func (s *notificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, userID, id)
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

func jsonData(v map[string]any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
