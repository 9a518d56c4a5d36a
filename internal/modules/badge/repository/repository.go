package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

type BadgeFilter struct {
	Type   entity.BadgeType
	Rarity entity.BadgeRarity
	Limit  int
	Offset int
}

type BadgeRepository interface {
	Create(ctx context.Context, badge *entity.Badge) error
	Save(ctx context.Context, badge *entity.Badge) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Badge, error)
	FindBySlug(ctx context.Context, slug string) (*entity.Badge, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter BadgeFilter) ([]entity.Badge, int64, error)
	Count(ctx context.Context) (int64, error)

	Award(ctx context.Context, award *entity.UserBadge) error
	HasBadge(ctx context.Context, userID, badgeID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.UserBadge, error)
	CountAwards(ctx context.Context) (int64, error)
}

type badgeRepository struct {
	db *gorm.DB
}

func NewBadgeRepository(db *gorm.DB) BadgeRepository {
	return &badgeRepository{db: db}
}

func (r *badgeRepository) Create(ctx context.Context, badge *entity.Badge) error {
	return database.Conn(ctx, r.db).Create(badge).Error
}

func (r *badgeRepository) Save(ctx context.Context, badge *entity.Badge) error {
	return database.Conn(ctx, r.db).Save(badge).Error
}

func (r *badgeRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Badge, error) {
	var badge entity.Badge
	if err := database.Conn(ctx, r.db).First(&badge, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

func (r *badgeRepository) FindBySlug(ctx context.Context, slug string) (*entity.Badge, error) {
	var badge entity.Badge
	if err := database.Conn(ctx, r.db).Where("slug = ?", slug).First(&badge).Error; err != nil {
		return nil, err
	}
	return &badge, nil
}

func (r *badgeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := database.Conn(ctx, r.db).Delete(&entity.Badge{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *badgeRepository) List(ctx context.Context, filter BadgeFilter) ([]entity.Badge, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.Badge{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Rarity != "" {
		query = query.Where("rarity = ?", filter.Rarity)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var badges []entity.Badge
	err := query.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&badges).Error
	return badges, total, err
}

func (r *badgeRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.Badge{}).Count(&count).Error
	return count, err
}

func (r *badgeRepository) Award(ctx context.Context, award *entity.UserBadge) error {
	return database.Conn(ctx, r.db).Omit("Badge", "User").Create(award).Error
}

func (r *badgeRepository) HasBadge(ctx context.Context, userID, badgeID uuid.UUID) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	return count > 0, err
}

func (r *badgeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.UserBadge, error) {
	var awards []entity.UserBadge
	err := database.Conn(ctx, r.db).Preload("Badge").
		Where("user_id = ?", userID).
		Order("awarded_at DESC").
		Find(&awards).Error
	return awards, err
}

func (r *badgeRepository) CountAwards(ctx context.Context) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.UserBadge{}).Count(&count).Error
	return count, err
}
