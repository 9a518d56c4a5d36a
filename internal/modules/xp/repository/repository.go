package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

type ActivityFilter struct {
	UserID   *uuid.UUID
	Type     entity.XPActivityType
	Since    *time.Time
	WithUser bool
	Limit    int
	Offset   int
}

// ActivityRepository is append-only: there is no update or delete.
type ActivityRepository interface {
	Create(ctx context.Context, activity *entity.XPActivity) error
	// LatestByType returns nil without error when the user has none.
	LatestByType(ctx context.Context, userID uuid.UUID, activityType entity.XPActivityType) (*entity.XPActivity, error)
	List(ctx context.Context, filter ActivityFilter) ([]entity.XPActivity, int64, error)
	Count(ctx context.Context) (int64, error)
	// SumByUserSince ranks users by the net xp they gained since the given
	// time. The second return value is the number of ranked users.
	SumByUserSince(ctx context.Context, since time.Time, limit, offset int) ([]XPTotal, int64, error)
	SumForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	// SumForUsersSince omits users with no activity in the window.
	SumForUsersSince(ctx context.Context, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int, error)
}

// XPTotal is one row of a windowed leaderboard.
type XPTotal struct {
	UserID uuid.UUID
	Total  int
}

type activityRepository struct {
	db *gorm.DB
}

func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *entity.XPActivity) error {
	return database.Conn(ctx, r.db).Create(activity).Error
}

func (r *activityRepository) LatestByType(ctx context.Context, userID uuid.UUID, activityType entity.XPActivityType) (*entity.XPActivity, error) {
	var activity entity.XPActivity
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND type = ?", userID, activityType).
		Order("created_at DESC").
		First(&activity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &activity, nil
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]entity.XPActivity, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.XPActivity{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.WithUser {
		query = query.Preload("User")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var activities []entity.XPActivity
	if err := query.Order("created_at DESC").Order("id DESC").Find(&activities).Error; err != nil {
		return nil, 0, err
	}
	return activities, total, nil
}

func (r *activityRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.XPActivity{}).Count(&count).Error
	return count, err
}

func (r *activityRepository) SumByUserSince(ctx context.Context, since time.Time, limit, offset int) ([]XPTotal, int64, error) {
	base := database.Conn(ctx, r.db).Model(&entity.XPActivity{}).Where("created_at >= ?", since)

	var total int64
	if err := base.Session(&gorm.Session{}).Distinct("user_id").Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []XPTotal
	query := base.Session(&gorm.Session{}).
		Select("user_id, SUM(amount) AS total").
		Group("user_id").
		Order("total DESC").
		Order("user_id ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *activityRepository) SumForUserSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var total int
	err := database.Conn(ctx, r.db).Model(&entity.XPActivity{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&total).Error
	return total, err
}

func (r *activityRepository) SumForUsersSince(ctx context.Context, userIDs []uuid.UUID, since time.Time) (map[uuid.UUID]int, error) {
	sums := make(map[uuid.UUID]int, len(userIDs))
	if len(userIDs) == 0 {
		return sums, nil
	}

	var rows []XPTotal
	err := database.Conn(ctx, r.db).Model(&entity.XPActivity{}).
		Select("user_id, SUM(amount) AS total").
		Where("user_id IN ? AND created_at >= ?", userIDs, since).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		sums[row.UserID] = row.Total
	}
	return sums, nil
}
