package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

type ApplicationFilter struct {
	Status entity.ApplicationStatus
	Limit  int
	Offset int
}

type ApplicationRepository interface {
	Create(ctx context.Context, app *entity.ContributorApplication) error
	Save(ctx context.Context, app *entity.ContributorApplication) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.ContributorApplication, error)
	// FindByUser returns nil, nil when the user has not applied.
	FindByUser(ctx context.Context, userID uuid.UUID) (*entity.ContributorApplication, error)
	List(ctx context.Context, filter ApplicationFilter) ([]entity.ContributorApplication, int64, error)
	CountByStatus(ctx context.Context) (map[entity.ApplicationStatus]int64, error)
}

type applicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

func (r *applicationRepository) Create(ctx context.Context, app *entity.ContributorApplication) error {
	return database.Conn(ctx, r.db).Omit("User").Create(app).Error
}

func (r *applicationRepository) Save(ctx context.Context, app *entity.ContributorApplication) error {
	return database.Conn(ctx, r.db).Omit("User").Save(app).Error
}

func (r *applicationRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.ContributorApplication, error) {
	var app entity.ContributorApplication
	if err := database.Conn(ctx, r.db).First(&app, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *applicationRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*entity.ContributorApplication, error) {
	var apps []entity.ContributorApplication
	if err := database.Conn(ctx, r.db).Where("user_id = ?", userID).Limit(1).Find(&apps).Error; err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, nil
	}
	return &apps[0], nil
}

func (r *applicationRepository) List(ctx context.Context, filter ApplicationFilter) ([]entity.ContributorApplication, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.ContributorApplication{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var apps []entity.ContributorApplication
	err := query.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&apps).Error
	return apps, total, err
}

func (r *applicationRepository) CountByStatus(ctx context.Context) (map[entity.ApplicationStatus]int64, error) {
	var rows []struct {
		Status entity.ApplicationStatus
		Count  int64
	}
	err := database.Conn(ctx, r.db).Model(&entity.ContributorApplication{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entity.ApplicationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
