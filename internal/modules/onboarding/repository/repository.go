package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

type StepRepository interface {
	// Find returns nil without error when the user has no record for key.
	Find(ctx context.Context, userID uuid.UUID, key entity.StepKey) (*entity.OnboardingStep, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.OnboardingStep, error)
	// Upsert writes step keyed on (user, step key).
	Upsert(ctx context.Context, step *entity.OnboardingStep) error
	Delete(ctx context.Context, userID uuid.UUID, key entity.StepKey) error
	CountCompletedByStep(ctx context.Context) (map[entity.StepKey]int64, error)
}

type stepRepository struct {
	db *gorm.DB
}

func NewStepRepository(db *gorm.DB) StepRepository {
	return &stepRepository{db: db}
}

func (r *stepRepository) Find(ctx context.Context, userID uuid.UUID, key entity.StepKey) (*entity.OnboardingStep, error) {
	var step entity.OnboardingStep
	err := database.Conn(ctx, r.db).
		Where("user_id = ? AND step_key = ?", userID, key).
		First(&step).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *stepRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]entity.OnboardingStep, error) {
	var steps []entity.OnboardingStep
	err := database.Conn(ctx, r.db).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&steps).Error
	return steps, err
}

func (r *stepRepository) Upsert(ctx context.Context, step *entity.OnboardingStep) error {
	return database.Conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "step_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "started_at", "completed_at", "xp_awarded", "metadata", "updated_at",
		}),
	}).Create(step).Error
}

func (r *stepRepository) Delete(ctx context.Context, userID uuid.UUID, key entity.StepKey) error {
	res := database.Conn(ctx, r.db).
		Where("user_id = ? AND step_key = ?", userID, key).
		Delete(&entity.OnboardingStep{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *stepRepository) CountCompletedByStep(ctx context.Context) (map[entity.StepKey]int64, error) {
	var rows []struct {
		StepKey entity.StepKey
		Count   int64
	}
	err := database.Conn(ctx, r.db).Model(&entity.OnboardingStep{}).
		Select("step_key, COUNT(*) AS count").
		Where("status = ?", entity.StepCompleted).
		Group("step_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[entity.StepKey]int64, len(rows))
	for _, key := range entity.AllSteps() {
		counts[key] = 0
	}
	for _, row := range rows {
		counts[row.StepKey] = row.Count
	}
	return counts, nil
}
