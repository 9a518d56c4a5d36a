package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

type AuditFilter struct {
	AdminID *uuid.UUID
	Action  string
	Limit   int
	Offset  int
}

type AuditRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	List(ctx context.Context, filter AuditFilter) ([]entity.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	return database.Conn(ctx, r.db).Create(log).Error
}

func (r *auditRepository) List(ctx context.Context, filter AuditFilter) ([]entity.AuditLog, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.AuditLog{})
	if filter.AdminID != nil {
		query = query.Where("admin_id = ?", *filter.AdminID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []entity.AuditLog
	err := query.Order("created_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&logs).Error
	return logs, total, err
}
