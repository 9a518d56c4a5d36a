package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	AdminID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"admin_id"`
	AdminWallet string         `gorm:"size:42;not null" json:"admin_wallet"`
	Action      string         `gorm:"size:50;not null;index" json:"action"`
	TargetType  string         `gorm:"size:30" json:"target_type"`
	TargetID    string         `gorm:"size:64" json:"target_id"`
	Details     datatypes.JSON `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID, err = uuid.NewV7()
	}
	return
}
