package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	NotificationLevelUp         = "level_up"
	NotificationBadgeAwarded    = "badge_awarded"
	NotificationXPReceived      = "xp_received"
	NotificationApplicationDone = "application_reviewed"
)

type Notification struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_notifications_user,priority:1" json:"user_id"`
	User      *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Type      string         `gorm:"size:50;not null" json:"type"`
	Title     string         `gorm:"size:120" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	Data      datatypes.JSON `gorm:"type:jsonb" json:"data,omitempty"`
	IsRead    bool           `gorm:"not null;default:false;index:idx_notifications_user,priority:2" json:"is_read"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}
