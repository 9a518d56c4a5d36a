package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BadgeRarity string

const (
	RarityCommon    BadgeRarity = "common"
	RarityRare      BadgeRarity = "rare"
	RarityEpic      BadgeRarity = "epic"
	RarityLegendary BadgeRarity = "legendary"
)

type BadgeType string

const (
	BadgeAchievement  BadgeType = "achievement"
	BadgeContribution BadgeType = "contribution"
	BadgeSpecialEvent BadgeType = "special_event"
	BadgeMilestone    BadgeType = "milestone"
)

type Badge struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	Name              string      `gorm:"size:50;uniqueIndex;not null" json:"name"`
	Slug              string      `gorm:"size:60;uniqueIndex;not null" json:"slug"`
	Description       string      `gorm:"size:500" json:"description"`
	ImageURL          string      `gorm:"type:text" json:"image_url"`
	Rarity            BadgeRarity `gorm:"size:20;not null;default:'common';index" json:"rarity"`
	Type              BadgeType   `gorm:"size:20;not null;default:'achievement';index" json:"type"`
	RequiredCondition string      `gorm:"type:text" json:"required_condition"`
	XPReward          int         `gorm:"not null;default:0" json:"xp_reward"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (b *Badge) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == uuid.Nil {
		b.ID, err = uuid.NewV7()
	}
	return
}

// UserBadge records one award. The composite key rejects duplicates.
type UserBadge struct {
	UserID    uuid.UUID  `gorm:"type:uuid;primaryKey" json:"user_id"`
	BadgeID   uuid.UUID  `gorm:"type:uuid;primaryKey" json:"badge_id"`
	Badge     Badge      `gorm:"constraint:OnDelete:CASCADE" json:"badge"`
	User      *User      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AwardedBy *uuid.UUID `gorm:"type:uuid" json:"awarded_by,omitempty"`
	AwardedAt time.Time  `gorm:"autoCreateTime" json:"awarded_at"`
}

func (UserBadge) TableName() string {
	return "user_badges"
}
