package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type XPActivityType string

const (
	ActivityDailyClaim       XPActivityType = "daily_claim"
	ActivityTutorialComplete XPActivityType = "tutorial_complete"
	ActivityContribution     XPActivityType = "contribution"
	ActivityReferral         XPActivityType = "referral"
	ActivityTransfer         XPActivityType = "transfer"
	ActivityAdminGrant       XPActivityType = "admin_grant"
	ActivityFaucetClaim      XPActivityType = "faucet_claim"
	ActivityOnboarding       XPActivityType = "onboarding"
	ActivityOnboardingReward XPActivityType = "onboarding_reward"
)

var activityTypes = []XPActivityType{
	ActivityDailyClaim,
	ActivityTutorialComplete,
	ActivityContribution,
	ActivityReferral,
	ActivityTransfer,
	ActivityAdminGrant,
	ActivityFaucetClaim,
	ActivityOnboarding,
	ActivityOnboardingReward,
}

func (t XPActivityType) Valid() bool {
	for _, v := range activityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Loggable reports whether users may self-report this activity.
func (t XPActivityType) Loggable() bool {
	switch t {
	case ActivityTutorialComplete, ActivityContribution, ActivityReferral:
		return true
	}
	return false
}

// ParseXPActivityType rejects values outside the closed set.
func ParseXPActivityType(s string) (XPActivityType, error) {
	t := XPActivityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown activity type %q", s)
	}
	return t, nil
}

// XPActivity is an append-only ledger row. Rows are never updated.
type XPActivity struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_xp_user_type_time,priority:1" json:"user_id"`
	User          *User          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Amount        int            `gorm:"not null" json:"amount"`
	Type          XPActivityType `gorm:"size:30;not null;index:idx_xp_user_type_time,priority:2" json:"type"`
	Description   string         `gorm:"size:255" json:"description"`
	Metadata      datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	RelatedUserID *uuid.UUID     `gorm:"type:uuid" json:"related_user_id,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index:idx_xp_user_type_time,priority:3;index" json:"created_at"`
}

func (XPActivity) TableName() string {
	return "xp_activities"
}

func (a *XPActivity) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID, err = uuid.NewV7()
	}
	return
}
