package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type StepKey string

const (
	StepAddHeliosNetwork        StepKey = "add_helios_network"
	StepClaimFromFaucet         StepKey = "claim_from_faucet"
	StepMintEarlyBirdNFT        StepKey = "mint_early_bird_nft"
	StepOnboardingRewardClaimed StepKey = "onboarding_reward_claimed"
)

// AllSteps lists every onboarding step in display order.
func AllSteps() []StepKey {
	return []StepKey{
		StepAddHeliosNetwork,
		StepClaimFromFaucet,
		StepMintEarlyBirdNFT,
		StepOnboardingRewardClaimed,
	}
}

// RequiredSteps are the steps a user completes before claiming the reward.
func RequiredSteps() []StepKey {
	return []StepKey{
		StepAddHeliosNetwork,
		StepClaimFromFaucet,
		StepMintEarlyBirdNFT,
	}
}

func ParseStepKey(s string) (StepKey, error) {
	for _, k := range AllSteps() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown onboarding step %q", s)
}

type StepStatus string

const (
	StepNotStarted StepStatus = "not_started"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
)

type OnboardingStep struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_onboarding_user_step,priority:1" json:"user_id"`
	User        *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	StepKey     StepKey        `gorm:"size:50;not null;uniqueIndex:idx_onboarding_user_step,priority:2" json:"step_key"`
	Status      StepStatus     `gorm:"size:20;not null;default:'not_started'" json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	XPAwarded   int            `gorm:"not null;default:0" json:"xp_awarded"`
	Metadata    datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *OnboardingStep) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID, err = uuid.NewV7()
	}
	return
}
