package dto

import "helios.network/testnetapi/internal/entity"

type StepRequest struct {
	StepKey  string         `json:"step_key" binding:"required,step_key"`
	Metadata map[string]any `json:"metadata"`
}

type StepResponse struct {
	Step      entity.OnboardingStep `json:"step"`
	XPAwarded int                   `json:"xp_awarded"`
	TotalXP   int                   `json:"total_xp,omitempty"`
	Level     int                   `json:"level,omitempty"`
	LeveledUp bool                  `json:"leveled_up"`
}

type ProgressResponse struct {
	TotalSteps         int                     `json:"total_steps"`
	RequiredSteps      []entity.StepKey        `json:"required_steps"`
	CompletedSteps     []entity.StepKey        `json:"completed_steps"`
	CompletedCount     int                     `json:"completed_steps_count"`
	ProgressPercentage float64                 `json:"progress_percentage"`
	RewardClaimable    bool                    `json:"reward_claimable"`
	RewardClaimed      bool                    `json:"reward_claimed"`
	Steps              []entity.OnboardingStep `json:"steps"`
}

type RewardResponse struct {
	XPAwarded int    `json:"xp_awarded"`
	NFTReward string `json:"nft_reward,omitempty"`
	TotalXP   int    `json:"total_xp"`
	Level     int    `json:"level"`
	LeveledUp bool   `json:"leveled_up"`
}
