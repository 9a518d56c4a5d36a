package dto

import (
	"github.com/google/uuid"

	"helios.network/testnetapi/internal/entity"
	userDto "helios.network/testnetapi/internal/modules/user/dto"
	xpDto "helios.network/testnetapi/internal/modules/xp/dto"
	commonDto "helios.network/testnetapi/pkg/dto"
)

type UserQuery struct {
	commonDto.PageQuery
	Query             string `form:"q"`
	Status            string `form:"status" binding:"omitempty,oneof=active suspended banned"`
	ContributorStatus string `form:"contributor_status" binding:"omitempty,oneof=none pending approved rejected"`
	SortBy            string `form:"sort_by" binding:"omitempty,oneof=xp level createdAt wallet contributorTag contributionXP"`
	SortOrder         string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
}

type UserDetailResponse struct {
	User             *userDto.UserResponse          `json:"user"`
	Application      *entity.ContributorApplication `json:"application,omitempty"`
	BadgeCount       int                            `json:"badge_count"`
	RecentActivities []xpDto.ActivityResponse       `json:"recent_activities"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended banned"`
	Reason string `json:"reason" binding:"max=500"`
}

// GrantXPRequest may carry a negative amount to claw xp back.
type GrantXPRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr"`
	Amount        int    `json:"amount" binding:"required,min=-100000,max=100000"`
	Reason        string `json:"reason" binding:"required,max=255"`
}

type GrantXPResponse struct {
	UserID        uuid.UUID `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	Amount        int       `json:"amount"`
	TotalXP       int       `json:"total_xp"`
	Level         int       `json:"level"`
	LeveledUp     bool      `json:"leveled_up"`
}

type ClaimQuery struct {
	commonDto.PageQuery
	Status string `form:"status" binding:"omitempty,oneof=pending completed failed"`
	Wallet string `form:"wallet"`
}

type AuditQuery struct {
	commonDto.PageQuery
	Action  string `form:"action"`
	AdminID string `form:"admin_id" binding:"omitempty,uuid"`
}

type UserCounts struct {
	Total               int64 `json:"total"`
	Active              int64 `json:"active"`
	Suspended           int64 `json:"suspended"`
	Banned              int64 `json:"banned"`
	OnboardingCompleted int64 `json:"onboarding_completed"`
	Contributors        int64 `json:"contributors"`
}

type SystemStatsResponse struct {
	Users           UserCounts                         `json:"users"`
	TotalXP         int64                              `json:"total_xp"`
	AverageXP       float64                            `json:"average_xp"`
	Activities      int64                              `json:"activities"`
	Badges          int64                              `json:"badges"`
	BadgeAwards     int64                              `json:"badge_awards"`
	Claims          map[entity.FaucetClaimStatus]int64 `json:"claims"`
	Applications    map[entity.ApplicationStatus]int64 `json:"applications"`
	OnboardingSteps map[entity.StepKey]int64           `json:"onboarding_steps"`
}

type JobResponse struct {
	Job      string `json:"job"`
	Affected int64  `json:"affected"`
}
