package dto

import (
	"time"

	"github.com/google/uuid"

	"helios.network/testnetapi/internal/entity"
	commonDto "helios.network/testnetapi/pkg/dto"
)

type CreateBadgeRequest struct {
	Name              string `json:"name" binding:"required,max=50"`
	Description       string `json:"description" binding:"max=500"`
	ImageURL          string `json:"image_url" binding:"omitempty,url"`
	Rarity            string `json:"rarity" binding:"omitempty,oneof=common rare epic legendary"`
	Type              string `json:"type" binding:"omitempty,oneof=achievement contribution special_event milestone"`
	RequiredCondition string `json:"required_condition" binding:"max=500"`
	XPReward          int    `json:"xp_reward" binding:"gte=0"`
}

type UpdateBadgeRequest struct {
	Name              *string `json:"name" binding:"omitempty,max=50"`
	Description       *string `json:"description" binding:"omitempty,max=500"`
	ImageURL          *string `json:"image_url" binding:"omitempty,url"`
	Rarity            *string `json:"rarity" binding:"omitempty,oneof=common rare epic legendary"`
	Type              *string `json:"type" binding:"omitempty,oneof=achievement contribution special_event milestone"`
	RequiredCondition *string `json:"required_condition" binding:"omitempty,max=500"`
	XPReward          *int    `json:"xp_reward" binding:"omitempty,gte=0"`
}

type AssignBadgeRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr"`
}

type BadgeQuery struct {
	commonDto.PageQuery
	Type   string `form:"type" binding:"omitempty,oneof=achievement contribution special_event milestone"`
	Rarity string `form:"rarity" binding:"omitempty,oneof=common rare epic legendary"`
}

type UserBadgeResponse struct {
	Badge     entity.Badge `json:"badge"`
	AwardedAt time.Time    `json:"awarded_at"`
}

type AssignResponse struct {
	BadgeID       uuid.UUID `json:"badge_id"`
	UserID        uuid.UUID `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	XPAwarded     int       `json:"xp_awarded"`
	TotalXP       int       `json:"total_xp"`
	Level         int       `json:"level"`
	LeveledUp     bool      `json:"leveled_up"`
}
