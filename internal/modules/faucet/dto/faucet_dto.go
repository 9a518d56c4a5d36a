package dto

import (
	"time"

	"github.com/google/uuid"

	commonDto "helios.network/testnetapi/pkg/dto"
)

type ClaimRequest struct {
	Token  string  `json:"token" binding:"required,max=20"`
	Chain  string  `json:"chain" binding:"required,max=50"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type EligibilityRequest struct {
	Token string `json:"token" form:"token" binding:"required,max=20"`
	Chain string `json:"chain" form:"chain" binding:"required,max=50"`
}

type ClaimResponse struct {
	Claim           ClaimItem `json:"claim"`
	XPReward        int       `json:"xp_reward"`
	TransactionHash string    `json:"transaction_hash"`
	TotalXP         int       `json:"total_xp"`
	Level           int       `json:"level"`
	LeveledUp       bool      `json:"leveled_up"`
}

type ClaimItem struct {
	ID              uuid.UUID  `json:"id"`
	WalletAddress   string     `json:"wallet_address"`
	Token           string     `json:"token"`
	Chain           string     `json:"chain"`
	Amount          float64    `json:"amount"`
	Status          string     `json:"status"`
	TransactionHash *string    `json:"transaction_hash,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CooldownUntil   *time.Time `json:"cooldown_until,omitempty"`
	XPAwarded       int        `json:"xp_awarded"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type EligibilityResponse struct {
	Eligible      bool       `json:"eligible"`
	Token         string     `json:"token"`
	Chain         string     `json:"chain"`
	Reason        string     `json:"reason,omitempty"`
	NextClaimAt   *time.Time `json:"next_claim_at,omitempty"`
	MaxAmount     float64    `json:"max_amount"`
	CooldownHours int        `json:"cooldown_hours"`
}

type TokenResponse struct {
	Token         string  `json:"token"`
	Chain         string  `json:"chain"`
	MaxAmount     float64 `json:"max_amount"`
	CooldownHours int     `json:"cooldown_hours"`
	Multiplier    float64 `json:"xp_multiplier"`
}

type HistoryQuery struct {
	commonDto.PageQuery
	Status string `form:"status" binding:"omitempty,oneof=pending completed failed"`
}
