package dto

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

type DailyClaimResponse struct {
	XPGained    int       `json:"xp_gained"`
	TotalXP     int       `json:"total_xp"`
	Level       int       `json:"level"`
	LeveledUp   bool      `json:"leveled_up"`
	NextClaimAt time.Time `json:"next_claim_at"`
}

type DailyStatusResponse struct {
	Eligible    bool       `json:"eligible"`
	LastClaimAt *time.Time `json:"last_claim_at,omitempty"`
	NextClaimAt *time.Time `json:"next_claim_at,omitempty"`
	Amount      int        `json:"amount"`
}

type LogActivityRequest struct {
	ActivityType string         `json:"activity_type" binding:"required,oneof=tutorial_complete contribution referral"`
	Description  string         `json:"description" binding:"max=255"`
	Metadata     map[string]any `json:"metadata"`
}

type ActivityResultResponse struct {
	Activity  ActivityResponse `json:"activity"`
	TotalXP   int              `json:"total_xp"`
	Level     int              `json:"level"`
	LeveledUp bool             `json:"leveled_up"`
}

type TransferRequest struct {
	ToWallet string `json:"to_wallet" binding:"required,eth_addr"`
	Amount   int    `json:"amount" binding:"required,gt=0"`
	Note     string `json:"note" binding:"max=200"`
}

type TransferResponse struct {
	Amount          int    `json:"amount"`
	RecipientWallet string `json:"recipient_wallet"`
	SenderXP        int    `json:"sender_xp"`
	SenderLevel     int    `json:"sender_level"`
}

type HistoryQuery struct {
	commonDto.PageQuery
	Type string `form:"type"`
}

type AdminActivityQuery struct {
	commonDto.PageQuery
	Type   string `form:"type"`
	Wallet string `form:"wallet"`
}

type ActivityResponse struct {
	ID            uuid.UUID      `json:"id"`
	Amount        int            `json:"amount"`
	Type          string         `json:"type"`
	Description   string         `json:"description"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	RelatedUserID *uuid.UUID     `json:"related_user_id,omitempty"`
	WalletAddress string         `json:"wallet_address,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type LevelInfoResponse struct {
	leveling.Status
	ContributionXP    int `json:"contribution_xp"`
	ContributionLevel int `json:"contribution_level"`
}
