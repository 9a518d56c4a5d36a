package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type FaucetClaimStatus string

const (
	ClaimPending   FaucetClaimStatus = "pending"
	ClaimCompleted FaucetClaimStatus = "completed"
	ClaimFailed    FaucetClaimStatus = "failed"
)

func (s FaucetClaimStatus) Valid() bool {
	switch s {
	case ClaimPending, ClaimCompleted, ClaimFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s FaucetClaimStatus) Terminal() bool {
	return s == ClaimCompleted || s == ClaimFailed
}

type FaucetClaim struct {
	ID              uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID         `gorm:"type:uuid;not null;index" json:"user_id"`
	User            *User             `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	WalletAddress   string            `gorm:"size:42;not null;index:idx_faucet_lookup,priority:1" json:"wallet_address"`
	Token           string            `gorm:"size:20;not null;index:idx_faucet_lookup,priority:2" json:"token"`
	Chain           string            `gorm:"size:50;not null;index:idx_faucet_lookup,priority:3" json:"chain"`
	Amount          float64           `gorm:"type:numeric(20,8);not null" json:"amount"`
	Status          FaucetClaimStatus `gorm:"size:20;not null;default:'pending';index:idx_faucet_lookup,priority:4" json:"status"`
	TransactionHash *string           `gorm:"size:66" json:"transaction_hash,omitempty"`
	ErrorMessage    *string           `gorm:"type:text" json:"error_message,omitempty"`
	CooldownUntil   *time.Time        `json:"cooldown_until,omitempty"`
	XPAwarded       int               `gorm:"not null;default:0" json:"xp_awarded"`
	Metadata        datatypes.JSON    `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;index:idx_faucet_lookup,priority:5" json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
}

func (c *FaucetClaim) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	if c.Status == "" {
		c.Status = ClaimPending
	}
	return
}
