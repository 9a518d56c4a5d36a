package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/leveling"
)

type ContributorStatus string

const (
	ContributorNone     ContributorStatus = "none"
	ContributorPending  ContributorStatus = "pending"
	ContributorApproved ContributorStatus = "approved"
	ContributorRejected ContributorStatus = "rejected"
)

func (s ContributorStatus) Valid() bool {
	switch s {
	case ContributorNone, ContributorPending, ContributorApproved, ContributorRejected:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
	AccountBanned    AccountStatus = "banned"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountActive, AccountSuspended, AccountBanned:
		return true
	}
	return false
}

// DefaultContributorTag is set on approval.
const DefaultContributorTag = "Contributor"

type User struct {
	ID                  uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	WalletAddress       string                      `gorm:"size:42;uniqueIndex;not null" json:"wallet_address"`
	Username            *string                     `gorm:"size:30;uniqueIndex" json:"username,omitempty"`
	Email               *string                     `gorm:"size:100" json:"email,omitempty"`
	AvatarURL           *string                     `gorm:"type:text" json:"avatar_url,omitempty"`
	Bio                 *string                     `gorm:"type:text" json:"bio,omitempty"`
	SocialLinks         datatypes.JSON              `gorm:"type:jsonb" json:"social_links,omitempty"`
	XP                  int                         `gorm:"not null;default:0;index" json:"xp"`
	Level               int                         `gorm:"not null;default:1" json:"level"`
	ContributionXP      int                         `gorm:"not null;default:0" json:"contribution_xp"`
	ContributionLevel   int                         `gorm:"not null;default:1" json:"contribution_level"`
	ContributorStatus   ContributorStatus           `gorm:"size:20;not null;default:'none'" json:"contributor_status"`
	ContributorTag      *string                     `gorm:"size:50;index" json:"contributor_tag,omitempty"`
	OnboardingSteps     datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"onboarding_steps"`
	OnboardingCompleted bool                        `gorm:"not null;default:false" json:"onboarding_completed"`
	MintedNFTs          datatypes.JSONSlice[string] `gorm:"column:minted_nfts;type:jsonb;not null;default:'[]'" json:"minted_nfts"`
	ReferralCode        *string                     `gorm:"size:50" json:"referral_code,omitempty"`
	Status              AccountStatus               `gorm:"size:20;not null;default:'active';index" json:"status"`
	StatusReason        *string                     `gorm:"type:text" json:"status_reason,omitempty"`
	LastLoginAt         *time.Time                  `json:"last_login_at,omitempty"`
	CreatedAt           time.Time                   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID, err = uuid.NewV7()
	}
	if u.Level == 0 {
		u.Level = 1
	}
	if u.ContributionLevel == 0 {
		u.ContributionLevel = 1
	}
	if u.ContributorStatus == "" {
		u.ContributorStatus = ContributorNone
	}
	if u.Status == "" {
		u.Status = AccountActive
	}
	if u.OnboardingSteps == nil {
		u.OnboardingSteps = datatypes.JSONSlice[string]{}
	}
	if u.MintedNFTs == nil {
		u.MintedNFTs = datatypes.JSONSlice[string]{}
	}
	return
}

// ApplyXP is the only way xp may change. It keeps level in sync with the
// new balance and returns the level held before the change.
func (u *User) ApplyXP(delta int, table leveling.Table) (int, error) {
	prev := u.Level
	next := u.XP + delta
	if next < 0 {
		return prev, apperror.ErrInsufficientXP
	}
	if next > leveling.MaxXP {
		return prev, apperror.Wrap(apperror.ErrLimitExceeded, "xp balance would exceed the maximum")
	}
	u.XP = next
	u.Level = table.LevelFor(next)
	return prev, nil
}

// ApplyContributionXP updates the contributor reputation counter.
func (u *User) ApplyContributionXP(delta int, table leveling.Table) error {
	next := u.ContributionXP + delta
	if next < 0 {
		return apperror.ErrInsufficientXP
	}
	if next > leveling.MaxXP {
		return apperror.Wrap(apperror.ErrLimitExceeded, "contribution xp would exceed the maximum")
	}
	u.ContributionXP = next
	u.ContributionLevel = table.LevelFor(next)
	return nil
}

// HasCompletedStep reports whether key is in the completed onboarding list.
func (u *User) HasCompletedStep(key string) bool {
	for _, s := range u.OnboardingSteps {
		if s == key {
			return true
		}
	}
	return false
}

// MarkStepCompleted appends key once.
func (u *User) MarkStepCompleted(key string) {
	if !u.HasCompletedStep(key) {
		u.OnboardingSteps = append(u.OnboardingSteps, key)
	}
}

// AddMintedNFT appends tokenID once.
func (u *User) AddMintedNFT(tokenID string) {
	for _, id := range u.MintedNFTs {
		if id == tokenID {
			return
		}
	}
	u.MintedNFTs = append(u.MintedNFTs, tokenID)
}

func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	return u.WalletAddress
}
