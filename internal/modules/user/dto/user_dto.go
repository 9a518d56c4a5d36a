package dto

import (
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"helios.network/testnetapi/internal/entity"
	commonDto "helios.network/testnetapi/pkg/dto"
)

// AvatarFile is an uploaded avatar image.
type AvatarFile struct {
	Reader   io.Reader
	FileName string
	Size     int64
}

type RegisterRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr"`
	Signature     string `json:"signature" binding:"required,hex_signature"`
	ReferralCode  string `json:"referral_code" binding:"omitempty,max=50"`
}

type LoginRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr"`
	Signature     string `json:"signature" binding:"required,hex_signature"`
}

type AuthResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   int64         `json:"expires_at"`
	User        *UserResponse `json:"user"`
}

type UpdateProfileRequest struct {
	Username    *string           `json:"username" binding:"omitempty,min=3,max=30"`
	Email       *string           `json:"email" binding:"omitempty,email,max=100"`
	AvatarURL   *string           `json:"avatar_url" binding:"omitempty,url"`
	Bio         *string           `json:"bio" binding:"omitempty,max=500"`
	SocialLinks map[string]string `json:"social_links" binding:"omitempty,max=10,dive,keys,max=30,endkeys,url"`
}

type SearchQuery struct {
	commonDto.PageQuery
	Query     string `form:"q"`
	SortBy    string `form:"sort_by" binding:"omitempty,oneof=xp createdAt wallet contributorTag level"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc"`
}

type UserResponse struct {
	ID                  uuid.UUID      `json:"id"`
	WalletAddress       string         `json:"wallet_address"`
	Username            *string        `json:"username,omitempty"`
	Email               *string        `json:"email,omitempty"`
	AvatarURL           *string        `json:"avatar_url,omitempty"`
	Bio                 *string        `json:"bio,omitempty"`
	SocialLinks         datatypes.JSON `json:"social_links,omitempty"`
	XP                  int            `json:"xp"`
	Level               int            `json:"level"`
	ContributionXP      int            `json:"contribution_xp"`
	ContributionLevel   int            `json:"contribution_level"`
	ContributorStatus   string         `json:"contributor_status"`
	ContributorTag      *string        `json:"contributor_tag,omitempty"`
	OnboardingSteps     []string       `json:"onboarding_steps"`
	OnboardingCompleted bool           `json:"onboarding_completed"`
	Status              string         `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
}

// PublicUserResponse drops contact details for lookups by other users.
type PublicUserResponse struct {
	ID                uuid.UUID      `json:"id"`
	WalletAddress     string         `json:"wallet_address"`
	Username          *string        `json:"username,omitempty"`
	AvatarURL         *string        `json:"avatar_url,omitempty"`
	Bio               *string        `json:"bio,omitempty"`
	SocialLinks       datatypes.JSON `json:"social_links,omitempty"`
	XP                int            `json:"xp"`
	Level             int            `json:"level"`
	ContributorStatus string         `json:"contributor_status"`
	ContributorTag    *string        `json:"contributor_tag,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

type StatsResponse struct {
	WalletAddress      string `json:"wallet_address"`
	XP                 int    `json:"xp"`
	Level              int    `json:"level"`
	ContributionXP     int    `json:"contribution_xp"`
	OnboardingProgress int    `json:"onboarding_progress"`
	ContributorStatus  string `json:"contributor_status"`
	NFTCount           int    `json:"nft_count"`
}

type NFTResponse struct {
	WalletAddress string   `json:"wallet_address"`
	NFTs          []string `json:"nfts"`
}

func ToUserResponse(u *entity.User) *UserResponse {
	return &UserResponse{
		ID:                  u.ID,
		WalletAddress:       u.WalletAddress,
		Username:            u.Username,
		Email:               u.Email,
		AvatarURL:           u.AvatarURL,
		Bio:                 u.Bio,
		SocialLinks:         u.SocialLinks,
		XP:                  u.XP,
		Level:               u.Level,
		ContributionXP:      u.ContributionXP,
		ContributionLevel:   u.ContributionLevel,
		ContributorStatus:   string(u.ContributorStatus),
		ContributorTag:      u.ContributorTag,
		OnboardingSteps:     append([]string{}, u.OnboardingSteps...),
		OnboardingCompleted: u.OnboardingCompleted,
		Status:              string(u.Status),
		CreatedAt:           u.CreatedAt,
	}
}

func ToPublicUserResponse(u *entity.User) PublicUserResponse {
	return PublicUserResponse{
		ID:                u.ID,
		WalletAddress:     u.WalletAddress,
		Username:          u.Username,
		AvatarURL:         u.AvatarURL,
		Bio:               u.Bio,
		SocialLinks:       u.SocialLinks,
		XP:                u.XP,
		Level:             u.Level,
		ContributorStatus: string(u.ContributorStatus),
		ContributorTag:    u.ContributorTag,
		CreatedAt:         u.CreatedAt,
	}
}
