package dto

import (
	"io"

	"github.com/google/uuid"

	"helios.network/testnetapi/internal/entity"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	commonDto "helios.network/testnetapi/pkg/dto"
)

// ResumeFile is an uploaded resume document.
type ResumeFile struct {
	Reader   io.Reader
	FileName string
}

// ApplyRequest binds from JSON or a multipart form carrying a resume.
type ApplyRequest struct {
	FullName    string   `json:"full_name" form:"full_name" binding:"required,max=100"`
	Email       string   `json:"email" form:"email" binding:"required,email,max=100"`
	GithubURL   string   `json:"github_url" form:"github_url" binding:"omitempty,url"`
	LinkedinURL string   `json:"linkedin_url" form:"linkedin_url" binding:"omitempty,url"`
	Skills      []string `json:"skills" form:"skills" binding:"max=20,dive,max=50"`
	Motivation  string   `json:"motivation" form:"motivation" binding:"max=2000"`
}

type ReviewRequest struct {
	Status      string `json:"status" binding:"required,oneof=approved rejected"`
	ReviewNotes string `json:"review_notes" binding:"max=1000"`
}

type AssignRoleRequest struct {
	WalletAddress string `json:"wallet_address" binding:"required,eth_addr"`
	Role          string `json:"role" binding:"required,max=50"`
}

type ApplicationQuery struct {
	commonDto.PageQuery
	Status string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
}

type ContributorResponse struct {
	ID                uuid.UUID `json:"id"`
	WalletAddress     string    `json:"wallet_address"`
	Username          *string   `json:"username,omitempty"`
	AvatarURL         *string   `json:"avatar_url,omitempty"`
	Bio               *string   `json:"bio,omitempty"`
	ContributorTag    *string   `json:"contributor_tag,omitempty"`
	ContributionXP    int       `json:"contribution_xp"`
	ContributionLevel int       `json:"contribution_level"`
	XP                int       `json:"xp"`
	Level             int       `json:"level"`
}

type StatsResponse struct {
	userRepo.ContributorSummary
	TopContributors []ContributorResponse              `json:"top_contributors"`
	Applications    map[entity.ApplicationStatus]int64 `json:"applications"`
}

func ToContributorResponse(u *entity.User) ContributorResponse {
	return ContributorResponse{
		ID:                u.ID,
		WalletAddress:     u.WalletAddress,
		Username:          u.Username,
		AvatarURL:         u.AvatarURL,
		Bio:               u.Bio,
		ContributorTag:    u.ContributorTag,
		ContributionXP:    u.ContributionXP,
		ContributionLevel: u.ContributionLevel,
		XP:                u.XP,
		Level:             u.Level,
	}
}
