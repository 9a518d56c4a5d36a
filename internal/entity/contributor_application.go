package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

type ContributorApplication struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID                   `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	User          *User                       `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	WalletAddress string                      `gorm:"size:42;not null" json:"wallet_address"`
	FullName      string                      `gorm:"size:100;not null" json:"full_name"`
	Email         string                      `gorm:"size:100;not null" json:"email"`
	ResumeURL     *string                     `gorm:"type:text" json:"resume_url,omitempty"`
	GithubURL     *string                     `gorm:"type:text" json:"github_url,omitempty"`
	LinkedinURL   *string                     `gorm:"type:text" json:"linkedin_url,omitempty"`
	Skills        datatypes.JSONSlice[string] `gorm:"type:jsonb;not null;default:'[]'" json:"skills"`
	Motivation    string                      `gorm:"type:text" json:"motivation"`
	Status        ApplicationStatus           `gorm:"size:20;not null;default:'pending';index" json:"status"`
	ReviewedBy    *uuid.UUID                  `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewNotes   *string                     `gorm:"type:text" json:"review_notes,omitempty"`
	ReviewedAt    *time.Time                  `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *ContributorApplication) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID, err = uuid.NewV7()
	}
	if a.Skills == nil {
		a.Skills = datatypes.JSONSlice[string]{}
	}
	return
}
