package dto

import (
	"time"

	"github.com/google/uuid"

	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

const (
	PeriodAllTime = "alltime"
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

type LeaderboardQuery struct {
	commonDto.PageQuery
	Period string `form:"period" binding:"omitempty,oneof=alltime daily weekly monthly"`
}

// LeaderboardEntry is one ranked user. Rank is 1-based across pages.
// PeriodXP is the net xp earned inside the requested window and equals XP
// for the all-time board.
type LeaderboardEntry struct {
	Rank           int             `json:"rank"`
	UserID         uuid.UUID       `json:"user_id"`
	WalletAddress  string          `json:"wallet_address"`
	Username       *string         `json:"username,omitempty"`
	AvatarURL      *string         `json:"avatar_url,omitempty"`
	ContributorTag *string         `json:"contributor_tag,omitempty"`
	XP             int             `json:"xp"`
	Level          int             `json:"level"`
	PeriodXP       int             `json:"period_xp"`
	WeeklyXP       int             `json:"weekly_xp"`
	ActivityLabel  string          `json:"activity_label,omitempty"`
	LevelStatus    leveling.Status `json:"level_status"`
}

type ContributorEntry struct {
	Rank              int       `json:"rank"`
	UserID            uuid.UUID `json:"user_id"`
	WalletAddress     string    `json:"wallet_address"`
	Username          *string   `json:"username,omitempty"`
	AvatarURL         *string   `json:"avatar_url,omitempty"`
	ContributorTag    *string   `json:"contributor_tag,omitempty"`
	ContributionXP    int       `json:"contribution_xp"`
	ContributionLevel int       `json:"contribution_level"`
	XP                int       `json:"xp"`
	Level             int       `json:"level"`
}

type RankResponse struct {
	GlobalRank      int64           `json:"global_rank"`
	TotalUsers      int64           `json:"total_users"`
	XP              int             `json:"xp"`
	Level           int             `json:"level"`
	WeeklyXP        int             `json:"weekly_xp"`
	ActivityLabel   string          `json:"activity_label,omitempty"`
	LevelStatus     leveling.Status `json:"level_status"`
	ContributorRank *int64          `json:"contributor_rank,omitempty"`
	ContributionXP  int             `json:"contribution_xp"`
}

type RecentActivity struct {
	ID            uuid.UUID `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	Username      *string   `json:"username,omitempty"`
	Amount        int       `json:"amount"`
	Type          string    `json:"type"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}

type StatsResponse struct {
	userRepo.UserAggregate
	TotalActivities  int64            `json:"total_activities"`
	RecentActivities []RecentActivity `json:"recent_activities"`
}
