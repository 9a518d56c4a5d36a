package bootstrap

import (
	"context"
	"errors"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.XPActivity{},
		&entity.FaucetClaim{},
		&entity.OnboardingStep{},
		&entity.Badge{},
		&entity.UserBadge{},
		&entity.ContributorApplication{},
		&entity.Notification{},
		&entity.AuditLog{},
	)
}

// DefaultBadges is the starter catalog. Existing names are left untouched.
func DefaultBadges() []entity.Badge {
	return []entity.Badge{
		{
			Name:              "Early Bird",
			Description:       "Completed onboarding during the testnet launch.",
			Rarity:            entity.RarityRare,
			Type:              entity.BadgeSpecialEvent,
			RequiredCondition: "onboarding_completed",
			XPReward:          100,
		},
		{
			Name:              "Faucet Regular",
			Description:       "Claimed testnet tokens from the faucet.",
			Rarity:            entity.RarityCommon,
			Type:              entity.BadgeAchievement,
			RequiredCondition: "faucet_claims >= 5",
			XPReward:          25,
		},
		{
			Name:              "Level 5",
			Description:       "Reached level 5.",
			Rarity:            entity.RarityEpic,
			Type:              entity.BadgeMilestone,
			RequiredCondition: "level >= 5",
			XPReward:          50,
		},
		{
			Name:              "Core Contributor",
			Description:       "Approved contributor to the Helios ecosystem.",
			Rarity:            entity.RarityLegendary,
			Type:              entity.BadgeContribution,
			RequiredCondition: "contributor_status = approved",
			XPReward:          250,
		},
	}
}

func SeedBadges(ctx context.Context, db *gorm.DB) error {
	for _, badge := range DefaultBadges() {
		var count int64
		if err := db.WithContext(ctx).Model(&entity.Badge{}).
			Where("name = ?", badge.Name).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			badge.Slug = slug.Make(badge.Name)
			if err := db.WithContext(ctx).Create(&badge).Error; err != nil {
				return err
			}
		}
	}

	return nil
}

// SeedAdminUsers registers a user for every configured admin wallet so the
// admin surface is usable on a fresh development database.
func SeedAdminUsers(ctx context.Context, db *gorm.DB, wallets []string) error {
	for _, wallet := range wallets {
		var user entity.User
		err := db.WithContext(ctx).Where("wallet_address = ?", wallet).First(&user).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		user = entity.User{
			WalletAddress: wallet,
			Level:         1,
			Status:        entity.AccountActive,
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
		logger.InfoCtx(ctx, "admin user seeded", zap.String("wallet", wallet))
	}

	return nil
}
