package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	audit "helios.network/testnetapi/internal/modules/audit/service"
	"helios.network/testnetapi/internal/modules/badge/dto"
	"helios.network/testnetapi/internal/modules/badge/repository"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
)

// BadgeNotifier is told about awards after they commit.
type BadgeNotifier interface {
	NotifyBadgeAwarded(ctx context.Context, userID uuid.UUID, badge *entity.Badge)
}

type BadgeService interface {
	List(ctx context.Context, query dto.BadgeQuery) (*commonDto.Paginated[entity.Badge], error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Badge, error)
	UserBadges(ctx context.Context, userID uuid.UUID) ([]dto.UserBadgeResponse, error)
	Create(ctx context.Context, actor audit.Actor, req dto.CreateBadgeRequest) (*entity.Badge, error)
	Update(ctx context.Context, actor audit.Actor, id uuid.UUID, req dto.UpdateBadgeRequest) (*entity.Badge, error)
	Delete(ctx context.Context, actor audit.Actor, id uuid.UUID) error
	Assign(ctx context.Context, actor audit.Actor, badgeID uuid.UUID, req dto.AssignBadgeRequest) (*dto.AssignResponse, error)
}

type badgeService struct {
	repo     repository.BadgeRepository
	users    userRepo.UserRepository
	ledger   *xpService.Ledger
	audit    *audit.Recorder
	notifier BadgeNotifier
	clock    clock.Clock
}

func NewBadgeService(
	repo repository.BadgeRepository,
	users userRepo.UserRepository,
	ledger *xpService.Ledger,
	recorder *audit.Recorder,
	notifier BadgeNotifier,
	clk clock.Clock,
) BadgeService {
	if clk == nil {
		clk = clock.New()
	}
	return &badgeService{
		repo:     repo,
		users:    users,
		ledger:   ledger,
		audit:    recorder,
		notifier: notifier,
		clock:    clk,
	}
}

func (s *badgeService) List(ctx context.Context, query dto.BadgeQuery) (*commonDto.Paginated[entity.Badge], error) {
	page := query.PageQuery.Normalize()
	badges, total, err := s.repo.List(ctx, repository.BadgeFilter{
		Type:   entity.BadgeType(query.Type),
		Rarity: entity.BadgeRarity(query.Rarity),
		Limit:  page.Limit,
		Offset: page.Offset(),
	})
	if err != nil {
		return nil, err
	}
	if badges == nil {
		badges = []entity.Badge{}
	}
	return &commonDto.Paginated[entity.Badge]{
		Data: badges,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *badgeService) Get(ctx context.Context, id uuid.UUID) (*entity.Badge, error) {
	badge, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "badge not found")
		}
		return nil, err
	}
	return badge, nil
}

func (s *badgeService) UserBadges(ctx context.Context, userID uuid.UUID) ([]dto.UserBadgeResponse, error) {
	awards, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	res := make([]dto.UserBadgeResponse, len(awards))
	for i, a := range awards {
		res[i] = dto.UserBadgeResponse{Badge: a.Badge, AwardedAt: a.AwardedAt}
	}
	return res, nil
}

func (s *badgeService) Create(ctx context.Context, actor audit.Actor, req dto.CreateBadgeRequest) (*entity.Badge, error) {
	name := strings.TrimSpace(req.Name)
	badge := &entity.Badge{
		Name:              name,
		Slug:              slug.Make(name),
		Description:       req.Description,
		ImageURL:          req.ImageURL,
		Rarity:            entity.RarityCommon,
		Type:              entity.BadgeAchievement,
		RequiredCondition: req.RequiredCondition,
		XPReward:          req.XPReward,
	}
	if req.Rarity != "" {
		badge.Rarity = entity.BadgeRarity(req.Rarity)
	}
	if req.Type != "" {
		badge.Type = entity.BadgeType(req.Type)
	}
	if badge.Slug == "" {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "badge name must contain letters or digits")
	}

	err := s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, badge); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, audit.ActionBadgeCreate, "badge", badge.ID.String(), map[string]any{"name": badge.Name})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.ErrConflict, "badge name already exists")
		}
		return nil, err
	}
	return badge, nil
}

func (s *badgeService) Update(ctx context.Context, actor audit.Actor, id uuid.UUID, req dto.UpdateBadgeRequest) (*entity.Badge, error) {
	badge, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		badge.Name = strings.TrimSpace(*req.Name)
		badge.Slug = slug.Make(badge.Name)
		if badge.Slug == "" {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "badge name must contain letters or digits")
		}
	}
	if req.Description != nil {
		badge.Description = *req.Description
	}
	if req.ImageURL != nil {
		badge.ImageURL = *req.ImageURL
	}
	if req.Rarity != nil {
		badge.Rarity = entity.BadgeRarity(*req.Rarity)
	}
	if req.Type != nil {
		badge.Type = entity.BadgeType(*req.Type)
	}
	if req.RequiredCondition != nil {
		badge.RequiredCondition = *req.RequiredCondition
	}
	if req.XPReward != nil {
		badge.XPReward = *req.XPReward
	}

	err = s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Save(ctx, badge); err != nil {
			return err
		}
		return s.audit.Record(ctx, actor, audit.ActionBadgeUpdate, "badge", badge.ID.String(), nil)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.ErrConflict, "badge name already exists")
		}
		return nil, err
	}
	return badge, nil
}

func (s *badgeService) Delete(ctx context.Context, actor audit.Actor, id uuid.UUID) error {
	return s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Delete(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.Wrap(apperror.ErrNotFound, "badge not found")
			}
			return err
		}
		return s.audit.Record(ctx, actor, audit.ActionBadgeDelete, "badge", id.String(), nil)
	})
}

// Assign awards a badge once per user and credits its xp reward through
// the ledger in the same transaction.
func (s *badgeService) Assign(ctx context.Context, actor audit.Actor, badgeID uuid.UUID, req dto.AssignBadgeRequest) (*dto.AssignResponse, error) {
	wallet, err := chain.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
	}
	badge, err := s.Get(ctx, badgeID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}

	var res *xpService.Result
	err = s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		owned, err := s.repo.HasBadge(ctx, user.ID, badge.ID)
		if err != nil {
			return err
		}
		if owned {
			return apperror.Wrap(apperror.ErrConflict, "user already has this badge")
		}

		awardedBy := actor.ID
		if err := s.repo.Award(ctx, &entity.UserBadge{
			UserID:    user.ID,
			BadgeID:   badge.ID,
			AwardedBy: &awardedBy,
			AwardedAt: s.clock.Now(),
		}); err != nil {
			return err
		}

		res, err = s.ledger.ApplyInTx(ctx, xpService.Entry{
			UserID:      user.ID,
			Amount:      badge.XPReward,
			Type:        entity.ActivityAdminGrant,
			Description: fmt.Sprintf("Badge awarded: %s", badge.Name),
			Metadata:    map[string]any{"badge_id": badge.ID.String(), "badge_slug": badge.Slug},
		})
		if err != nil {
			return err
		}

		return s.audit.Record(ctx, actor, audit.ActionBadgeAssign, "user", user.ID.String(), map[string]any{
			"badge_id":  badge.ID.String(),
			"xp_reward": badge.XPReward,
		})
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Wrap(apperror.ErrConflict, "user already has this badge")
		}
		return nil, err
	}

	s.ledger.Announce(ctx, res)
	if s.notifier != nil {
		s.notifier.NotifyBadgeAwarded(ctx, user.ID, badge)
	}
	logger.InfoCtx(ctx, "badge awarded",
		zap.String("badge", badge.Slug),
		zap.String("user_id", user.ID.String()),
	)

	return &dto.AssignResponse{
		BadgeID:       badge.ID,
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		XPAwarded:     badge.XPReward,
		TotalXP:       res.User.XP,
		Level:         res.User.Level,
		LeveledUp:     res.LeveledUp(),
	}, nil
}
