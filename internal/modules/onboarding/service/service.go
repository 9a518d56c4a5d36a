package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/onboarding/dto"
	"helios.network/testnetapi/internal/modules/onboarding/repository"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/clock"
)

type Config struct {
	StepRewards map[string]int
	RewardXP    int
	RewardNFT   string
}

type OnboardingService interface {
	Start(ctx context.Context, userID uuid.UUID, req dto.StepRequest) (*dto.StepResponse, error)
	Complete(ctx context.Context, userID uuid.UUID, req dto.StepRequest) (*dto.StepResponse, error)
	Progress(ctx context.Context, userID uuid.UUID) (*dto.ProgressResponse, error)
	Reset(ctx context.Context, userID uuid.UUID, key string) error
	ClaimReward(ctx context.Context, userID uuid.UUID) (*dto.RewardResponse, error)
}

type onboardingService struct {
	steps  repository.StepRepository
	users  userRepo.UserRepository
	ledger *xpService.Ledger
	clock  clock.Clock
	cfg    Config
}

func NewOnboardingService(
	steps repository.StepRepository,
	users userRepo.UserRepository,
	ledger *xpService.Ledger,
	clk clock.Clock,
	cfg Config,
) OnboardingService {
	if clk == nil {
		clk = clock.New()
	}
	return &onboardingService{steps: steps, users: users, ledger: ledger, clock: clk, cfg: cfg}
}

// userStepKey parses a step a user may drive directly. The reward marker is
// only written by ClaimReward.
func userStepKey(raw string) (entity.StepKey, error) {
	key, err := entity.ParseStepKey(raw)
	if err != nil {
		return "", apperror.Wrap(apperror.ErrInvalidInput, err.Error())
	}
	if key == entity.StepOnboardingRewardClaimed {
		return "", apperror.Wrap(apperror.ErrInvalidInput, "this step is completed by claiming the onboarding reward")
	}
	return key, nil
}

func (s *onboardingService) Start(ctx context.Context, userID uuid.UUID, req dto.StepRequest) (*dto.StepResponse, error) {
	key, err := userStepKey(req.StepKey)
	if err != nil {
		return nil, err
	}

	var step *entity.OnboardingStep
	err = s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.users.LockByID(ctx, userID); err != nil {
			return err
		}

		existing, err := s.steps.Find(ctx, userID, key)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != entity.StepNotStarted {
			return apperror.Wrap(apperror.ErrNotEligible, "step already started or completed")
		}

		now := s.clock.Now()
		step = &entity.OnboardingStep{
			UserID:    userID,
			StepKey:   key,
			Status:    entity.StepInProgress,
			StartedAt: &now,
			Metadata:  toJSON(req.Metadata),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if existing != nil {
			step.ID = existing.ID
			step.CreatedAt = existing.CreatedAt
		}
		return s.steps.Upsert(ctx, step)
	})
	if err != nil {
		return nil, err
	}
	return &dto.StepResponse{Step: *step}, nil
}

func (s *onboardingService) Complete(ctx context.Context, userID uuid.UUID, req dto.StepRequest) (*dto.StepResponse, error) {
	key, err := userStepKey(req.StepKey)
	if err != nil {
		return nil, err
	}
	reward := s.cfg.StepRewards[string(key)]

	var (
		step *entity.OnboardingStep
		res  *xpService.Result
	)
	err = s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		user, err := s.users.LockByID(ctx, userID)
		if err != nil {
			return err
		}

		existing, err := s.steps.Find(ctx, userID, key)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == entity.StepCompleted {
			return apperror.Wrap(apperror.ErrNotEligible, "step already completed")
		}

		now := s.clock.Now()
		step = &entity.OnboardingStep{
			UserID:      userID,
			StepKey:     key,
			Status:      entity.StepCompleted,
			StartedAt:   &now,
			CompletedAt: &now,
			XPAwarded:   reward,
			Metadata:    toJSON(req.Metadata),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if existing != nil {
			step.ID = existing.ID
			step.CreatedAt = existing.CreatedAt
			if existing.StartedAt != nil {
				step.StartedAt = existing.StartedAt
			}
			if len(step.Metadata) == 0 {
				step.Metadata = existing.Metadata
			}
		}
		if err := s.steps.Upsert(ctx, step); err != nil {
			return err
		}

		res, err = s.ledger.ApplyLocked(ctx, user, xpService.Entry{
			UserID:      userID,
			Amount:      reward,
			Type:        entity.ActivityOnboarding,
			Description: fmt.Sprintf("XP for completing %s", key),
			Metadata:    map[string]any{"step_key": string(key)},
			Mutate: func(u *entity.User) error {
				u.MarkStepCompleted(string(key))
				return nil
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Announce(ctx, res)

	return &dto.StepResponse{
		Step:      *step,
		XPAwarded: reward,
		TotalXP:   res.User.XP,
		Level:     res.User.Level,
		LeveledUp: res.LeveledUp(),
	}, nil
}

func (s *onboardingService) Progress(ctx context.Context, userID uuid.UUID) (*dto.ProgressResponse, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, err
	}
	steps, err := s.steps.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := make(map[entity.StepKey]entity.StepStatus, len(steps))
	for _, st := range steps {
		status[st.StepKey] = st.Status
	}

	required := entity.RequiredSteps()
	completed := make([]entity.StepKey, 0, len(required))
	for _, key := range required {
		if status[key] == entity.StepCompleted {
			completed = append(completed, key)
		}
	}
	claimed := status[entity.StepOnboardingRewardClaimed] == entity.StepCompleted

	if steps == nil {
		steps = []entity.OnboardingStep{}
	}
	return &dto.ProgressResponse{
		TotalSteps:         len(required),
		RequiredSteps:      required,
		CompletedSteps:     completed,
		CompletedCount:     len(completed),
		ProgressPercentage: math.Round(float64(len(completed))/float64(len(required))*10000) / 100,
		RewardClaimable:    len(completed) == len(required) && !claimed,
		RewardClaimed:      claimed,
		Steps:              steps,
	}, nil
}

func (s *onboardingService) Reset(ctx context.Context, userID uuid.UUID, raw string) error {
	key, err := userStepKey(raw)
	if err != nil {
		return err
	}

	return s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.steps.Find(ctx, userID, key)
		if err != nil {
			return err
		}
		if existing == nil {
			return apperror.Wrap(apperror.ErrNotFound, "onboarding step not found")
		}
		if existing.Status != entity.StepInProgress {
			return apperror.Wrap(apperror.ErrNotEligible, "only an in-progress step can be reset")
		}
		return s.steps.Delete(ctx, userID, key)
	})
}

func (s *onboardingService) ClaimReward(ctx context.Context, userID uuid.UUID) (*dto.RewardResponse, error) {
	var res *xpService.Result
	err := s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		user, err := s.users.LockByID(ctx, userID)
		if err != nil {
			return err
		}

		steps, err := s.steps.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		status := make(map[entity.StepKey]entity.StepStatus, len(steps))
		for _, st := range steps {
			status[st.StepKey] = st.Status
		}
		if user.OnboardingCompleted || status[entity.StepOnboardingRewardClaimed] == entity.StepCompleted {
			return apperror.Wrap(apperror.ErrNotEligible, "onboarding reward already claimed")
		}
		for _, key := range entity.RequiredSteps() {
			if status[key] != entity.StepCompleted {
				return apperror.Wrap(apperror.ErrNotEligible,
					fmt.Sprintf("complete %s before claiming the onboarding reward", key))
			}
		}

		now := s.clock.Now()
		if err := s.steps.Upsert(ctx, &entity.OnboardingStep{
			UserID:      userID,
			StepKey:     entity.StepOnboardingRewardClaimed,
			Status:      entity.StepCompleted,
			StartedAt:   &now,
			CompletedAt: &now,
			XPAwarded:   s.cfg.RewardXP,
			CreatedAt:   now,
			UpdatedAt:   now,
		}); err != nil {
			return err
		}

		res, err = s.ledger.ApplyLocked(ctx, user, xpService.Entry{
			UserID:      userID,
			Amount:      s.cfg.RewardXP,
			Type:        entity.ActivityOnboardingReward,
			Description: "Onboarding Completion Reward",
			Metadata:    map[string]any{"nft_reward": s.cfg.RewardNFT},
			Mutate: func(u *entity.User) error {
				if s.cfg.RewardNFT != "" {
					u.AddMintedNFT(s.cfg.RewardNFT)
				}
				u.MarkStepCompleted(string(entity.StepOnboardingRewardClaimed))
				u.OnboardingCompleted = true
				return nil
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Announce(ctx, res)

	return &dto.RewardResponse{
		XPAwarded: s.cfg.RewardXP,
		NFTReward: s.cfg.RewardNFT,
		TotalXP:   res.User.XP,
		Level:     res.User.Level,
		LeveledUp: res.LeveledUp(),
	}, nil
}

func toJSON(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
