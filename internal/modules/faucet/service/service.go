package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"helios.network/testnetapi/internal/config"
	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	"helios.network/testnetapi/internal/modules/faucet/dto"
	"helios.network/testnetapi/internal/modules/faucet/repository"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/internal/ratelimit"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
	"helios.network/testnetapi/pkg/leveling"
)

const staleReason = "claim timed out while pending"

type FaucetService interface {
	RequestTokens(ctx context.Context, userID uuid.UUID, req dto.ClaimRequest) (*dto.ClaimResponse, error)
	CheckEligibility(ctx context.Context, userID uuid.UUID, req dto.EligibilityRequest) (*dto.EligibilityResponse, error)
	History(ctx context.Context, userID uuid.UUID, query dto.HistoryQuery) (*commonDto.Paginated[dto.ClaimItem], error)
	AvailableTokens() []dto.TokenResponse
	SweepStale(ctx context.Context) (int64, error)
}

type Deps struct {
	Claims  repository.ClaimRepository
	Users   userRepo.UserRepository
	Ledger  *xpService.Ledger
	Sender  chain.Sender
	Limiter *ratelimit.Limiter
	Clock   clock.Clock
}

type faucetService struct {
	claims  repository.ClaimRepository
	users   userRepo.UserRepository
	ledger  *xpService.Ledger
	sender  chain.Sender
	limiter *ratelimit.Limiter
	clock   clock.Clock
	cfg     config.FaucetConfig
	rules   RewardRules
}

func NewFaucetService(deps Deps, cfg config.FaucetConfig) FaucetService {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(nil)
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}

	rules := DefaultRewardRules()
	if cfg.BaseReward > 0 {
		rules.Base = cfg.BaseReward
	}
	if cfg.RewardCap > 0 {
		rules.Cap = cfg.RewardCap
	}
	if len(cfg.Multipliers) > 0 {
		rules.Multipliers = cfg.Multipliers
	}

	return &faucetService{
		claims:  deps.Claims,
		users:   deps.Users,
		ledger:  deps.Ledger,
		sender:  deps.Sender,
		limiter: deps.Limiter,
		clock:   deps.Clock,
		cfg:     cfg,
		rules:   rules,
	}
}

func (s *faucetService) RequestTokens(ctx context.Context, userID uuid.UUID, req dto.ClaimRequest) (*dto.ClaimResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	token, ok := s.cfg.FindToken(req.Token, req.Chain)
	if !ok {
		return nil, apperror.Wrap(apperror.ErrInvalidInput,
			fmt.Sprintf("token %s is not available on chain %s", req.Token, req.Chain))
	}
	if req.Amount <= 0 || req.Amount > token.MaxAmount {
		return nil, apperror.Wrap(apperror.ErrLimitExceeded,
			fmt.Sprintf("claim amount must be greater than 0 and at most %s %s",
				chain.FormatAmount(token.MaxAmount), token.Token))
	}

	wallet := user.WalletAddress
	lock, acquired, err := s.limiter.TryLock(ctx, lockKey(wallet, token), s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperror.Wrap(apperror.ErrNotEligible, "a claim for this token is already being processed")
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.WarnCtx(ctx, "failed to release faucet lock", zap.Error(err))
		}
	}()

	eligibility, err := s.eligibility(ctx, wallet, token)
	if err != nil {
		return nil, err
	}
	if !eligibility.Eligible {
		return nil, &apperror.AppError{
			Code:    http.StatusBadRequest,
			Message: eligibility.Reason,
			Err:     apperror.ErrNotEligible,
		}
	}

	now := s.clock.Now()
	cooldownUntil := now.Add(token.Cooldown())
	claim := &entity.FaucetClaim{
		UserID:        user.ID,
		WalletAddress: wallet,
		Token:         token.Token,
		Chain:         token.Chain,
		Amount:        req.Amount,
		Status:        entity.ClaimPending,
		CooldownUntil: &cooldownUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, err
	}

	receipt, err := s.sender.Send(ctx, wallet, token.Token, token.Chain, req.Amount)
	if err != nil {
		s.fail(ctx, claim, err.Error())
		return nil, apperror.Wrap(apperror.ErrExternalService,
			fmt.Sprintf("failed to send faucet tokens: %v", err))
	}

	// The tokens are gone from here on: the claim completes whatever happens
	// to the xp credit so the cooldown always applies.
	reward := s.rules.Reward(req.Amount, token.Token)
	completedAt := s.clock.Now()
	credited := 0

	var res *xpService.Result
	err = s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := s.users.LockByID(ctx, user.ID)
		if err != nil {
			return err
		}
		credited = min(reward, max(leveling.MaxXP-locked.XP, 0))
		if err := s.complete(ctx, claim.ID, receipt.TransactionHash, credited, completedAt); err != nil {
			return err
		}
		res, err = s.ledger.ApplyLocked(ctx, locked, xpService.Entry{
			UserID:      user.ID,
			Amount:      credited,
			Type:        entity.ActivityFaucetClaim,
			Description: fmt.Sprintf("Faucet claim: %s %s", chain.FormatAmount(req.Amount), token.Token),
			Metadata: map[string]any{
				"claim_id":         claim.ID.String(),
				"chain":            token.Chain,
				"transaction_hash": receipt.TransactionHash,
			},
		})
		return err
	})
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("claim_id", claim.ID.String()), zap.Int("xp_reward", reward))
		credited, res = 0, nil
		if err := s.complete(context.WithoutCancel(ctx), claim.ID, receipt.TransactionHash, 0, completedAt); err != nil {
			return nil, err
		}
	}
	if credited < reward {
		logger.WarnCtx(ctx, "faucet xp reward not fully credited",
			zap.String("claim_id", claim.ID.String()),
			zap.Int("xp_reward", reward),
			zap.Int("xp_credited", credited),
		)
	}
	s.ledger.Announce(ctx, res)

	logger.InfoCtx(ctx, "faucet claim completed",
		zap.String("claim_id", claim.ID.String()),
		zap.String("wallet", wallet),
		zap.String("token", token.Token),
		zap.Int("xp_reward", credited),
	)

	claim.Status = entity.ClaimCompleted
	claim.TransactionHash = &receipt.TransactionHash
	claim.XPAwarded = credited
	claim.CompletedAt = &completedAt
	claim.UpdatedAt = completedAt

	resp := &dto.ClaimResponse{
		Claim:           toClaimItem(claim),
		XPReward:        credited,
		TransactionHash: receipt.TransactionHash,
		TotalXP:         user.XP,
		Level:           user.Level,
	}
	if res != nil {
		resp.TotalXP = res.User.XP
		resp.Level = res.User.Level
		resp.LeveledUp = res.LeveledUp()
	}
	return resp, nil
}

// complete marks a sent claim completed. A claim the sweeper failed while
// the send was in flight is completed anyway.
func (s *faucetService) complete(ctx context.Context, id uuid.UUID, txHash string, xpAwarded int, at time.Time) error {
	err := s.claims.MarkCompleted(ctx, id, txHash, xpAwarded, at)
	if !errors.Is(err, repository.ErrNotPending) {
		return err
	}
	logger.WarnCtx(ctx, "completing faucet claim failed as stale", zap.String("claim_id", id.String()))
	return s.claims.CompleteFailed(ctx, id, staleReason, txHash, xpAwarded, at)
}

// fail records a terminal failure, ignoring cancellation of ctx.
func (s *faucetService) fail(ctx context.Context, claim *entity.FaucetClaim, reason string) {
	if err := s.claims.MarkFailed(context.WithoutCancel(ctx), claim.ID, reason, s.clock.Now()); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("claim_id", claim.ID.String()))
		return
	}
	claim.Status = entity.ClaimFailed
	claim.ErrorMessage = &reason
	logger.WarnCtx(ctx, "faucet claim failed",
		zap.String("claim_id", claim.ID.String()),
		zap.String("reason", reason),
	)
}

func (s *faucetService) CheckEligibility(ctx context.Context, userID uuid.UUID, req dto.EligibilityRequest) (*dto.EligibilityResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, ok := s.cfg.FindToken(req.Token, req.Chain)
	if !ok {
		return nil, apperror.Wrap(apperror.ErrInvalidInput,
			fmt.Sprintf("token %s is not available on chain %s", req.Token, req.Chain))
	}
	return s.eligibility(ctx, user.WalletAddress, token)
}

// eligibility blocks on an in-flight pending claim or on a completed claim
// younger than the token's cooldown. Failed claims never block.
func (s *faucetService) eligibility(ctx context.Context, wallet string, token config.FaucetToken) (*dto.EligibilityResponse, error) {
	resp := &dto.EligibilityResponse{
		Eligible:      true,
		Token:         token.Token,
		Chain:         token.Chain,
		MaxAmount:     token.MaxAmount,
		CooldownHours: token.CooldownHours,
	}

	pending, err := s.claims.HasPending(ctx, wallet, token.Token, token.Chain)
	if err != nil {
		return nil, err
	}
	if pending {
		resp.Eligible = false
		resp.Reason = "a previous claim for this token is still pending"
		return resp, nil
	}

	last, err := s.claims.LatestCompleted(ctx, wallet, token.Token, token.Chain)
	if err != nil {
		return nil, err
	}
	if last != nil {
		next := last.CreatedAt.Add(token.Cooldown())
		if s.clock.Now().Before(next) {
			resp.Eligible = false
			resp.NextClaimAt = &next
			resp.Reason = fmt.Sprintf("not eligible for faucet claim, cooldown ends at %s",
				next.UTC().Format(time.RFC3339))
		}
	}
	return resp, nil
}

func (s *faucetService) History(ctx context.Context, userID uuid.UUID, query dto.HistoryQuery) (*commonDto.Paginated[dto.ClaimItem], error) {
	page := query.PageQuery.Normalize()
	filter := repository.ClaimFilter{UserID: &userID, Limit: page.Limit, Offset: page.Offset()}
	if query.Status != "" {
		status := entity.FaucetClaimStatus(query.Status)
		if !status.Valid() {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "unknown claim status")
		}
		filter.Status = status
	}

	claims, total, err := s.claims.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]dto.ClaimItem, 0, len(claims))
	for i := range claims {
		items = append(items, toClaimItem(&claims[i]))
	}
	return &commonDto.Paginated[dto.ClaimItem]{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *faucetService) AvailableTokens() []dto.TokenResponse {
	tokens := make([]dto.TokenResponse, 0, len(s.cfg.Tokens))
	for _, t := range s.cfg.Tokens {
		tokens = append(tokens, dto.TokenResponse{
			Token:         t.Token,
			Chain:         t.Chain,
			MaxAmount:     t.MaxAmount,
			CooldownHours: t.CooldownHours,
			Multiplier:    s.rules.Multiplier(t.Token),
		})
	}
	return tokens
}

// SweepStale fails pending claims older than the pending timeout.
func (s *faucetService) SweepStale(ctx context.Context) (int64, error) {
	if s.cfg.PendingTimeout <= 0 {
		return 0, nil
	}
	cutoff := s.clock.Now().Add(-s.cfg.PendingTimeout)
	n, err := s.claims.FailStalePending(ctx, cutoff, staleReason)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.InfoCtx(ctx, "failed stale faucet claims", zap.Int64("count", n))
	}
	return n, nil
}

func lockKey(wallet string, token config.FaucetToken) string {
	return fmt.Sprintf("faucet:%s:%s:%s", wallet, token.Token, token.Chain)
}

func toClaimItem(c *entity.FaucetClaim) dto.ClaimItem {
	return dto.ClaimItem{
		ID:              c.ID,
		WalletAddress:   c.WalletAddress,
		Token:           c.Token,
		Chain:           c.Chain,
		Amount:          c.Amount,
		Status:          string(c.Status),
		TransactionHash: c.TransactionHash,
		ErrorMessage:    c.ErrorMessage,
		CooldownUntil:   c.CooldownUntil,
		XPAwarded:       c.XPAwarded,
		CreatedAt:       c.CreatedAt,
		CompletedAt:     c.CompletedAt,
	}
}
