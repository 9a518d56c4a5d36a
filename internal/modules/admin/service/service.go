package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	"helios.network/testnetapi/internal/modules/admin/dto"
	auditRepo "helios.network/testnetapi/internal/modules/audit/repository"
	audit "helios.network/testnetapi/internal/modules/audit/service"
	badgeRepo "helios.network/testnetapi/internal/modules/badge/repository"
	contributorRepo "helios.network/testnetapi/internal/modules/contributor/repository"
	faucetRepo "helios.network/testnetapi/internal/modules/faucet/repository"
	onboardingRepo "helios.network/testnetapi/internal/modules/onboarding/repository"
	search "helios.network/testnetapi/internal/modules/search/service"
	userDto "helios.network/testnetapi/internal/modules/user/dto"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	userService "helios.network/testnetapi/internal/modules/user/service"
	xpDto "helios.network/testnetapi/internal/modules/xp/dto"
	xpRepo "helios.network/testnetapi/internal/modules/xp/repository"
	xpService "helios.network/testnetapi/internal/modules/xp/service"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/chain"
	commonDto "helios.network/testnetapi/pkg/dto"
)

const detailActivityLimit = 5

// Sweeper fails faucet claims stuck in pending.
type Sweeper interface {
	SweepStale(ctx context.Context) (int64, error)
}

type AdminService interface {
	Users(ctx context.Context, query dto.UserQuery) (*commonDto.Paginated[userDto.UserResponse], error)
	User(ctx context.Context, id uuid.UUID) (*dto.UserDetailResponse, error)
	UpdateStatus(ctx context.Context, actor audit.Actor, id uuid.UUID, req dto.UpdateStatusRequest) (*userDto.UserResponse, error)
	DeleteUser(ctx context.Context, actor audit.Actor, id uuid.UUID) error
	GrantXP(ctx context.Context, actor audit.Actor, req dto.GrantXPRequest) (*dto.GrantXPResponse, error)
	Activities(ctx context.Context, query xpDto.AdminActivityQuery) (*commonDto.Paginated[xpDto.ActivityResponse], error)
	Claims(ctx context.Context, query dto.ClaimQuery) (*commonDto.Paginated[entity.FaucetClaim], error)
	AuditLogs(ctx context.Context, query dto.AuditQuery) (*commonDto.Paginated[entity.AuditLog], error)
	SystemStats(ctx context.Context) (*dto.SystemStatsResponse, error)
	BlockchainStats(ctx context.Context) (*chain.NetworkStats, error)
	Reindex(ctx context.Context, actor audit.Actor) (*dto.JobResponse, error)
	SweepClaims(ctx context.Context, actor audit.Actor) (*dto.JobResponse, error)
}

type Deps struct {
	Users        userRepo.UserRepository
	UserService  userService.UserService
	Ledger       *xpService.Ledger
	XP           xpService.XPService
	Activities   xpRepo.ActivityRepository
	Claims       faucetRepo.ClaimRepository
	Sweeper      Sweeper
	Steps        onboardingRepo.StepRepository
	Badges       badgeRepo.BadgeRepository
	Applications contributorRepo.ApplicationRepository
	AuditLogs    auditRepo.AuditRepository
	Audit        *audit.Recorder
	Search       search.SearchService
	Chain        chain.StatsReader
}

type adminService struct {
	deps Deps
}

func NewAdminService(deps Deps) AdminService {
	if deps.Search == nil {
		deps.Search = search.NewDisabled()
	}
	return &adminService{deps: deps}
}

func (s *adminService) Users(ctx context.Context, query dto.UserQuery) (*commonDto.Paginated[userDto.UserResponse], error) {
	page := query.PageQuery.Normalize()
	sortBy := query.SortBy
	if sortBy == "" {
		sortBy = "createdAt"
	}
	users, total, err := s.deps.Users.List(ctx, userRepo.UserFilter{
		Query:             strings.TrimSpace(query.Query),
		Status:            entity.AccountStatus(query.Status),
		ContributorStatus: entity.ContributorStatus(query.ContributorStatus),
		SortBy:            sortBy,
		Desc:              query.SortOrder != "asc",
		Limit:             page.Limit,
		Offset:            page.Offset(),
	})
	if err != nil {
		return nil, err
	}

	data := make([]userDto.UserResponse, len(users))
	for i := range users {
		data[i] = *userDto.ToUserResponse(&users[i])
	}
	return &commonDto.Paginated[userDto.UserResponse]{
		Data: data,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *adminService) findUser(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	user, err := s.deps.Users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}
	return user, nil
}

func (s *adminService) User(ctx context.Context, id uuid.UUID) (*dto.UserDetailResponse, error) {
	user, err := s.findUser(ctx, id)
	if err != nil {
		return nil, err
	}
	app, err := s.deps.Applications.FindByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	badges, err := s.deps.Badges.ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := s.deps.XP.History(ctx, id, xpDto.HistoryQuery{
		PageQuery: commonDto.PageQuery{Page: 1, Limit: detailActivityLimit},
	})
	if err != nil {
		return nil, err
	}

	return &dto.UserDetailResponse{
		User:             userDto.ToUserResponse(user),
		Application:      app,
		BadgeCount:       len(badges),
		RecentActivities: history.Data,
	}, nil
}

func (s *adminService) UpdateStatus(ctx context.Context, actor audit.Actor, id uuid.UUID, req dto.UpdateStatusRequest) (*userDto.UserResponse, error) {
	status := entity.AccountStatus(req.Status)
	if !status.Valid() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid account status")
	}
	if id == actor.ID && status != entity.AccountActive {
		return nil, apperror.Wrap(apperror.ErrForbidden, "admins cannot suspend themselves")
	}

	var user *entity.User
	err := s.deps.Ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if _, err = s.findUser(ctx, id); err != nil {
			return err
		}
		user, err = s.deps.Users.LockByID(ctx, id)
		if err != nil {
			return err
		}
		previous := user.Status
		user.Status = status
		if err := s.deps.Users.Save(ctx, user); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, actor, audit.ActionUserStatus, "user", id.String(), map[string]any{
			"from":   string(previous),
			"to":     string(status),
			"reason": req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	return userDto.ToUserResponse(user), nil
}

func (s *adminService) DeleteUser(ctx context.Context, actor audit.Actor, id uuid.UUID) error {
	if id == actor.ID {
		return apperror.Wrap(apperror.ErrForbidden, "admins cannot delete themselves")
	}
	return s.deps.Ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		user, err := s.findUser(ctx, id)
		if err != nil {
			return err
		}
		if err := s.deps.UserService.Delete(ctx, id); err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, actor, audit.ActionUserDelete, "user", id.String(), map[string]any{
			"wallet_address": user.WalletAddress,
		})
	})
}

// GrantXP credits (or debits) xp as admin_grant and audits it in the same
// transaction.
func (s *adminService) GrantXP(ctx context.Context, actor audit.Actor, req dto.GrantXPRequest) (*dto.GrantXPResponse, error) {
	if req.Amount == 0 {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "amount must not be zero")
	}
	wallet, err := chain.NormalizeAddress(req.WalletAddress)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
	}
	user, err := s.deps.Users.FindByWallet(ctx, wallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "user not found")
		}
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	var res *xpService.Result
	err = s.deps.Ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.deps.Ledger.ApplyInTx(ctx, xpService.Entry{
			UserID:      user.ID,
			Amount:      req.Amount,
			Type:        entity.ActivityAdminGrant,
			Description: reason,
			Metadata:    map[string]any{"granted_by": actor.Wallet},
		})
		if err != nil {
			return err
		}
		return s.deps.Audit.Record(ctx, actor, audit.ActionXPGrant, "user", user.ID.String(), map[string]any{
			"amount": req.Amount,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.deps.Ledger.Announce(ctx, res)
	logger.InfoCtx(ctx, "admin xp grant",
		zap.String("user_id", user.ID.String()),
		zap.Int("amount", req.Amount),
	)
	return &dto.GrantXPResponse{
		UserID:        user.ID,
		WalletAddress: user.WalletAddress,
		Amount:        req.Amount,
		TotalXP:       res.User.XP,
		Level:         res.User.Level,
		LeveledUp:     res.LeveledUp(),
	}, nil
}

func (s *adminService) Activities(ctx context.Context, query xpDto.AdminActivityQuery) (*commonDto.Paginated[xpDto.ActivityResponse], error) {
	return s.deps.XP.AdminActivities(ctx, query)
}

func (s *adminService) Claims(ctx context.Context, query dto.ClaimQuery) (*commonDto.Paginated[entity.FaucetClaim], error) {
	page := query.PageQuery.Normalize()
	filter := faucetRepo.ClaimFilter{
		Status: entity.FaucetClaimStatus(query.Status),
		Limit:  page.Limit,
		Offset: page.Offset(),
	}
	if query.Wallet != "" {
		wallet, err := chain.NormalizeAddress(query.Wallet)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid wallet address")
		}
		filter.Wallet = wallet
	}

	claims, total, err := s.deps.Claims.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if claims == nil {
		claims = []entity.FaucetClaim{}
	}
	return &commonDto.Paginated[entity.FaucetClaim]{
		Data: claims,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *adminService) AuditLogs(ctx context.Context, query dto.AuditQuery) (*commonDto.Paginated[entity.AuditLog], error) {
	page := query.PageQuery.Normalize()
	filter := auditRepo.AuditFilter{
		Action: query.Action,
		Limit:  page.Limit,
		Offset: page.Offset(),
	}
	if query.AdminID != "" {
		id, err := uuid.Parse(query.AdminID)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, "invalid admin id")
		}
		filter.AdminID = &id
	}

	logs, total, err := s.deps.AuditLogs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []entity.AuditLog{}
	}
	return &commonDto.Paginated[entity.AuditLog]{
		Data: logs,
		Meta: commonDto.NewPaginationMeta(page, total),
	}, nil
}

func (s *adminService) SystemStats(ctx context.Context) (*dto.SystemStatsResponse, error) {
	agg, err := s.deps.Users.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	counts := dto.UserCounts{Total: agg.TotalUsers, Contributors: agg.TotalContributors}
	for _, c := range []struct {
		dst   *int64
		query string
		arg   any
	}{
		{&counts.Active, "status = ?", entity.AccountActive},
		{&counts.Suspended, "status = ?", entity.AccountSuspended},
		{&counts.Banned, "status = ?", entity.AccountBanned},
		{&counts.OnboardingCompleted, "onboarding_completed = ?", true},
	} {
		if *c.dst, err = s.deps.Users.CountWhere(ctx, c.query, c.arg); err != nil {
			return nil, err
		}
	}

	res := &dto.SystemStatsResponse{
		Users:     counts,
		TotalXP:   agg.TotalXP,
		AverageXP: agg.AverageXP,
	}
	if res.Activities, err = s.deps.Activities.Count(ctx); err != nil {
		return nil, err
	}
	if res.Badges, err = s.deps.Badges.Count(ctx); err != nil {
		return nil, err
	}
	if res.BadgeAwards, err = s.deps.Badges.CountAwards(ctx); err != nil {
		return nil, err
	}
	if res.Claims, err = s.deps.Claims.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if res.Applications, err = s.deps.Applications.CountByStatus(ctx); err != nil {
		return nil, err
	}
	if res.OnboardingSteps, err = s.deps.Steps.CountCompletedByStep(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *adminService) BlockchainStats(ctx context.Context) (*chain.NetworkStats, error) {
	stats, err := s.deps.Chain.NetworkStats(ctx)
	if err != nil {
		if errors.Is(err, chain.ErrNoRPC) {
			return nil, apperror.Wrap(apperror.ErrExternalService, err.Error())
		}
		logger.ErrorCtx(ctx, err, zap.String("op", "blockchain stats"))
		return nil, apperror.New(apperror.MapErrorToStatus(apperror.ErrExternalService), "failed to reach evm rpc", err)
	}
	return &stats, nil
}

func (s *adminService) Reindex(ctx context.Context, actor audit.Actor) (*dto.JobResponse, error) {
	if !s.deps.Search.Enabled() {
		return nil, apperror.Wrap(apperror.ErrExternalService, "search is not configured")
	}
	n, err := s.deps.Search.Reindex(ctx)
	if err != nil {
		return nil, apperror.New(apperror.MapErrorToStatus(apperror.ErrExternalService), "reindex failed", err)
	}
	if err := s.deps.Audit.Record(ctx, actor, audit.ActionSearchReindex, "search", "users", map[string]any{"documents": n}); err != nil {
		return nil, err
	}
	return &dto.JobResponse{Job: "search.reindex", Affected: int64(n)}, nil
}

func (s *adminService) SweepClaims(ctx context.Context, actor audit.Actor) (*dto.JobResponse, error) {
	n, err := s.deps.Sweeper.SweepStale(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Audit.Record(ctx, actor, audit.ActionFaucetSweep, "faucet", "pending", map[string]any{"failed": n}); err != nil {
		return nil, err
	}
	return &dto.JobResponse{Job: "faucet.sweep", Affected: n}, nil
}
