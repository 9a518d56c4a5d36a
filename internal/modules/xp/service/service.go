package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	"helios.network/testnetapi/internal/modules/xp/dto"
	"helios.network/testnetapi/internal/modules/xp/repository"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/clock"
	commonDto "helios.network/testnetapi/pkg/dto"
)

const (
	// DailyCooldown is the rolling window between daily claims.
	DailyCooldown = 24 * time.Hour
	// DefaultDailyAmount applies when no positive daily amount is configured.
	// A zero amount writes no activity row and so would never start the cooldown.
	DefaultDailyAmount = 50
)

type Config struct {
	DailyAmount     int
	MaxTransfer     int
	ActivityRewards map[string]int
}

// TransferNotifier is told when a user receives xp from another user.
type TransferNotifier interface {
	NotifyXPReceived(ctx context.Context, userID uuid.UUID, from string, amount int)
}

type XPService interface {
	ClaimDaily(ctx context.Context, userID uuid.UUID) (*dto.DailyClaimResponse, error)
	DailyStatus(ctx context.Context, userID uuid.UUID) (*dto.DailyStatusResponse, error)
	LogActivity(ctx context.Context, userID uuid.UUID, req dto.LogActivityRequest) (*dto.ActivityResultResponse, error)
	Transfer(ctx context.Context, senderID uuid.UUID, req dto.TransferRequest) (*dto.TransferResponse, error)
	History(ctx context.Context, userID uuid.UUID, query dto.HistoryQuery) (*commonDto.Paginated[dto.ActivityResponse], error)
	AdminActivities(ctx context.Context, query dto.AdminActivityQuery) (*commonDto.Paginated[dto.ActivityResponse], error)
}

type xpService struct {
	ledger     *Ledger
	users      userRepo.UserRepository
	activities repository.ActivityRepository
	notifier   TransferNotifier
	clock      clock.Clock
	cfg        Config
}

func NewXPService(
	ledger *Ledger,
	users userRepo.UserRepository,
	activities repository.ActivityRepository,
	notifier TransferNotifier,
	clk clock.Clock,
	cfg Config,
) XPService {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.DailyAmount <= 0 {
		cfg.DailyAmount = DefaultDailyAmount
	}
	return &xpService{
		ledger:     ledger,
		users:      users,
		activities: activities,
		notifier:   notifier,
		clock:      clk,
		cfg:        cfg,
	}
}

func (s *xpService) ClaimDaily(ctx context.Context, userID uuid.UUID) (*dto.DailyClaimResponse, error) {
	var (
		res       *Result
		claimedAt time.Time
	)
	err := s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		// The row lock serializes concurrent claims by the same user.
		user, err := s.users.LockByID(ctx, userID)
		if err != nil {
			return err
		}

		last, err := s.activities.LatestByType(ctx, userID, entity.ActivityDailyClaim)
		if err != nil {
			return err
		}
		claimedAt = s.clock.Now()
		if last != nil {
			next := last.CreatedAt.Add(DailyCooldown)
			if claimedAt.Before(next) {
				return &apperror.AppError{
					Code:    http.StatusBadRequest,
					Message: fmt.Sprintf("daily xp already claimed, next claim available at %s", next.UTC().Format(time.RFC3339)),
					Err:     apperror.ErrNotEligible,
				}
			}
		}

		res, err = s.ledger.ApplyLocked(ctx, user, Entry{
			UserID:      userID,
			Amount:      s.cfg.DailyAmount,
			Type:        entity.ActivityDailyClaim,
			Description: "Daily XP claim",
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.ledger.Announce(ctx, res)

	return &dto.DailyClaimResponse{
		XPGained:    s.cfg.DailyAmount,
		TotalXP:     res.User.XP,
		Level:       res.User.Level,
		LeveledUp:   res.LeveledUp(),
		NextClaimAt: claimedAt.Add(DailyCooldown),
	}, nil
}

func (s *xpService) DailyStatus(ctx context.Context, userID uuid.UUID) (*dto.DailyStatusResponse, error) {
	last, err := s.activities.LatestByType(ctx, userID, entity.ActivityDailyClaim)
	if err != nil {
		return nil, err
	}

	status := &dto.DailyStatusResponse{Eligible: true, Amount: s.cfg.DailyAmount}
	if last != nil {
		next := last.CreatedAt.Add(DailyCooldown)
		status.LastClaimAt = &last.CreatedAt
		status.NextClaimAt = &next
		status.Eligible = !s.clock.Now().Before(next)
	}
	return status, nil
}

func (s *xpService) LogActivity(ctx context.Context, userID uuid.UUID, req dto.LogActivityRequest) (*dto.ActivityResultResponse, error) {
	activityType, err := entity.ParseXPActivityType(req.ActivityType)
	if err != nil || !activityType.Loggable() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "activity type cannot be logged")
	}

	reward, ok := s.cfg.ActivityRewards[string(activityType)]
	if !ok || reward <= 0 {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "activity type has no reward configured")
	}

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Activity: %s", strings.ReplaceAll(string(activityType), "_", " "))
	}

	entry := Entry{
		UserID:      userID,
		Amount:      reward,
		Type:        activityType,
		Description: description,
		Metadata:    req.Metadata,
	}
	if activityType == entity.ActivityContribution {
		entry.ContributionAmount = reward
	}

	res, err := s.ledger.Apply(ctx, entry)
	if err != nil {
		return nil, err
	}

	return &dto.ActivityResultResponse{
		Activity:  toActivityResponse(res.Activity),
		TotalXP:   res.User.XP,
		Level:     res.User.Level,
		LeveledUp: res.LeveledUp(),
	}, nil
}

func (s *xpService) Transfer(ctx context.Context, senderID uuid.UUID, req dto.TransferRequest) (*dto.TransferResponse, error) {
	if req.Amount <= 0 {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "amount must be a positive integer")
	}
	if req.Amount > s.cfg.MaxTransfer {
		return nil, apperror.Wrap(apperror.ErrLimitExceeded,
			fmt.Sprintf("amount exceeds the maximum transfer of %d xp", s.cfg.MaxTransfer))
	}

	recipient, err := s.users.FindByWallet(ctx, req.ToWallet)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Wrap(apperror.ErrNotFound, "recipient wallet not found")
		}
		return nil, err
	}
	if recipient.ID == senderID {
		return nil, apperror.Wrap(apperror.ErrBadRequest, "cannot transfer xp to yourself")
	}

	var senderRes, recipientRes *Result
	err = s.ledger.Transactor().WithinTransaction(ctx, func(ctx context.Context) error {
		sender, receiver, err := s.lockPair(ctx, senderID, recipient.ID)
		if err != nil {
			return err
		}
		if sender.XP < req.Amount {
			return apperror.Wrap(apperror.ErrInsufficientXP, "insufficient xp balance")
		}

		meta := map[string]any{"to_wallet": receiver.WalletAddress}
		if req.Note != "" {
			meta["note"] = req.Note
		}
		senderRes, err = s.ledger.ApplyLocked(ctx, sender, Entry{
			UserID:        sender.ID,
			Amount:        -req.Amount,
			Type:          entity.ActivityTransfer,
			Description:   fmt.Sprintf("Sent %d XP to %s", req.Amount, receiver.WalletAddress),
			Metadata:      meta,
			RelatedUserID: &receiver.ID,
		})
		if err != nil {
			return err
		}

		recipientRes, err = s.ledger.ApplyLocked(ctx, receiver, Entry{
			UserID:        receiver.ID,
			Amount:        req.Amount,
			Type:          entity.ActivityTransfer,
			Description:   fmt.Sprintf("Received %d XP from %s", req.Amount, sender.WalletAddress),
			Metadata:      map[string]any{"from_wallet": sender.WalletAddress},
			RelatedUserID: &sender.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Announce(ctx, recipientRes)
	if s.notifier != nil {
		s.notifier.NotifyXPReceived(ctx, recipientRes.User.ID, senderRes.User.DisplayName(), req.Amount)
	}

	return &dto.TransferResponse{
		Amount:          req.Amount,
		RecipientWallet: recipientRes.User.WalletAddress,
		SenderXP:        senderRes.User.XP,
		SenderLevel:     senderRes.User.Level,
	}, nil
}

// lockPair locks both rows in id order so opposing transfers cannot deadlock.
func (s *xpService) lockPair(ctx context.Context, senderID, recipientID uuid.UUID) (*entity.User, *entity.User, error) {
	first, second := senderID, recipientID
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}

	a, err := s.users.LockByID(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.users.LockByID(ctx, second)
	if err != nil {
		return nil, nil, err
	}

	if a.ID == senderID {
		return a, b, nil
	}
	return b, a, nil
}

func (s *xpService) History(ctx context.Context, userID uuid.UUID, query dto.HistoryQuery) (*commonDto.Paginated[dto.ActivityResponse], error) {
	page := query.PageQuery.Normalize()
	filter := repository.ActivityFilter{UserID: &userID, Limit: page.Limit, Offset: page.Offset()}
	if query.Type != "" {
		t, err := entity.ParseXPActivityType(query.Type)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, err.Error())
		}
		filter.Type = t
	}

	activities, total, err := s.activities.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return paginate(activities, page, total), nil
}

func (s *xpService) AdminActivities(ctx context.Context, query dto.AdminActivityQuery) (*commonDto.Paginated[dto.ActivityResponse], error) {
	page := query.PageQuery.Normalize()
	filter := repository.ActivityFilter{WithUser: true, Limit: page.Limit, Offset: page.Offset()}

	if query.Type != "" {
		t, err := entity.ParseXPActivityType(query.Type)
		if err != nil {
			return nil, apperror.Wrap(apperror.ErrInvalidInput, err.Error())
		}
		filter.Type = t
	}
	if query.Wallet != "" {
		user, err := s.users.FindByWallet(ctx, query.Wallet)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return paginate(nil, page, 0), nil
			}
			return nil, err
		}
		filter.UserID = &user.ID
	}

	activities, total, err := s.activities.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return paginate(activities, page, total), nil
}

func paginate(activities []entity.XPActivity, page commonDto.PageQuery, total int64) *commonDto.Paginated[dto.ActivityResponse] {
	items := make([]dto.ActivityResponse, 0, len(activities))
	for i := range activities {
		items = append(items, toActivityResponse(&activities[i]))
	}
	return &commonDto.Paginated[dto.ActivityResponse]{
		Data: items,
		Meta: commonDto.NewPaginationMeta(page, total),
	}
}

func toActivityResponse(a *entity.XPActivity) dto.ActivityResponse {
	resp := dto.ActivityResponse{
		ID:            a.ID,
		Amount:        a.Amount,
		Type:          string(a.Type),
		Description:   a.Description,
		Metadata:      a.Metadata,
		RelatedUserID: a.RelatedUserID,
		CreatedAt:     a.CreatedAt,
	}
	if a.User != nil {
		resp.WalletAddress = a.User.WalletAddress
	}
	return resp
}
