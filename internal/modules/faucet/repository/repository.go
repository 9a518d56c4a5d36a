package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/pkg/database"
)

// ErrNotPending is returned when a transition targets a claim that already
// reached a terminal state.
var ErrNotPending = errors.New("faucet claim is no longer pending")

type ClaimFilter struct {
	UserID *uuid.UUID
	Wallet string
	Status entity.FaucetClaimStatus
	Limit  int
	Offset int
}

type ClaimRepository interface {
	Create(ctx context.Context, claim *entity.FaucetClaim) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.FaucetClaim, error)
	// LatestCompleted returns nil without error when there is none.
	LatestCompleted(ctx context.Context, wallet, token, chain string) (*entity.FaucetClaim, error)
	HasPending(ctx context.Context, wallet, token, chain string) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, txHash string, xpAwarded int, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	// CompleteFailed completes a claim that was failed with reason, for a
	// send that finished after the sweeper gave up on it.
	CompleteFailed(ctx context.Context, id uuid.UUID, reason, txHash string, xpAwarded int, at time.Time) error
	// FailStalePending fails every pending claim created before cutoff.
	FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error)
	List(ctx context.Context, filter ClaimFilter) ([]entity.FaucetClaim, int64, error)
	CountByStatus(ctx context.Context) (map[entity.FaucetClaimStatus]int64, error)
}

type claimRepository struct {
	db *gorm.DB
}

func NewClaimRepository(db *gorm.DB) ClaimRepository {
	return &claimRepository{db: db}
}

func (r *claimRepository) Create(ctx context.Context, claim *entity.FaucetClaim) error {
	return database.Conn(ctx, r.db).Create(claim).Error
}

func (r *claimRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.FaucetClaim, error) {
	var claim entity.FaucetClaim
	if err := database.Conn(ctx, r.db).First(&claim, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *claimRepository) LatestCompleted(ctx context.Context, wallet, token, chain string) (*entity.FaucetClaim, error) {
	var claim entity.FaucetClaim
	err := database.Conn(ctx, r.db).
		Where("wallet_address = ? AND token = ? AND chain = ? AND status = ?",
			strings.ToLower(wallet), token, chain, entity.ClaimCompleted).
		Order("created_at DESC").
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &claim, nil
}

func (r *claimRepository) HasPending(ctx context.Context, wallet, token, chain string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&entity.FaucetClaim{}).
		Where("wallet_address = ? AND token = ? AND chain = ? AND status = ?",
			strings.ToLower(wallet), token, chain, entity.ClaimPending).
		Count(&count).Error
	return count > 0, err
}

func (r *claimRepository) MarkCompleted(ctx context.Context, id uuid.UUID, txHash string, xpAwarded int, at time.Time) error {
	return r.transition(ctx, id, map[string]any{
		"status":           entity.ClaimCompleted,
		"transaction_hash": txHash,
		"xp_awarded":       xpAwarded,
		"completed_at":     at,
		"updated_at":       at,
	})
}

func (r *claimRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.transition(ctx, id, map[string]any{
		"status":        entity.ClaimFailed,
		"error_message": reason,
		"updated_at":    at,
	})
}

func (r *claimRepository) CompleteFailed(ctx context.Context, id uuid.UUID, reason, txHash string, xpAwarded int, at time.Time) error {
	res := database.Conn(ctx, r.db).Model(&entity.FaucetClaim{}).
		Where("id = ? AND status = ? AND error_message = ?", id, entity.ClaimFailed, reason).
		Updates(map[string]any{
			"status":           entity.ClaimCompleted,
			"error_message":    nil,
			"transaction_hash": txHash,
			"xp_awarded":       xpAwarded,
			"completed_at":     at,
			"updated_at":       at,
		})
	return rowsOrNotPending(res)
}

// transition only touches pending rows so terminal states stay terminal.
func (r *claimRepository) transition(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := database.Conn(ctx, r.db).Model(&entity.FaucetClaim{}).
		Where("id = ? AND status = ?", id, entity.ClaimPending).
		Updates(updates)
	return rowsOrNotPending(res)
}

func rowsOrNotPending(res *gorm.DB) error {
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *claimRepository) FailStalePending(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	res := database.Conn(ctx, r.db).Model(&entity.FaucetClaim{}).
		Where("status = ? AND created_at < ?", entity.ClaimPending, cutoff).
		Updates(map[string]any{
			"status":        entity.ClaimFailed,
			"error_message": reason,
			"updated_at":    gorm.Expr("NOW()"),
		})
	return res.RowsAffected, res.Error
}

func (r *claimRepository) List(ctx context.Context, filter ClaimFilter) ([]entity.FaucetClaim, int64, error) {
	query := database.Conn(ctx, r.db).Model(&entity.FaucetClaim{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Wallet != "" {
		query = query.Where("wallet_address = ?", strings.ToLower(filter.Wallet))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var claims []entity.FaucetClaim
	if err := query.Order("created_at DESC").Find(&claims).Error; err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

func (r *claimRepository) CountByStatus(ctx context.Context) (map[entity.FaucetClaimStatus]int64, error) {
	var rows []struct {
		Status entity.FaucetClaimStatus
		Count  int64
	}
	err := database.Conn(ctx, r.db).Model(&entity.FaucetClaim{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[entity.FaucetClaimStatus]int64{
		entity.ClaimPending:   0,
		entity.ClaimCompleted: 0,
		entity.ClaimFailed:    0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
