package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	"helios.network/testnetapi/internal/modules/audit/repository"
)

// Audit actions.
const (
	ActionUserStatus        = "user.status"
	ActionUserDelete        = "user.delete"
	ActionXPGrant           = "xp.grant"
	ActionBadgeCreate       = "badge.create"
	ActionBadgeUpdate       = "badge.update"
	ActionBadgeDelete       = "badge.delete"
	ActionBadgeAssign       = "badge.assign"
	ActionApplicationReview = "contributor.review"
	ActionContributorRole   = "contributor.assign_role"
	ActionSearchReindex     = "search.reindex"
	ActionFaucetSweep       = "faucet.sweep"
)

// Actor is the admin performing a mutation.
type Actor struct {
	ID     uuid.UUID
	Wallet string
}

// Recorder appends audit log entries. Record joins the caller's
// transaction when ctx carries one.
type Recorder struct {
	repo repository.AuditRepository
}

func NewRecorder(repo repository.AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

func (r *Recorder) Record(ctx context.Context, actor Actor, action, targetType, targetID string, details map[string]any) error {
	entry := &entity.AuditLog{
		AdminID:     actor.ID,
		AdminWallet: actor.Wallet,
		Action:      action,
		TargetType:  targetType,
		TargetID:    targetID,
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		entry.Details = datatypes.JSON(raw)
	}
	if err := r.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}

	logger.InfoCtx(ctx, "admin action",
		zap.String("admin_wallet", actor.Wallet),
		zap.String("action", action),
		zap.String("target_type", targetType),
		zap.String("target_id", targetID),
	)
	return nil
}
