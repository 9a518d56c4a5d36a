package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/logger"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	"helios.network/testnetapi/internal/modules/xp/repository"
	"helios.network/testnetapi/pkg/apperror"
	"helios.network/testnetapi/pkg/clock"
	"helios.network/testnetapi/pkg/database"
	"helios.network/testnetapi/pkg/leveling"
)

// LevelUpNotifier is told about level increases after the change commits.
type LevelUpNotifier interface {
	NotifyLevelUp(ctx context.Context, user *entity.User, previousLevel int)
}

// Entry is one xp change for one user.
type Entry struct {
	UserID        uuid.UUID
	Amount        int
	Type          entity.XPActivityType
	Description   string
	Metadata      map[string]any
	RelatedUserID *uuid.UUID
	// ContributionAmount is credited to contribution xp alongside Amount.
	ContributionAmount int
	// Mutate runs on the locked user before it is saved.
	Mutate func(user *entity.User) error
}

// Result describes an applied entry.
type Result struct {
	User          *entity.User
	Activity      *entity.XPActivity
	PreviousLevel int
}

func (r *Result) LeveledUp() bool {
	return r != nil && r.User != nil && r.User.Level > r.PreviousLevel
}

// Ledger applies xp changes: the user row is locked, the balance and level
// are updated through entity.User.ApplyXP and one activity row is appended,
// all in the same transaction.
type Ledger struct {
	tx                 database.Transactor
	users              userRepo.UserRepository
	activities         repository.ActivityRepository
	levels             leveling.Table
	contributionLevels leveling.Table
	notifier           LevelUpNotifier
	clock              clock.Clock
}

type LedgerDeps struct {
	Transactor         database.Transactor
	Users              userRepo.UserRepository
	Activities         repository.ActivityRepository
	Levels             leveling.Table
	ContributionLevels leveling.Table
	Notifier           LevelUpNotifier
	Clock              clock.Clock
}

func NewLedger(deps LedgerDeps) *Ledger {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Levels == nil {
		deps.Levels = leveling.DefaultTable()
	}
	if deps.ContributionLevels == nil {
		deps.ContributionLevels = leveling.DefaultContributionTable()
	}
	return &Ledger{
		tx:                 deps.Transactor,
		users:              deps.Users,
		activities:         deps.Activities,
		levels:             deps.Levels,
		contributionLevels: deps.ContributionLevels,
		notifier:           deps.Notifier,
		clock:              deps.Clock,
	}
}

func (l *Ledger) Levels() leveling.Table {
	return l.levels
}

func (l *Ledger) ContributionLevels() leveling.Table {
	return l.contributionLevels
}

func (l *Ledger) Transactor() database.Transactor {
	return l.tx
}

// Apply runs e in its own transaction and announces a level-up on success.
func (l *Ledger) Apply(ctx context.Context, e Entry) (*Result, error) {
	var res *Result
	err := l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = l.ApplyInTx(ctx, e)
		return err
	})
	if err != nil {
		return nil, err
	}
	l.Announce(ctx, res)
	return res, nil
}

// ApplyInTx locks the user and applies e. ctx must carry a transaction;
// the caller announces results after commit.
func (l *Ledger) ApplyInTx(ctx context.Context, e Entry) (*Result, error) {
	user, err := l.users.LockByID(ctx, e.UserID)
	if err != nil {
		return nil, err
	}
	return l.ApplyLocked(ctx, user, e)
}

// ApplyLocked applies e to a user the caller already holds locked.
func (l *Ledger) ApplyLocked(ctx context.Context, user *entity.User, e Entry) (*Result, error) {
	if !e.Type.Valid() {
		return nil, apperror.Wrap(apperror.ErrInvalidInput, "unknown xp activity type")
	}

	prev, err := user.ApplyXP(e.Amount, l.levels)
	if err != nil {
		return nil, err
	}
	if e.ContributionAmount != 0 {
		if err := user.ApplyContributionXP(e.ContributionAmount, l.contributionLevels); err != nil {
			return nil, err
		}
	}
	if e.Mutate != nil {
		if err := e.Mutate(user); err != nil {
			return nil, err
		}
	}
	if err := l.users.Save(ctx, user); err != nil {
		return nil, err
	}

	res := &Result{User: user, PreviousLevel: prev}
	if e.Amount == 0 {
		return res, nil
	}

	activity := &entity.XPActivity{
		UserID:        user.ID,
		Amount:        e.Amount,
		Type:          e.Type,
		Description:   e.Description,
		Metadata:      toJSON(e.Metadata),
		RelatedUserID: e.RelatedUserID,
		CreatedAt:     l.clock.Now(),
	}
	if err := l.activities.Create(ctx, activity); err != nil {
		return nil, err
	}
	res.Activity = activity
	return res, nil
}

// Announce sends level-up notifications for committed results.
func (l *Ledger) Announce(ctx context.Context, results ...*Result) {
	if l.notifier == nil {
		return
	}
	for _, r := range results {
		if r.LeveledUp() {
			logger.InfoCtx(ctx, "user leveled up",
				zap.String("user_id", r.User.ID.String()),
				zap.Int("level", r.User.Level),
			)
			l.notifier.NotifyLevelUp(ctx, r.User, r.PreviousLevel)
		}
	}
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
