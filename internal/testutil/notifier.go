package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"helios.network/testnetapi/internal/entity"
)

// LevelUp is one recorded level-up notification.
type LevelUp struct {
	UserID        uuid.UUID
	Level         int
	PreviousLevel int
}

// Received is one recorded xp transfer notification.
type Received struct {
	UserID uuid.UUID
	From   string
	Amount int
}

// Notifier records the notifications services emit.
type Notifier struct {
	mu       sync.Mutex
	LevelUps []LevelUp
	Received []Received
	Badges   []uuid.UUID
	Reviews  []entity.ApplicationStatus
}

func (n *Notifier) NotifyLevelUp(_ context.Context, user *entity.User, previousLevel int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.LevelUps = append(n.LevelUps, LevelUp{UserID: user.ID, Level: user.Level, PreviousLevel: previousLevel})
}

func (n *Notifier) NotifyXPReceived(_ context.Context, userID uuid.UUID, from string, amount int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Received = append(n.Received, Received{UserID: userID, From: from, Amount: amount})
}

func (n *Notifier) NotifyBadgeAwarded(_ context.Context, userID uuid.UUID, _ *entity.Badge) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Badges = append(n.Badges, userID)
}

func (n *Notifier) NotifyApplicationReviewed(_ context.Context, _ uuid.UUID, status entity.ApplicationStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Reviews = append(n.Reviews, status)
}
