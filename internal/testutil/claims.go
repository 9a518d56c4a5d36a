package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/faucet/repository"
)

// ClaimStore is an in-memory repository.ClaimRepository.
type ClaimStore struct {
	mu   sync.Mutex
	rows []entity.FaucetClaim
}

var _ repository.ClaimRepository = (*ClaimStore)(nil)

func NewClaimStore() *ClaimStore {
	return &ClaimStore{}
}

func (s *ClaimStore) Create(_ context.Context, claim *entity.FaucetClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := claim.BeforeCreate(nil); err != nil {
		return err
	}
	claim.WalletAddress = strings.ToLower(claim.WalletAddress)
	s.rows = append(s.rows, *claim)
	return nil
}

func (s *ClaimStore) FindByID(_ context.Context, id uuid.UUID) (*entity.FaucetClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.rows {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *ClaimStore) LatestCompleted(_ context.Context, wallet, token, chain string) (*entity.FaucetClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *entity.FaucetClaim
	for i := range s.rows {
		c := s.rows[i]
		if c.WalletAddress != strings.ToLower(wallet) || c.Token != token || c.Chain != chain || c.Status != entity.ClaimCompleted {
			continue
		}
		if latest == nil || c.CreatedAt.After(latest.CreatedAt) {
			latest = &c
		}
	}
	return latest, nil
}

func (s *ClaimStore) HasPending(_ context.Context, wallet, token, chain string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.rows {
		if c.WalletAddress == strings.ToLower(wallet) && c.Token == token && c.Chain == chain && c.Status == entity.ClaimPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *ClaimStore) MarkCompleted(_ context.Context, id uuid.UUID, txHash string, xpAwarded int, at time.Time) error {
	return s.transition(id, func(c *entity.FaucetClaim) {
		c.Status = entity.ClaimCompleted
		c.TransactionHash = &txHash
		c.XPAwarded = xpAwarded
		c.CompletedAt = &at
		c.UpdatedAt = at
	})
}

func (s *ClaimStore) MarkFailed(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	return s.transition(id, func(c *entity.FaucetClaim) {
		c.Status = entity.ClaimFailed
		c.ErrorMessage = &reason
		c.UpdatedAt = at
	})
}

func (s *ClaimStore) CompleteFailed(_ context.Context, id uuid.UUID, reason, txHash string, xpAwarded int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		c := &s.rows[i]
		if c.ID != id || c.Status != entity.ClaimFailed || c.ErrorMessage == nil || *c.ErrorMessage != reason {
			continue
		}
		c.Status = entity.ClaimCompleted
		c.ErrorMessage = nil
		c.TransactionHash = &txHash
		c.XPAwarded = xpAwarded
		c.CompletedAt = &at
		c.UpdatedAt = at
		return nil
	}
	return repository.ErrNotPending
}

func (s *ClaimStore) transition(id uuid.UUID, apply func(*entity.FaucetClaim)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID != id {
			continue
		}
		if s.rows[i].Status != entity.ClaimPending {
			return repository.ErrNotPending
		}
		apply(&s.rows[i])
		return nil
	}
	return repository.ErrNotPending
}

func (s *ClaimStore) FailStalePending(_ context.Context, cutoff time.Time, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.rows {
		if s.rows[i].Status == entity.ClaimPending && s.rows[i].CreatedAt.Before(cutoff) {
			s.rows[i].Status = entity.ClaimFailed
			s.rows[i].ErrorMessage = &reason
			n++
		}
	}
	return n, nil
}

func (s *ClaimStore) List(_ context.Context, filter repository.ClaimFilter) ([]entity.FaucetClaim, int64, error) {
	s.mu.Lock()
	var matched []entity.FaucetClaim
	for _, c := range s.rows {
		if filter.UserID != nil && c.UserID != *filter.UserID {
			continue
		}
		if filter.Wallet != "" && c.WalletAddress != strings.ToLower(filter.Wallet) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		matched = append(matched, c)
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return window(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (s *ClaimStore) CountByStatus(_ context.Context) (map[entity.FaucetClaimStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[entity.FaucetClaimStatus]int64{
		entity.ClaimPending:   0,
		entity.ClaimCompleted: 0,
		entity.ClaimFailed:    0,
	}
	for _, c := range s.rows {
		counts[c.Status]++
	}
	return counts, nil
}

// Put stores claim as-is, for seeding history.
func (s *ClaimStore) Put(claim entity.FaucetClaim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if claim.ID == uuid.Nil {
		claim.ID = uuid.New()
	}
	s.rows = append(s.rows, claim)
}

// All returns every stored claim in insertion order.
func (s *ClaimStore) All() []entity.FaucetClaim {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.FaucetClaim(nil), s.rows...)
}

func (s *ClaimStore) snapshot() func() {
	s.mu.Lock()
	saved := append([]entity.FaucetClaim(nil), s.rows...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.rows = saved
		s.mu.Unlock()
	}
}
