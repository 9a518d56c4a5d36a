package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/badge/repository"
)

// BadgeStore is an in-memory repository.BadgeRepository.
type BadgeStore struct {
	mu     sync.Mutex
	badges []entity.Badge
	awards []entity.UserBadge
}

var _ repository.BadgeRepository = (*BadgeStore)(nil)

func NewBadgeStore() *BadgeStore {
	return &BadgeStore{}
}

func (s *BadgeStore) Create(_ context.Context, badge *entity.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := badge.BeforeCreate(nil); err != nil {
		return err
	}
	for _, b := range s.badges {
		if b.Name == badge.Name || b.Slug == badge.Slug {
			return gorm.ErrDuplicatedKey
		}
	}
	s.badges = append(s.badges, *badge)
	return nil
}

func (s *BadgeStore) Save(_ context.Context, badge *entity.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, b := range s.badges {
		if b.ID == badge.ID {
			idx = i
			continue
		}
		if b.Name == badge.Name || b.Slug == badge.Slug {
			return gorm.ErrDuplicatedKey
		}
	}
	if idx < 0 {
		s.badges = append(s.badges, *badge)
		return nil
	}
	s.badges[idx] = *badge
	return nil
}

func (s *BadgeStore) FindByID(_ context.Context, id uuid.UUID) (*entity.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.badges {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *BadgeStore) FindBySlug(_ context.Context, slug string) (*entity.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.badges {
		if b.Slug == slug {
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *BadgeStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.badges {
		if b.ID == id {
			s.badges = append(s.badges[:i], s.badges[i+1:]...)
			kept := s.awards[:0]
			for _, a := range s.awards {
				if a.BadgeID != id {
					kept = append(kept, a)
				}
			}
			s.awards = kept
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *BadgeStore) List(_ context.Context, filter repository.BadgeFilter) ([]entity.Badge, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []entity.Badge
	for i := len(s.badges) - 1; i >= 0; i-- {
		b := s.badges[i]
		if filter.Type != "" && b.Type != filter.Type {
			continue
		}
		if filter.Rarity != "" && b.Rarity != filter.Rarity {
			continue
		}
		matched = append(matched, b)
	}
	return window(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (s *BadgeStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.badges)), nil
}

func (s *BadgeStore) Award(_ context.Context, award *entity.UserBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.awards {
		if a.UserID == award.UserID && a.BadgeID == award.BadgeID {
			return gorm.ErrDuplicatedKey
		}
	}
	s.awards = append(s.awards, *award)
	return nil
}

func (s *BadgeStore) HasBadge(_ context.Context, userID, badgeID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.awards {
		if a.UserID == userID && a.BadgeID == badgeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *BadgeStore) ListByUser(_ context.Context, userID uuid.UUID) ([]entity.UserBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.UserBadge
	for _, a := range s.awards {
		if a.UserID != userID {
			continue
		}
		for _, b := range s.badges {
			if b.ID == a.BadgeID {
				a.Badge = b
			}
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AwardedAt.After(out[j].AwardedAt) })
	return out, nil
}

func (s *BadgeStore) CountAwards(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.awards)), nil
}

func (s *BadgeStore) snapshot() func() {
	s.mu.Lock()
	badges := append([]entity.Badge(nil), s.badges...)
	awards := append([]entity.UserBadge(nil), s.awards...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.badges, s.awards = badges, awards
		s.mu.Unlock()
	}
}
