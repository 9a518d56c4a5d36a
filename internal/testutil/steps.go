package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/onboarding/repository"
)

type stepKey struct {
	user uuid.UUID
	key  entity.StepKey
}

// StepStore is an in-memory repository.StepRepository.
type StepStore struct {
	mu    sync.Mutex
	rows  map[stepKey]entity.OnboardingStep
	order []stepKey
}

var _ repository.StepRepository = (*StepStore)(nil)

func NewStepStore() *StepStore {
	return &StepStore{rows: make(map[stepKey]entity.OnboardingStep)}
}

func (s *StepStore) Find(_ context.Context, userID uuid.UUID, key entity.StepKey) (*entity.OnboardingStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.rows[stepKey{userID, key}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *StepStore) ListByUser(_ context.Context, userID uuid.UUID) ([]entity.OnboardingStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.OnboardingStep
	for _, k := range s.order {
		if st, ok := s.rows[k]; ok && k.user == userID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *StepStore) Upsert(_ context.Context, step *entity.OnboardingStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stepKey{step.UserID, step.StepKey}
	if existing, ok := s.rows[k]; ok {
		step.ID = existing.ID
	} else {
		if err := step.BeforeCreate(nil); err != nil {
			return err
		}
		s.order = append(s.order, k)
	}
	s.rows[k] = *step
	return nil
}

func (s *StepStore) Delete(_ context.Context, userID uuid.UUID, key entity.StepKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := stepKey{userID, key}
	if _, ok := s.rows[k]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(s.rows, k)
	for i, o := range s.order {
		if o == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *StepStore) CountCompletedByStep(_ context.Context) (map[entity.StepKey]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[entity.StepKey]int64)
	for _, key := range entity.AllSteps() {
		counts[key] = 0
	}
	for _, st := range s.rows {
		if st.Status == entity.StepCompleted {
			counts[st.StepKey]++
		}
	}
	return counts, nil
}

func (s *StepStore) snapshot() func() {
	s.mu.Lock()
	rows := make(map[stepKey]entity.OnboardingStep, len(s.rows))
	for k, v := range s.rows {
		rows[k] = v
	}
	order := append([]stepKey(nil), s.order...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.rows = rows
		s.order = order
		s.mu.Unlock()
	}
}
