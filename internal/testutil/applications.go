package testutil

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/contributor/repository"
)

// ApplicationStore is an in-memory repository.ApplicationRepository.
type ApplicationStore struct {
	mu   sync.Mutex
	rows []entity.ContributorApplication
}

var _ repository.ApplicationRepository = (*ApplicationStore)(nil)

func NewApplicationStore() *ApplicationStore {
	return &ApplicationStore{}
}

func (s *ApplicationStore) Create(_ context.Context, app *entity.ContributorApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := app.BeforeCreate(nil); err != nil {
		return err
	}
	for _, a := range s.rows {
		if a.UserID == app.UserID {
			return gorm.ErrDuplicatedKey
		}
	}
	s.rows = append(s.rows, *app)
	return nil
}

func (s *ApplicationStore) Save(_ context.Context, app *entity.ContributorApplication) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.rows {
		if a.ID == app.ID {
			s.rows[i] = *app
			return nil
		}
	}
	s.rows = append(s.rows, *app)
	return nil
}

func (s *ApplicationStore) FindByID(_ context.Context, id uuid.UUID) (*entity.ContributorApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *ApplicationStore) FindByUser(_ context.Context, userID uuid.UUID) (*entity.ContributorApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.rows {
		if a.UserID == userID {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *ApplicationStore) List(_ context.Context, filter repository.ApplicationFilter) ([]entity.ContributorApplication, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []entity.ContributorApplication
	for i := len(s.rows) - 1; i >= 0; i-- {
		if filter.Status != "" && s.rows[i].Status != filter.Status {
			continue
		}
		matched = append(matched, s.rows[i])
	}
	return window(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (s *ApplicationStore) CountByStatus(_ context.Context) (map[entity.ApplicationStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[entity.ApplicationStatus]int64)
	for _, a := range s.rows {
		counts[a.Status]++
	}
	return counts, nil
}

func (s *ApplicationStore) snapshot() func() {
	s.mu.Lock()
	saved := append([]entity.ContributorApplication(nil), s.rows...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.rows = saved
		s.mu.Unlock()
	}
}
