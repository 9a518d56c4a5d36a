package testutil

import (
	"context"
	"sync"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/modules/audit/repository"
)

// AuditStore is an in-memory repository.AuditRepository.
type AuditStore struct {
	mu   sync.Mutex
	rows []entity.AuditLog
}

var _ repository.AuditRepository = (*AuditStore)(nil)

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Create(_ context.Context, log *entity.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := log.BeforeCreate(nil); err != nil {
		return err
	}
	s.rows = append(s.rows, *log)
	return nil
}

func (s *AuditStore) List(_ context.Context, filter repository.AuditFilter) ([]entity.AuditLog, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first.
	var matched []entity.AuditLog
	for i := len(s.rows) - 1; i >= 0; i-- {
		l := s.rows[i]
		if filter.AdminID != nil && l.AdminID != *filter.AdminID {
			continue
		}
		if filter.Action != "" && l.Action != filter.Action {
			continue
		}
		matched = append(matched, l)
	}
	return window(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

// Actions returns the recorded actions in insertion order.
func (s *AuditStore) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.rows))
	for i, l := range s.rows {
		out[i] = l.Action
	}
	return out
}

func (s *AuditStore) snapshot() func() {
	s.mu.Lock()
	saved := append([]entity.AuditLog(nil), s.rows...)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.rows = saved
		s.mu.Unlock()
	}
}
