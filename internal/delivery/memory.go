package delivery

import (
	"context"
	"sync"

	"github.com/tbourn/go-contact-intake/internal/config"
	"github.com/tbourn/go-contact-intake/internal/domain"
)

// MemoryStore keeps submissions in process memory. Contents are lost on
// restart.
type MemoryStore struct {
	mu   sync.RWMutex
	subs []domain.Submission
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Name() string { return config.BackendMemory }
func (m *MemoryStore) Kind() Kind   { return KindStore }

func (m *MemoryStore) Deliver(_ context.Context, s domain.Submission) error {
	m.mu.Lock()
	m.subs = append(m.subs, s)
	m.mu.Unlock()
	return nil
}

// List returns a newest-first copy.
func (m *MemoryStore) List(_ context.Context, limit int) ([]domain.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.subs)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Submission, 0, n)
	for i := len(m.subs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.subs[i])
	}
	return out, nil
}
