package directory

import (
	"context"
	"fmt"
	"sync"

	"github.com/LazarusTes/auth-portal-express/internal/models"
)

var _ IdentityStore = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	byEmail map[string]Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byEmail: make(map[string]Identity)}
}

func (m *MemoryStore) Insert(_ context.Context, id *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[id.Email]; ok {
		return models.ErrDuplicateEmail
	}
	m.byEmail[id.Email] = *id
	return nil
}

func (m *MemoryStore) GetByEmail(_ context.Context, email string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%w: identity", models.ErrNotFound)
	}
	return &id, nil
}

func (m *MemoryStore) Delete(_ context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for email, id := range m.byEmail {
		if id.AccountID == accountID {
			delete(m.byEmail, email)
		}
	}
	return nil
}
