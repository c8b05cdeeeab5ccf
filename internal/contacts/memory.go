package contacts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the process-lifetime registry used when no database is
// configured.
type MemoryStore struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: map[string]Contact{}}
}

func (s *MemoryStore) Register(_ context.Context, c Contact) (Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, ok := s.contacts[c.WaID]
	if !ok {
		existing = Contact{ID: uuid.NewString(), WaID: c.WaID, CreatedAt: now}
	}
	existing.PhoneNumber = c.PhoneNumber
	existing.DisplayName = c.DisplayName
	existing.Active = true
	existing.UpdatedAt = now
	s.contacts[c.WaID] = existing
	return existing, nil
}

func (s *MemoryStore) List(context.Context) ([]Contact, error) {
	out := s.snapshot(false)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListActive(context.Context) ([]Contact, error) {
	out := s.snapshot(true)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) snapshot(activeOnly bool) []Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Contact, 0, len(s.contacts))
	for _, c := range s.contacts {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out
}
