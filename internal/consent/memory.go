package consent

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store. It is the default backend; the
// Redis store exists for installations sharing consent state across
// browser profiles.
type MemoryStore struct {
	cooldown time.Duration
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	prompted map[Key]time.Time // last admitted prompt instant
	granted  map[Key]time.Time // consent expiry
}

// NewMemoryStore creates a store with the given windows. Non-positive
// values fall back to the defaults.
func NewMemoryStore(cooldown, ttl time.Duration) *MemoryStore {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		cooldown: cooldown,
		ttl:      ttl,
		now:      time.Now,
		prompted: make(map[Key]time.Time),
		granted:  make(map[Key]time.Time),
	}
}

// Admit implements Store. The whole check-and-set runs under one lock.
func (s *MemoryStore) Admit(_ context.Context, k Key) (Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.granted[k]; ok {
		if now.Before(expiry) {
			return Verdict{Cause: CauseConsent}, nil
		}
		delete(s.granted, k)
	}
	if last, ok := s.prompted[k]; ok && now.Sub(last) < s.cooldown {
		return Verdict{Cause: CauseCooldown}, nil
	}
	s.prompted[k] = now
	return Verdict{Admitted: true}, nil
}

// Grant implements Store.
func (s *MemoryStore) Grant(_ context.Context, k Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted[k] = s.now().Add(s.ttl)
	return nil
}

// Allowed implements Store.
func (s *MemoryStore) Allowed(_ context.Context, k Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.granted[k]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiry) {
		delete(s.granted, k)
		return false, nil
	}
	return true, nil
}

// ReleaseTab implements Store.
func (s *MemoryStore) ReleaseTab(_ context.Context, tabID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.prompted {
		if k.TabID == tabID {
			delete(s.prompted, k)
		}
	}
	for k := range s.granted {
		if k.TabID == tabID {
			delete(s.granted, k)
		}
	}
	return nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompted = make(map[Key]time.Time)
	s.granted = make(map[Key]time.Time)
	return nil
}
