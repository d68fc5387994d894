package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go-calc-api/internal/model"
	"go-calc-api/pkg/apierror"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]model.User{}}
}

func (s *fakeUserStore) Create(_ context.Context, u model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *fakeUserStore) FindByID(_ context.Context, id string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return model.User{}, apierror.NotFound("user not found", id)
}

func (s *fakeUserStore) FindByLogin(_ context.Context, login string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login) {
			return u, nil
		}
	}
	return model.User{}, apierror.NotFound("user not found", "")
}

func (s *fakeUserStore) ExistsByUsername(_ context.Context, username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

type fakeBlacklistStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

func newFakeBlacklistStore() *fakeBlacklistStore {
	return &fakeBlacklistStore{entries: map[string]time.Time{}}
}

func (s *fakeBlacklistStore) Insert(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[jti]; exists {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

func (s *fakeBlacklistStore) Contains(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, exists := s.entries[jti]
	return exists && expiresAt.After(time.Now()), nil
}

func (s *fakeBlacklistStore) CleanExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	now := time.Now()
	for jti, expiresAt := range s.entries {
		if !expiresAt.After(now) {
			delete(s.entries, jti)
			removed++
		}
	}
	return removed, nil
}

type fakeCalculationStore struct {
	mu           sync.Mutex
	calculations map[string]model.Calculation
}

func newFakeCalculationStore() *fakeCalculationStore {
	return &fakeCalculationStore{calculations: map[string]model.Calculation{}}
}

func (s *fakeCalculationStore) Create(_ context.Context, c model.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calculations[c.ID] = c
	return nil
}

func (s *fakeCalculationStore) FindByID(_ context.Context, userID string, id string) (model.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calculations[id]; ok && c.UserID == userID {
		return c, nil
	}
	return model.Calculation{}, apierror.NotFound("calculation not found", id)
}

func (s *fakeCalculationStore) ListByUser(_ context.Context, userID string) ([]model.Calculation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Calculation, 0)
	for _, c := range s.calculations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeCalculationStore) Update(_ context.Context, c model.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.calculations[c.ID]
	if !ok || existing.UserID != c.UserID {
		return apierror.NotFound("calculation not found", c.ID)
	}
	s.calculations[c.ID] = c
	return nil
}

func (s *fakeCalculationStore) Delete(_ context.Context, userID string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.calculations[id]; ok && c.UserID == userID {
		delete(s.calculations, id)
		return nil
	}
	return apierror.NotFound("calculation not found", id)
}
