// Package marketstore implements C2, the curated roster of valid
// market merchants and the case-insensitive substring membership test
// the ingestion worker uses to decide ticket validity.
package marketstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("market store not found")

// Store is a curated merchant entry (spec.md §3 MarketStore entity).
type Store struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository persists Store records with soft-delete via Active.
type Repository interface {
	Create(ctx context.Context, s *Store) error
	GetByID(ctx context.Context, id string) (*Store, error)
	Update(ctx context.Context, s *Store) error
	Deactivate(ctx context.Context, id string) error
	ListActiveNames(ctx context.Context) ([]string, error)
	List(ctx context.Context) ([]*Store, error)
}

// Service implements C2's CRUD and membership test.
type Service struct {
	repo  Repository
	cache NameCache
}

// NameCache short-TTL-caches the active-store-name list so the hot
// path (every ticket the worker resolves) avoids a DB round trip.
type NameCache interface {
	GetNames(ctx context.Context) ([]string, bool)
	SetNames(ctx context.Context, names []string)
	Invalidate(ctx context.Context)
}

// NewService builds the market-store service. cache may be nil, in
// which case every lookup goes straight to the repository.
func NewService(repo Repository, cache NameCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Create adds a new store entry, defaulting Active to true.
func (s *Service) Create(ctx context.Context, store *Store) error {
	store.Active = true
	store.CreatedAt = time.Now()
	store.UpdatedAt = store.CreatedAt
	if err := s.repo.Create(ctx, store); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Get returns a store by id.
func (s *Service) Get(ctx context.Context, id string) (*Store, error) {
	return s.repo.GetByID(ctx, id)
}

// Update persists changes to an existing store.
func (s *Service) Update(ctx context.Context, store *Store) error {
	store.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, store); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Deactivate soft-deletes a store (spec.md §9: soft-delete, never
// hard-delete market stores).
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// List returns every store (active and inactive) for admin CRUD views.
func (s *Service) List(ctx context.Context) ([]*Store, error) {
	return s.repo.List(ctx)
}

// IsMarketStore reports whether any active store's name is a
// case-insensitive substring of candidate (spec.md §4.2).
func (s *Service) IsMarketStore(ctx context.Context, candidate string) (bool, error) {
	names, err := s.activeNames(ctx)
	if err != nil {
		return false, err
	}
	candidateLower := strings.ToLower(strings.TrimSpace(candidate))
	if candidateLower == "" {
		return false, nil
	}
	for _, name := range names {
		if strings.Contains(candidateLower, strings.ToLower(name)) {
			return true, nil
		}
	}
	return false, nil
}

// ListNames returns the active store names used by C5/C6.
func (s *Service) ListNames(ctx context.Context) ([]string, error) {
	return s.activeNames(ctx)
}

func (s *Service) activeNames(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		if names, ok := s.cache.GetNames(ctx); ok {
			return names, nil
		}
	}
	names, err := s.repo.ListActiveNames(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetNames(ctx, names)
	}
	return names, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
