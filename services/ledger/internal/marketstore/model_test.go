package marketstore

import (
	"context"
	"testing"
)

// memRepo is an in-memory Repository fake for exercising the membership
// test without a database.
type memRepo struct {
	stores map[string]*Store
}

func newMemRepo(names ...string) *memRepo {
	r := &memRepo{stores: map[string]*Store{}}
	for i, n := range names {
		id := string(rune('a' + i))
		r.stores[id] = &Store{ID: id, Name: n, Active: true}
	}
	return r
}

func (r *memRepo) Create(ctx context.Context, s *Store) error { r.stores[s.ID] = s; return nil }
func (r *memRepo) GetByID(ctx context.Context, id string) (*Store, error) {
	s, ok := r.stores[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}
func (r *memRepo) Update(ctx context.Context, s *Store) error { r.stores[s.ID] = s; return nil }
func (r *memRepo) Deactivate(ctx context.Context, id string) error {
	if s, ok := r.stores[id]; ok {
		s.Active = false
	}
	return nil
}
func (r *memRepo) ListActiveNames(ctx context.Context) ([]string, error) {
	var out []string
	for _, s := range r.stores {
		if s.Active {
			out = append(out, s.Name)
		}
	}
	return out, nil
}
func (r *memRepo) List(ctx context.Context) ([]*Store, error) {
	var out []*Store
	for _, s := range r.stores {
		out = append(out, s)
	}
	return out, nil
}

func TestIsMarketStoreSubstringMatch(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo("Mercadona"), nil)

	cases := []struct {
		candidate string
		want      bool
	}{
		{"Mercadona 123", true},
		{"MERCADONA SUPERMERCADO", true},
		{"mercadona", true},
		{"Unknown Shop", false},
		{"", false},
	}
	for _, c := range cases {
		got, err := svc.IsMarketStore(ctx, c.candidate)
		if err != nil {
			t.Fatalf("IsMarketStore(%q): %v", c.candidate, err)
		}
		if got != c.want {
			t.Errorf("IsMarketStore(%q) = %v, want %v", c.candidate, got, c.want)
		}
	}
}

func TestIsMarketStoreIgnoresInactiveStores(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo("Carrefour")
	repo.stores["a"].Active = false
	svc := NewService(repo, nil)

	got, err := svc.IsMarketStore(ctx, "Carrefour Express")
	if err != nil {
		t.Fatal(err)
	}
	if got {
		t.Error("expected an inactive store to not count toward membership")
	}
}
