// Package segment implements C10, compiling a declarative filter
// spec into a set of matching user ids, and the Segment entity CRUD
// underneath it. Grounded on crm/internal/customer/repo.go's raw
// database/sql idiom, generalized from a single-row upsert to a
// filters-JSON entity store.
package segment

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// ErrNotFound signals a missing segment.
var ErrNotFound = errors.New("segment not found")

// Filters is the schema-less filter map spec.md §3 recognizes.
// Unknown keys are ignored by the compiler (spec.md §4.10).
type Filters struct {
	LastDays            *int           `json:"last_days,omitempty"`
	MinTotalSpent        *float64       `json:"min_total_spent,omitempty"`
	MinNumPurchases      *int           `json:"min_num_purchases,omitempty"`
	PreferencesContains  map[string]any `json:"preferences_contains,omitempty"`
}

// Segment is spec.md §3's Segment entity.
type Segment struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Filters     Filters   `json:"filters"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository persists segments.
type Repository interface {
	Create(ctx context.Context, s *Segment) error
	GetByID(ctx context.Context, id string) (*Segment, error)
	List(ctx context.Context, activeOnly bool) ([]*Segment, error)
}

// LedgerAggregates is the slice of the ledger sibling the compiler
// reads for spend/count windows.
type LedgerAggregates interface {
	AggregatesSince(ctx context.Context, since time.Time) (map[string]sdk.UserAggregate, error)
	AnyPurchaseUserIDs(ctx context.Context) ([]string, error)
}

// PreferenceSource resolves a user's preferences, inferring lazily
// (C9's get_preferences_with_inference) when the compiler needs
// preferences_contains.
type PreferenceSource interface {
	GetWithInference(ctx context.Context, userID string) (map[string]any, error)
}

// Service implements segment CRUD and the C10 filter compiler.
type Service struct {
	repo    Repository
	ledger  LedgerAggregates
	prefs   PreferenceSource
}

// New builds the segment service.
func New(repo Repository, ledger LedgerAggregates, prefs PreferenceSource) *Service {
	return &Service{repo: repo, ledger: ledger, prefs: prefs}
}

// Create persists a new segment, active by default.
func (s *Service) Create(ctx context.Context, seg *Segment) error {
	seg.Active = true
	now := time.Now()
	seg.CreatedAt, seg.UpdatedAt = now, now
	return s.repo.Create(ctx, seg)
}

// Get returns a segment by id.
func (s *Service) Get(ctx context.Context, id string) (*Segment, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns segments, optionally restricted to active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Segment, error) {
	return s.repo.List(ctx, activeOnly)
}

// PreviewUsers compiles a segment's filters into its matching user id
// set (spec.md §4.10's "preview-users" operation).
func (s *Service) PreviewUsers(ctx context.Context, id string) ([]string, error) {
	seg, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Compile(ctx, seg.Filters)
}

// Compile runs spec.md §4.10's five-step compilation order over
// filters, returning the matching set of user ids.
func (s *Service) Compile(ctx context.Context, f Filters) ([]string, error) {
	window := effectiveWindow(f.LastDays)

	// Clauses 1-3: spend/count aggregates over the window produce set A.
	var candidateSet map[string]struct{}
	haveAggregateFilter := f.MinTotalSpent != nil || f.MinNumPurchases != nil
	if haveAggregateFilter {
		aggs, err := s.ledger.AggregatesSince(ctx, window)
		if err != nil {
			return nil, err
		}
		candidateSet = map[string]struct{}{}
		for userID, agg := range aggs {
			if f.MinTotalSpent != nil && agg.TotalSpent < *f.MinTotalSpent {
				continue
			}
			if f.MinNumPurchases != nil && agg.NumPurchases < *f.MinNumPurchases {
				continue
			}
			candidateSet[userID] = struct{}{}
		}
	}

	// Clause 4: no preferences_contains -> result is A as-is (or the
	// full universe of purchasers when A was never narrowed).
	if len(f.PreferencesContains) == 0 {
		if candidateSet == nil {
			return s.ledger.AnyPurchaseUserIDs(ctx)
		}
		return setToSlice(candidateSet), nil
	}

	// Clause 5: candidates are A, or — if no spend/count filter ran —
	// the universe of users with any purchase history.
	var candidates []string
	if candidateSet != nil {
		candidates = setToSlice(candidateSet)
	} else {
		universe, err := s.ledger.AnyPurchaseUserIDs(ctx)
		if err != nil {
			return nil, err
		}
		candidates = universe
	}

	matched := make([]string, 0, len(candidates))
	for _, userID := range candidates {
		prefs, err := s.prefs.GetWithInference(ctx, userID)
		if err != nil {
			// spec.md §7: upstream outages in C9 during C10 degrade
			// gracefully — the user is skipped, not the whole compile.
			continue
		}
		if containsAll(prefs, f.PreferencesContains) {
			matched = append(matched, userID)
		}
	}
	return matched, nil
}

func effectiveWindow(lastDays *int) time.Time {
	if lastDays == nil {
		return time.Time{}
	}
	return time.Now().AddDate(0, 0, -*lastDays)
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func containsAll(preferences, want map[string]any) bool {
	for k, v := range want {
		got, ok := preferences[k]
		if !ok {
			return false
		}
		if toStr(got) != toStr(v) {
			return false
		}
	}
	return true
}

func toStr(v any) string {
	return fmt.Sprintf("%v", v)
}
