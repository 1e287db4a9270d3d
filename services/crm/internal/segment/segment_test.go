package segment

import (
	"context"
	"testing"
	"time"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

type fakeLedger struct {
	aggregates map[string]sdk.UserAggregate
	universe   []string
}

func (f *fakeLedger) AggregatesSince(ctx context.Context, since time.Time) (map[string]sdk.UserAggregate, error) {
	return f.aggregates, nil
}

func (f *fakeLedger) AnyPurchaseUserIDs(ctx context.Context) ([]string, error) {
	return f.universe, nil
}

type fakePreferences struct {
	byUser map[string]map[string]any
	errFor map[string]bool
}

func (f *fakePreferences) GetWithInference(ctx context.Context, userID string) (map[string]any, error) {
	if f.errFor[userID] {
		return nil, errUpstream
	}
	return f.byUser[userID], nil
}

var errUpstream = &testErr{"upstream unavailable"}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }

func intp(n int) *int          { return &n }
func floatp(f float64) *float64 { return &f }

func TestCompileSpendFilterOnly(t *testing.T) {
	ledger := &fakeLedger{aggregates: map[string]sdk.UserAggregate{
		"u1": {TotalSpent: 100, NumPurchases: 5},
		"u2": {TotalSpent: 10, NumPurchases: 1},
	}}
	svc := New(nil, ledger, &fakePreferences{})

	users, err := svc.Compile(context.Background(), Filters{MinTotalSpent: floatp(50)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("expected [u1], got %v", users)
	}
}

func TestCompileNoFiltersReturnsUniverse(t *testing.T) {
	ledger := &fakeLedger{universe: []string{"u1", "u2"}}
	svc := New(nil, ledger, &fakePreferences{})

	users, err := svc.Compile(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("expected full universe, got %v", users)
	}
}

func TestCompilePreferencesContainsFromAggregateCandidates(t *testing.T) {
	// spec.md §8 scenario 5: U1 (3 purchases, inferred diet=vegetariano),
	// U2 (2 purchases, stored diet=omnivoro), U3 excluded by min_num_purchases.
	ledger := &fakeLedger{aggregates: map[string]sdk.UserAggregate{
		"u1": {NumPurchases: 3},
		"u2": {NumPurchases: 2},
		"u3": {NumPurchases: 1},
	}}
	prefs := &fakePreferences{byUser: map[string]map[string]any{
		"u1": {"diet": "vegetariano"},
		"u2": {"diet": "omnivoro"},
	}}
	svc := New(nil, ledger, prefs)

	users, err := svc.Compile(context.Background(), Filters{
		MinNumPurchases:     intp(2),
		PreferencesContains: map[string]any{"diet": "vegetariano"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || users[0] != "u1" {
		t.Errorf("expected [u1], got %v", users)
	}
}

func TestCompileSkipsUsersOnUpstreamPreferenceFailure(t *testing.T) {
	ledger := &fakeLedger{universe: []string{"u1", "u2"}}
	prefs := &fakePreferences{
		byUser: map[string]map[string]any{"u2": {"diet": "vegetariano"}},
		errFor: map[string]bool{"u1": true},
	}
	svc := New(nil, ledger, prefs)

	users, err := svc.Compile(context.Background(), Filters{
		PreferencesContains: map[string]any{"diet": "vegetariano"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 1 || users[0] != "u2" {
		t.Errorf("expected [u2] (u1 skipped on upstream failure), got %v", users)
	}
}

func TestCompilePreferencesContainsEmptyAggregateSetStaysEmpty(t *testing.T) {
	ledger := &fakeLedger{aggregates: map[string]sdk.UserAggregate{
		"u1": {TotalSpent: 5},
	}}
	svc := New(nil, ledger, &fakePreferences{byUser: map[string]map[string]any{"u1": {"diet": "vegetariano"}}})

	users, err := svc.Compile(context.Background(), Filters{
		MinTotalSpent:       floatp(1000),
		PreferencesContains: map[string]any{"diet": "vegetariano"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("expected no matches once the spend filter emptied the candidate set, got %v", users)
	}
}
