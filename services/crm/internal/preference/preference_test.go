package preference

import (
	"context"
	"testing"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

type fakeLedger struct {
	records []sdk.PurchaseRecord
}

func (f *fakeLedger) LatestPurchases(ctx context.Context, userID string, n int) ([]sdk.PurchaseRecord, error) {
	return f.records, nil
}

type fakeIdentity struct {
	stored map[string]any
	setErr error
}

func (f *fakeIdentity) GetPreferences(ctx context.Context, userID string) (map[string]any, error) {
	return f.stored, nil
}

func (f *fakeIdentity) SetPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	f.stored = prefs
	return f.setErr
}

type fakeGenerator struct {
	response string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int, fallback string) string {
	if f.response == "" {
		return fallback
	}
	return f.response
}

func TestInferEmptyHistoryReturnsEmptyMap(t *testing.T) {
	svc := New(&fakeLedger{}, &fakeIdentity{}, &fakeGenerator{})
	prefs, err := svc.Infer(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 0 {
		t.Errorf("expected empty map, got %v", prefs)
	}
}

func TestInferParsesFencedJSON(t *testing.T) {
	gen := &fakeGenerator{response: "```json\n{\"diet\":\"vegetariano\",\"unknown_key\":\"x\"}\n```"}
	svc := New(&fakeLedger{records: []sdk.PurchaseRecord{{StoreName: "Mercadona", TotalAmount: 20}}}, &fakeIdentity{}, gen)

	prefs, err := svc.Infer(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefs["diet"] != "vegetariano" {
		t.Errorf("expected diet=vegetariano, got %v", prefs)
	}
	if _, ok := prefs["unknown_key"]; ok {
		t.Error("expected unknown_key to be dropped (outside closed vocabulary)")
	}
}

func TestInferMalformedJSONReturnsEmptyMap(t *testing.T) {
	gen := &fakeGenerator{response: "not json at all"}
	svc := New(&fakeLedger{records: []sdk.PurchaseRecord{{StoreName: "Mercadona"}}}, &fakeIdentity{}, gen)

	prefs, err := svc.Infer(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prefs) != 0 {
		t.Errorf("expected empty map on malformed JSON, got %v", prefs)
	}
}

func TestGetWithInferenceSkipsWhenAlreadyPresent(t *testing.T) {
	identity := &fakeIdentity{stored: map[string]any{"diet": "omnivoro"}}
	gen := &fakeGenerator{response: `{"diet":"vegetariano"}`}
	svc := New(&fakeLedger{records: []sdk.PurchaseRecord{{StoreName: "X"}}}, identity, gen)

	prefs, err := svc.GetWithInference(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefs["diet"] != "omnivoro" {
		t.Errorf("expected stored preferences untouched, got %v", prefs)
	}
}

func TestGetWithInferencePersistsWhenEmpty(t *testing.T) {
	identity := &fakeIdentity{stored: map[string]any{}}
	gen := &fakeGenerator{response: `{"diet":"vegetariano"}`}
	svc := New(&fakeLedger{records: []sdk.PurchaseRecord{{StoreName: "X"}}}, identity, gen)

	prefs, err := svc.GetWithInference(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prefs["diet"] != "vegetariano" {
		t.Errorf("expected inferred preferences, got %v", prefs)
	}
	if identity.stored["diet"] != "vegetariano" {
		t.Error("expected inferred preferences to be persisted back to identity")
	}
}

func TestContainsAll(t *testing.T) {
	prefs := map[string]any{"diet": "vegetariano", "language": "es"}
	if !ContainsAll(prefs, map[string]any{"diet": "vegetariano"}) {
		t.Error("expected superset match")
	}
	if ContainsAll(prefs, map[string]any{"diet": "omnivoro"}) {
		t.Error("expected mismatch to fail")
	}
	if ContainsAll(prefs, map[string]any{"budget_level": "low"}) {
		t.Error("expected missing key to fail")
	}
}
