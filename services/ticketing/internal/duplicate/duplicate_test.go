package duplicate

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		name  string
		input string
		zero  bool
	}{
		{"date and time", "15/03/2024 14:30", false},
		{"date only", "15/03/2024", false},
		{"garbage", "not a date", true},
		{"empty", "", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ParseDate(c.input)
			if got.IsZero() != c.zero {
				t.Errorf("ParseDate(%q) zero=%v, want zero=%v", c.input, got.IsZero(), c.zero)
			}
		})
	}
}

func TestIsDuplicate(t *testing.T) {
	base := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	existing := Candidate{
		StoreName:    "Mercadona",
		Total:        42.50,
		PurchaseTime: base,
		Products: []Product{
			{Name: "Leche", Quantity: 2},
			{Name: "Pan", Quantity: 1},
		},
	}

	t.Run("exact match within window", func(t *testing.T) {
		candidate := Candidate{
			StoreName:    "mercadona",
			Total:        42.50,
			PurchaseTime: base.Add(3 * time.Minute),
			Products: []Product{
				{Name: "pan", Quantity: 1},
				{Name: "leche", Quantity: 2},
			},
		}
		if !IsDuplicate(candidate, existing) {
			t.Error("expected duplicate")
		}
	})

	t.Run("outside window", func(t *testing.T) {
		candidate := existing
		candidate.PurchaseTime = base.Add(10 * time.Minute)
		if IsDuplicate(candidate, existing) {
			t.Error("expected no duplicate: outside the 5 minute window")
		}
	})

	t.Run("different store", func(t *testing.T) {
		candidate := existing
		candidate.StoreName = "Carrefour"
		if IsDuplicate(candidate, existing) {
			t.Error("expected no duplicate: different store")
		}
	})

	t.Run("different product bag", func(t *testing.T) {
		candidate := existing
		candidate.Products = []Product{{Name: "Leche", Quantity: 3}}
		if IsDuplicate(candidate, existing) {
			t.Error("expected no duplicate: different product bag")
		}
	})

	t.Run("zero purchase time never matches", func(t *testing.T) {
		candidate := existing
		candidate.PurchaseTime = time.Time{}
		if IsDuplicate(candidate, existing) {
			t.Error("expected no duplicate: unparseable candidate date")
		}
	})
}

func TestFindDuplicate(t *testing.T) {
	base := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	prior := []Candidate{
		{StoreName: "Carrefour", Total: 10, PurchaseTime: base, Products: []Product{{Name: "Agua", Quantity: 1}}},
		{StoreName: "Mercadona", Total: 42.50, PurchaseTime: base, Products: []Product{{Name: "Leche", Quantity: 2}}},
	}
	candidate := Candidate{
		StoreName:    "Mercadona",
		Total:        42.50,
		PurchaseTime: base.Add(time.Minute),
		Products:     []Product{{Name: "Leche", Quantity: 2}},
	}

	match, ok := FindDuplicate(candidate, prior)
	if !ok {
		t.Fatal("expected a match")
	}
	if match.StoreName != "Mercadona" {
		t.Errorf("expected match on Mercadona, got %s", match.StoreName)
	}
}
