// Package duplicate implements C7: deciding whether a newly processed
// ticket matches one the same user already has on record.
package duplicate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// window is the tolerance spec.md §4.6 step d allows between two
// otherwise-identical tickets' purchase timestamps.
const window = 5 * time.Minute

// Candidate is the normalized shape both a freshly extracted ticket
// and a stored one are reduced to before comparison.
type Candidate struct {
	StoreName    string
	Total        float64
	PurchaseTime time.Time
	Products     []Product
}

// Product is one line item, used for the multiset comparison.
type Product struct {
	Name     string
	Quantity float64
}

// ParseDate parses spec.md §4.6's "DD/MM/YYYY" or "DD/MM/YYYY HH:MM"
// ticket date formats. Unparseable input yields the zero time so the
// window test degrades to "never matches" rather than panicking.
func ParseDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"02/01/2006 15:04", "02/01/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// IsDuplicate reports whether candidate matches existing under
// spec.md §4.6 step d: same store name (case-insensitive), equal
// totals, purchase timestamps within window of each other, and an
// identical product multiset (name + quantity, order irrelevant).
func IsDuplicate(candidate, existing Candidate) bool {
	if !strings.EqualFold(strings.TrimSpace(candidate.StoreName), strings.TrimSpace(existing.StoreName)) {
		return false
	}
	if !amountsEqual(candidate.Total, existing.Total) {
		return false
	}
	if candidate.PurchaseTime.IsZero() || existing.PurchaseTime.IsZero() {
		return false
	}
	diff := candidate.PurchaseTime.Sub(existing.PurchaseTime)
	if diff < 0 {
		diff = -diff
	}
	if diff > window {
		return false
	}
	return sameProductBag(candidate.Products, existing.Products)
}

// FindDuplicate returns the first ticket in existing that candidate
// duplicates, or false if none match.
func FindDuplicate(candidate Candidate, existing []Candidate) (Candidate, bool) {
	for _, e := range existing {
		if IsDuplicate(candidate, e) {
			return e, true
		}
	}
	return Candidate{}, false
}

func amountsEqual(a, b float64) bool {
	const epsilon = 0.01
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < epsilon
}

// sameProductBag compares two product lists as multisets: lists of
// different length never match; otherwise quantities are summed per
// normalized name and the two name-to-quantity maps must be equal,
// independent of order.
func sameProductBag(a, b []Product) bool {
	if len(a) != len(b) {
		return false
	}
	bagA := bag(a)
	bagB := bag(b)
	if len(bagA) != len(bagB) {
		return false
	}
	for name, qty := range bagA {
		other, ok := bagB[name]
		if !ok || !amountsEqual(qty, other) {
			return false
		}
	}
	return true
}

func bag(products []Product) map[string]float64 {
	out := make(map[string]float64, len(products))
	for _, p := range products {
		out[normalizeName(p.Name)] += p.Quantity
	}
	return out
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Summarize renders a stable, human-readable signature of a product
// bag for logging when a duplicate is rejected.
func Summarize(products []Product) string {
	names := make([]string, 0, len(products))
	seen := bag(products)
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"x"+strconv.FormatFloat(seen[name], 'f', -1, 64))
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ", "))
}
