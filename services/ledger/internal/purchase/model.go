// Package purchase implements C3, the append-only purchase history
// store with per-user aggregate queries used by gamification preview,
// CRM segmentation, and preference inference.
package purchase

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateTicket signals the at-most-one-record-per-ticket
	// invariant (spec.md §3); the ingestion worker logs and swallows it.
	ErrDuplicateTicket = errors.New("purchase record already exists for ticket")
	ErrNotFound        = errors.New("purchase record not found")
)

// Product is one line item on a purchase record.
type Product struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Record is a single purchase (spec.md §3 PurchaseRecord entity).
type Record struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TicketID     string    `json:"ticket_id"`
	PurchaseDate time.Time `json:"purchase_date"`
	StoreName    string    `json:"store_name"`
	TotalAmount  float64   `json:"total_amount"`
	Products     []Product `json:"products"`
	NumProducts  int       `json:"num_products"`
	TicketType   string    `json:"ticket_type"`
	IsMarketStore bool     `json:"is_market_store"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary is the per-user purchase aggregate (spec.md §4.3).
type Summary struct {
	TotalPurchases  int        `json:"total_purchases"`
	TotalSpent      float64    `json:"total_spent"`
	FavoriteStore   string     `json:"favorite_store,omitempty"`
	TopProducts     []TopProduct `json:"top_products"`
	AverageAmount   float64    `json:"average_amount"`
	LastPurchaseAt  *time.Time `json:"last_purchase_at,omitempty"`
}

// TopProduct is one entry in the per-user top-N product ranking.
type TopProduct struct {
	Name          string  `json:"name"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalSpent    float64 `json:"total_spent"`
}

// SpendingWindow is the trailing-N-day rollup (spec.md §4.3).
type SpendingWindow struct {
	Days        int      `json:"days"`
	TotalSpent  float64  `json:"total_spent"`
	NumPurchases int     `json:"num_purchases"`
	Purchases   []Record `json:"purchases"`
}

// Repository persists purchase records and computes aggregates.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, int, error)
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]Record, error)
	ListLatestByUser(ctx context.Context, userID string, limit int) ([]Record, error)
	// SpendAndCountSince returns, per user, total spend and purchase
	// count over purchases at or after since — used by the segment
	// compiler's min_total_spent/min_num_purchases clauses.
	SpendAndCountSince(ctx context.Context, since time.Time) (map[string]UserAggregate, error)
	PurchaseRollup(ctx context.Context) (TotalRollup, error)
	// DistinctUserIDs returns every user id with at least one purchase
	// record — the segment compiler's fallback universe (spec.md §4.10
	// clause 5) when no spend/count filter has narrowed the candidates.
	DistinctUserIDs(ctx context.Context) ([]string, error)
}

// UserAggregate is one user's windowed spend/count pair.
type UserAggregate struct {
	TotalSpent      float64
	NumPurchases    int
}

// TotalRollup is the platform-wide purchase rollup served to identity's
// admin overview.
type TotalRollup struct {
	TotalPurchases int
	TotalSpent     float64
}

// Service implements C3's write path and aggregate queries.
type Service struct {
	repo Repository
}

// NewService builds the purchase history service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Create appends a purchase record, deriving NumProducts from Products.
// ticket_id uniqueness is enforced at the repository layer.
func (s *Service) Create(ctx context.Context, r *Record) error {
	r.NumProducts = len(r.Products)
	r.CreatedAt = time.Now()
	return s.repo.Create(ctx, r)
}

// List returns a user's purchases, newest first, paginated.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Record, int, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Summary computes the per-user purchase-summary aggregate (spec.md
// §4.3): totals, favorite store by frequency, top-N products by
// aggregated quantity, average amount, last purchase date.
func (s *Service) Summary(ctx context.Context, userID string, topN int) (*Summary, error) {
	records, err := s.repo.ListByUserSince(ctx, userID, time.Time{})
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	if len(records) == 0 {
		return sum, nil
	}

	storeFreq := map[string]int{}
	productAgg := map[string]*TopProduct{}
	var latest time.Time

	for _, r := range records {
		sum.TotalPurchases++
		sum.TotalSpent += r.TotalAmount
		if r.StoreName != "" {
			storeFreq[r.StoreName]++
		}
		if r.PurchaseDate.After(latest) {
			latest = r.PurchaseDate
		}
		for _, p := range r.Products {
			agg, ok := productAgg[p.Name]
			if !ok {
				agg = &TopProduct{Name: p.Name}
				productAgg[p.Name] = agg
			}
			agg.TotalQuantity += p.Quantity
			agg.TotalSpent += p.Price * p.Quantity
		}
	}

	sum.AverageAmount = sum.TotalSpent / float64(sum.TotalPurchases)
	if !latest.IsZero() {
		l := latest
		sum.LastPurchaseAt = &l
	}
	sum.FavoriteStore = favoriteStore(storeFreq)
	sum.TopProducts = topProducts(productAgg, topN)
	return sum, nil
}

func favoriteStore(freq map[string]int) string {
	best, bestCount := "", -1
	for name, count := range freq {
		if count > bestCount || (count == bestCount && name < best) {
			best, bestCount = name, count
		}
	}
	return best
}

func topProducts(agg map[string]*TopProduct, topN int) []TopProduct {
	list := make([]TopProduct, 0, len(agg))
	for _, p := range agg {
		list = append(list, *p)
	}
	// simple selection sort by quantity desc — N is small (top-10ish)
	for i := 0; i < len(list); i++ {
		maxIdx := i
		for j := i + 1; j < len(list); j++ {
			if list[j].TotalQuantity > list[maxIdx].TotalQuantity {
				maxIdx = j
			}
		}
		list[i], list[maxIdx] = list[maxIdx], list[i]
	}
	if topN > 0 && len(list) > topN {
		list = list[:topN]
	}
	return list
}

// SpendingByPeriod computes the trailing-N-day rollup (spec.md §4.3).
func (s *Service) SpendingByPeriod(ctx context.Context, userID string, days int) (*SpendingWindow, error) {
	since := time.Now().AddDate(0, 0, -days)
	records, err := s.repo.ListByUserSince(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	window := &SpendingWindow{Days: days, Purchases: records}
	for _, r := range records {
		window.TotalSpent += r.TotalAmount
		window.NumPurchases++
	}
	return window, nil
}

// LatestForPreferences returns the most recent N purchases for C9's
// preference-inference input.
func (s *Service) LatestForPreferences(ctx context.Context, userID string, n int) ([]Record, error) {
	return s.repo.ListLatestByUser(ctx, userID, n)
}

// AggregatesSince returns the per-user spend/count aggregate used by
// C10's min_total_spent and min_num_purchases filter clauses.
func (s *Service) AggregatesSince(ctx context.Context, since time.Time) (map[string]UserAggregate, error) {
	return s.repo.SpendAndCountSince(ctx, since)
}

// PurchaseRollup serves identity's admin-overview purchase aggregate.
func (s *Service) PurchaseRollup(ctx context.Context) (TotalRollup, error) {
	return s.repo.PurchaseRollup(ctx)
}

// AnyPurchaseUserIDs serves the CRM segment compiler's fallback
// universe query.
func (s *Service) AnyPurchaseUserIDs(ctx context.Context) ([]string, error) {
	return s.repo.DistinctUserIDs(ctx)
}
