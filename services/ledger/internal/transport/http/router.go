// Package http exposes C2 Market-Store Registry and C3 Purchase
// History Store, plus the internal endpoints siblings (ticketing,
// crm, identity) call directly.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ledger/internal/marketstore"
	"ledger/internal/purchase"
)

// Router dispatches ledger's HTTP surface.
type Router struct {
	stores    *marketstore.Service
	purchases *purchase.Service
}

// NewRouter builds a Router over the two services.
func NewRouter(stores *marketstore.Service, purchases *purchase.Service) *Router {
	return &Router{stores: stores, purchases: purchases}
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case path == "/market-stores" && r.Method == http.MethodGet:
		rt.listStores(w, r)
	case path == "/market-stores" && r.Method == http.MethodPost:
		rt.createStore(w, r)
	case strings.HasPrefix(path, "/market-stores/verify/"):
		rt.verifyStore(w, r, strings.TrimPrefix(path, "/market-stores/verify/"))
	case strings.HasPrefix(path, "/market-stores/") && r.Method == http.MethodPut:
		rt.updateStore(w, r, strings.TrimPrefix(path, "/market-stores/"))
	case strings.HasPrefix(path, "/market-stores/") && r.Method == http.MethodDelete:
		rt.deactivateStore(w, r, strings.TrimPrefix(path, "/market-stores/"))

	case path == "/purchase-history/create" && r.Method == http.MethodPost:
		rt.createPurchase(w, r)
	case strings.HasSuffix(path, "/purchase-history") && r.Method == http.MethodGet:
		rt.listPurchases(w, r, userIDFromPath(path, "/purchase-history"))
	case strings.HasSuffix(path, "/purchase-summary") && r.Method == http.MethodGet:
		rt.purchaseSummary(w, r, userIDFromPath(path, "/purchase-summary"))
	case strings.HasSuffix(path, "/spending-by-period") && r.Method == http.MethodGet:
		rt.spendingByPeriod(w, r, userIDFromPath(path, "/spending-by-period"))

	case path == "/internal/purchase-rollup":
		rt.purchaseRollup(w, r)
	case path == "/internal/market-store-names":
		rt.listNames(w, r)
	case strings.HasPrefix(path, "/internal/latest-purchases/"):
		rt.latestPurchases(w, r, strings.TrimPrefix(path, "/internal/latest-purchases/"))
	case path == "/internal/aggregates-since":
		rt.aggregatesSince(w, r)
	case path == "/internal/purchase-user-ids":
		rt.purchaseUserIDs(w, r)

	case path == "/health":
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func userIDFromPath(path, suffix string) string {
	trimmed := strings.TrimSuffix(path, "/"+strings.TrimPrefix(suffix, "/"))
	trimmed = strings.TrimPrefix(trimmed, "/users/")
	return trimmed
}

func (rt *Router) listStores(w http.ResponseWriter, r *http.Request) {
	stores, err := rt.stores.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stores)
}

func (rt *Router) createStore(w http.ResponseWriter, r *http.Request) {
	var s marketstore.Store
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	s.Active = true
	if err := rt.stores.Create(r.Context(), &s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (rt *Router) updateStore(w http.ResponseWriter, r *http.Request, id string) {
	var s marketstore.Store
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	s.ID = id
	if err := rt.stores.Update(r.Context(), &s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (rt *Router) deactivateStore(w http.ResponseWriter, r *http.Request, id string) {
	if err := rt.stores.Deactivate(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) verifyStore(w http.ResponseWriter, r *http.Request, name string) {
	ok, err := rt.stores.IsMarketStore(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_market_store": ok})
}

func (rt *Router) listNames(w http.ResponseWriter, r *http.Request) {
	names, err := rt.stores.ListNames(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (rt *Router) createPurchase(w http.ResponseWriter, r *http.Request) {
	var rec purchase.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if err := rt.purchases.Create(r.Context(), &rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (rt *Router) listPurchases(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := pagination(r)
	records, total, err := rt.purchases.List(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": records, "total": total})
}

func (rt *Router) purchaseSummary(w http.ResponseWriter, r *http.Request, userID string) {
	topN, _ := strconv.Atoi(r.URL.Query().Get("top_n"))
	if topN <= 0 {
		topN = 5
	}
	summary, err := rt.purchases.Summary(r.Context(), userID, topN)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) spendingByPeriod(w http.ResponseWriter, r *http.Request, userID string) {
	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}
	window, err := rt.purchases.SpendingByPeriod(r.Context(), userID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (rt *Router) latestPurchases(w http.ResponseWriter, r *http.Request, userID string) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 20
	}
	records, err := rt.purchases.LatestForPreferences(r.Context(), userID, n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (rt *Router) aggregatesSince(w http.ResponseWriter, r *http.Request) {
	sinceStr := r.URL.Query().Get("since")
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		http.Error(w, `{"error":"invalid since"}`, http.StatusBadRequest)
		return
	}
	agg, err := rt.purchases.AggregatesSince(r.Context(), since)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

func (rt *Router) purchaseUserIDs(w http.ResponseWriter, r *http.Request) {
	ids, err := rt.purchases.AnyPurchaseUserIDs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (rt *Router) purchaseRollup(w http.ResponseWriter, r *http.Request) {
	rollup, err := rt.purchases.PurchaseRollup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_purchases": rollup.TotalPurchases,
		"total_spent":     rollup.TotalSpent,
	})
}

func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch err {
	case marketstore.ErrNotFound, purchase.ErrNotFound:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	case purchase.ErrDuplicateTicket:
		http.Error(w, `{"error":"conflict"}`, http.StatusConflict)
	default:
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}
