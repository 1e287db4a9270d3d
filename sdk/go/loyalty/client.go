// Package loyalty provides a thin Go SDK over the platform's internal HTTP
// boundaries: gamification events, notification dispatch, and sibling
// health checks. The ingestion worker and the CRM dispatcher use it instead
// of hand-rolling request plumbing at each call site.
package loyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultTimeout bounds a single sibling-service call.
	DefaultTimeout = 30 * time.Second
)

// Client talks to one sibling HTTP service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient builds a client bound to baseURL (e.g. the gamification or
// notification service's address).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  "loyalty-go-sdk/1.0.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TicketProcessedEvent mirrors the gamification service's ingest contract.
type TicketProcessedEvent struct {
	UserID          string  `json:"user_id"`
	TicketID        string  `json:"ticket_id"`
	IsValid         bool    `json:"is_valid"`
	TotalAmount     float64 `json:"total_amount,omitempty"`
	StoreName       string  `json:"store_name,omitempty"`
	ProcessingDate  string  `json:"processing_date"`
}

// Gamification returns a service wrapper for the gamification API.
func (c *Client) Gamification() *GamificationService {
	return &GamificationService{client: c}
}

// GamificationService sends purchase outcomes into the gamification engine.
type GamificationService struct {
	client *Client
}

// ReportTicketProcessed notifies the gamification engine that a ticket
// reached a terminal, fan-out-eligible status.
func (s *GamificationService) ReportTicketProcessed(ctx context.Context, evt TicketProcessedEvent) error {
	return s.client.post(ctx, "/events/ticket-processed", evt, nil)
}

// NotificationRequest mirrors the notification sender's per-item contract.
type NotificationRequest struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data,omitempty"`
}

// NotificationResult is the sender's per-item outcome.
type NotificationResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Notifications returns a service wrapper for the notification sender API.
func (c *Client) Notifications() *NotificationsService {
	return &NotificationsService{client: c}
}

// NotificationsService dispatches outbound notifications.
type NotificationsService struct {
	client *Client
}

// Send dispatches a single notification request.
func (s *NotificationsService) Send(ctx context.Context, req NotificationRequest) (*NotificationResult, error) {
	var res NotificationResult
	err := s.client.post(ctx, "/send", req, &res)
	return &res, err
}

// SendBatch dispatches a batch of notification requests, one per target
// user, and returns one outcome per request in the same order.
func (s *NotificationsService) SendBatch(ctx context.Context, reqs []NotificationRequest) ([]NotificationResult, error) {
	var res []NotificationResult
	err := s.client.post(ctx, "/send-batch", reqs, &res)
	return res, err
}

// PurchaseProduct is one line item of a recorded purchase.
type PurchaseProduct struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// CreatePurchaseRequest mirrors the ledger service's purchase-history
// creation contract, populated from a terminal ticket.
type CreatePurchaseRequest struct {
	TicketID     string            `json:"ticket_id"`
	UserID       string            `json:"user_id"`
	StoreName    string            `json:"store_name"`
	TotalAmount  float64           `json:"total_amount"`
	Products     []PurchaseProduct `json:"products"`
	PurchaseDate string            `json:"purchase_date"`
}

// PurchaseRecord is the ledger's view of a created purchase.
type PurchaseRecord struct {
	ID           string            `json:"id"`
	TicketID     string            `json:"ticket_id"`
	UserID       string            `json:"user_id"`
	StoreName    string            `json:"store_name"`
	TotalAmount  float64           `json:"total_amount"`
	Products     []PurchaseProduct `json:"products"`
	PurchaseDate string            `json:"purchase_date"`
}

// Ledger returns a service wrapper for the ledger's purchase-history API.
func (c *Client) Ledger() *LedgerService {
	return &LedgerService{client: c}
}

// LedgerService records purchases into the ledger (C3), called by the
// ticketing ingestion worker once a ticket reaches a terminal,
// non-duplicate state: approved, or rejected because its store is not a
// market store.
type LedgerService struct {
	client *Client
}

// CreatePurchase persists a purchase-history record. A duplicate
// ticket_id is rejected by the ledger with a 409, surfaced here as an
// *APIError so callers can distinguish it from a transport failure.
func (s *LedgerService) CreatePurchase(ctx context.Context, req CreatePurchaseRequest) (*PurchaseRecord, error) {
	var res PurchaseRecord
	err := s.client.post(ctx, "/purchase-history/create", req, &res)
	return &res, err
}

// IsMarketStore checks whether candidate matches a registered market
// store name (spec.md §4.2's case-insensitive substring test),
// consulted by the ingestion worker before approving a ticket.
func (s *LedgerService) IsMarketStore(ctx context.Context, candidate string) (bool, error) {
	var res struct {
		IsMarketStore bool `json:"is_market_store"`
	}
	err := s.client.get(ctx, "/market-stores/verify/"+url.PathEscape(candidate), nil, &res)
	return res.IsMarketStore, err
}

// UserAggregate is one user's windowed purchase spend/count, used by
// the CRM segment compiler's min_total_spent/min_num_purchases clauses.
type UserAggregate struct {
	TotalSpent   float64 `json:"TotalSpent"`
	NumPurchases int     `json:"NumPurchases"`
}

// AggregatesSince returns every user's spend/count aggregate over
// purchases at or after since (spec.md §4.10 C10 clauses 2-3).
func (s *LedgerService) AggregatesSince(ctx context.Context, since time.Time) (map[string]UserAggregate, error) {
	var res map[string]UserAggregate
	err := s.client.get(ctx, "/internal/aggregates-since", map[string]string{"since": since.UTC().Format(time.RFC3339)}, &res)
	return res, err
}

// LatestPurchases returns a user's n most recent purchases, newest
// first, for C9's preference-inference input.
func (s *LedgerService) LatestPurchases(ctx context.Context, userID string, n int) ([]PurchaseRecord, error) {
	var res []PurchaseRecord
	err := s.client.get(ctx, fmt.Sprintf("/internal/latest-purchases/%s", url.PathEscape(userID)), map[string]string{"n": strconv.Itoa(n)}, &res)
	return res, err
}

// AnyPurchaseUserIDs returns every user id with at least one purchase
// record, used as the segment compiler's fallback universe when no
// spend/count filter narrowed the candidate set (spec.md §4.10 clause 5).
func (s *LedgerService) AnyPurchaseUserIDs(ctx context.Context) ([]string, error) {
	var res []string
	err := s.client.get(ctx, "/internal/purchase-user-ids", nil, &res)
	return res, err
}

// Identity returns a service wrapper for the identity service's
// sibling-only endpoints (C13's role guard, C9's preference storage).
func (c *Client) Identity() *IdentityService {
	return &IdentityService{client: c}
}

// IdentityService is the narrow slice of C1 that other services call
// directly instead of through the public §6 surface.
type IdentityService struct {
	client *Client
}

// RoleClaims is the caller identity a sibling needs to enforce C13's
// admin-only precondition without a second round trip to /users/me.
type RoleClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// VerifyRole validates a bearer token and returns the caller's id and
// role in one call (grounded on original_source's auth_client.py
// require_admin, which does the same over two HTTP calls).
func (s *IdentityService) VerifyRole(ctx context.Context, token string) (*RoleClaims, error) {
	var res RoleClaims
	err := s.client.post(ctx, "/internal/verify-role", map[string]string{"token": token}, &res)
	return &res, err
}

// GetPreferences returns a user's stored preference map (possibly empty).
func (s *IdentityService) GetPreferences(ctx context.Context, userID string) (map[string]any, error) {
	var res struct {
		Preferences map[string]any `json:"preferences"`
	}
	err := s.client.get(ctx, fmt.Sprintf("/internal/users/%s/preferences", url.PathEscape(userID)), nil, &res)
	return res.Preferences, err
}

// SetPreferences overwrites a user's preference map — called once C9
// infers a non-empty map for a user who had none stored.
func (s *IdentityService) SetPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	return s.client.put(ctx, fmt.Sprintf("/internal/users/%s/preferences", url.PathEscape(userID)), map[string]any{"preferences": prefs}, nil)
}

// Health checks a sibling's liveness endpoint with a short deadline.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.get(ctx, "/health", nil, nil)
}

func (c *Client) get(ctx context.Context, path string, params, result any) error {
	return c.request(ctx, http.MethodGet, path, params, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.request(ctx, http.MethodPost, path, nil, body, result)
}

func (c *Client) put(ctx context.Context, path string, body, result any) error {
	return c.request(ctx, http.MethodPut, path, nil, body, result)
}

func (c *Client) request(ctx context.Context, method, path string, params, body, result any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if q, ok := params.(map[string]string); ok {
		values := u.Query()
		for k, v := range q {
			values.Set(k, v)
		}
		u.RawQuery = values.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("sibling error: %d", resp.StatusCode)
		}
		return &apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// APIError represents a structured sibling error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
