// Package siblings wraps the shared loyalty SDK with the sibling
// calls CRM needs: purchase aggregates and latest purchases from
// ledger, preference storage and role verification from identity, and
// batch delivery to the notification sender. Grounded on
// ticketing/internal/client/client.go's nil-sibling-safe wrapper
// pattern.
package siblings

import (
	"context"
	"time"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// Clients bundles the three sibling services CRM calls. An empty URL
// disables that sibling's calls, which keeps single-service local runs
// and tests usable.
type Clients struct {
	ledger       *sdk.Client
	identity     *sdk.Client
	notification *sdk.Client
}

// New builds a Clients bundle from base URLs.
func New(ledgerURL, identityURL, notificationURL string) *Clients {
	c := &Clients{}
	if ledgerURL != "" {
		c.ledger = sdk.NewClient(ledgerURL, sdk.WithTimeout(10*time.Second))
	}
	if identityURL != "" {
		c.identity = sdk.NewClient(identityURL, sdk.WithTimeout(10*time.Second))
	}
	if notificationURL != "" {
		c.notification = sdk.NewClient(notificationURL, sdk.WithTimeout(30*time.Second))
	}
	return c
}

// LatestPurchases returns a user's n most recent purchases for C9's
// inference input. A nil ledger sibling returns an empty history.
func (c *Clients) LatestPurchases(ctx context.Context, userID string, n int) ([]sdk.PurchaseRecord, error) {
	if c.ledger == nil {
		return nil, nil
	}
	return c.ledger.Ledger().LatestPurchases(ctx, userID, n)
}

// AggregatesSince returns every user's spend/count over the window for
// C10's min_total_spent/min_num_purchases clauses.
func (c *Clients) AggregatesSince(ctx context.Context, since time.Time) (map[string]sdk.UserAggregate, error) {
	if c.ledger == nil {
		return map[string]sdk.UserAggregate{}, nil
	}
	return c.ledger.Ledger().AggregatesSince(ctx, since)
}

// AnyPurchaseUserIDs returns C10's fallback candidate universe.
func (c *Clients) AnyPurchaseUserIDs(ctx context.Context) ([]string, error) {
	if c.ledger == nil {
		return nil, nil
	}
	return c.ledger.Ledger().AnyPurchaseUserIDs(ctx)
}

// GetPreferences returns a user's stored preference map.
func (c *Clients) GetPreferences(ctx context.Context, userID string) (map[string]any, error) {
	if c.identity == nil {
		return map[string]any{}, nil
	}
	return c.identity.Identity().GetPreferences(ctx, userID)
}

// SetPreferences overwrites a user's stored preference map.
func (c *Clients) SetPreferences(ctx context.Context, userID string, prefs map[string]any) error {
	if c.identity == nil {
		return nil
	}
	return c.identity.Identity().SetPreferences(ctx, userID, prefs)
}

// VerifyRole resolves a bearer token to its caller identity and role
// for C13's admin guard. A nil identity sibling rejects every caller.
func (c *Clients) VerifyRole(ctx context.Context, token string) (*sdk.RoleClaims, error) {
	if c.identity == nil {
		return nil, sdk_ErrNoIdentitySibling
	}
	return c.identity.Identity().VerifyRole(ctx, token)
}

// SendBatch posts a batch of notification requests to C12, returning
// one outcome per request in the same order. Returns an error (rather
// than a partial result) only on total transport failure — individual
// per-item failures are carried in each NotificationResult.
func (c *Clients) SendBatch(ctx context.Context, reqs []sdk.NotificationRequest) ([]sdk.NotificationResult, error) {
	if c.notification == nil {
		return nil, sdk_ErrNoNotificationSibling
	}
	return c.notification.Notifications().SendBatch(ctx, reqs)
}

var (
	sdk_ErrNoIdentitySibling     = &siblingError{"identity sibling not configured"}
	sdk_ErrNoNotificationSibling = &siblingError{"notification sibling not configured"}
)

type siblingError struct{ msg string }

func (e *siblingError) Error() string { return e.msg }
