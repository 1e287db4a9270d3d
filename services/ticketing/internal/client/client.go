// Package client wraps the shared loyalty SDK with the two sibling
// calls the ingestion worker needs: market-store verification and
// purchase-history creation, plus the gamification fan-out event.
package client

import (
	"context"
	"time"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// Siblings bundles the ledger and gamification clients the worker
// talks to after a ticket finishes processing (spec.md §4.6 steps e-g).
type Siblings struct {
	ledger        *sdk.Client
	gamification  *sdk.Client
}

// New builds a Siblings bundle from base URLs; an empty URL disables
// that sibling call (useful for tests and partial deployments).
func New(ledgerURL, gamificationURL string) *Siblings {
	s := &Siblings{}
	if ledgerURL != "" {
		s.ledger = sdk.NewClient(ledgerURL, sdk.WithTimeout(10*time.Second))
	}
	if gamificationURL != "" {
		s.gamification = sdk.NewClient(gamificationURL, sdk.WithTimeout(10*time.Second))
	}
	return s
}

// IsMarketStore consults the ledger's market-store registry
// (spec.md §4.2). Returns false, nil if the ledger sibling isn't
// configured, which keeps single-service local runs usable.
func (s *Siblings) IsMarketStore(ctx context.Context, storeName string) (bool, error) {
	if s.ledger == nil {
		return false, nil
	}
	return s.ledger.Ledger().IsMarketStore(ctx, storeName)
}

// RecordPurchase creates a purchase-history record for a ticket that
// ended done_approved, or done_rejected because its store is not a
// market store (spec.md §4.6 step e). A nil ledger sibling is a silent
// no-op.
func (s *Siblings) RecordPurchase(ctx context.Context, req sdk.CreatePurchaseRequest) error {
	if s.ledger == nil {
		return nil
	}
	_, err := s.ledger.Ledger().CreatePurchase(ctx, req)
	return err
}

// ReportTicketProcessed notifies gamification of a terminal ticket
// outcome (spec.md §4.6 step f). A nil gamification sibling is a
// silent no-op.
func (s *Siblings) ReportTicketProcessed(ctx context.Context, evt sdk.TicketProcessedEvent) error {
	if s.gamification == nil {
		return nil
	}
	return s.gamification.Gamification().ReportTicketProcessed(ctx, evt)
}
