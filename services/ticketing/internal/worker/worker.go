// Package worker implements C6, the ingestion worker: the long-lived
// scheduler that drains pending tickets through C5 and C7 and fans out
// terminal outcomes to C3 and C8.
package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	sdk "github.com/yaniaici/loyalty-go-sdk"

	"ticketing/internal/duplicate"
	"ticketing/internal/ticket"
	"ticketing/internal/vision"

	"github.com/rs/zerolog"
)

// Siblings is the set of outbound calls the worker makes once a
// ticket reaches a terminal status.
type Siblings interface {
	IsMarketStore(ctx context.Context, storeName string) (bool, error)
	RecordPurchase(ctx context.Context, req sdk.CreatePurchaseRequest) error
	ReportTicketProcessed(ctx context.Context, evt sdk.TicketProcessedEvent) error
}

// Config tunes the worker's poll loop (spec.md §4.6).
type Config struct {
	PollInterval      time.Duration
	BatchSize         int
	TicketSpacing     time.Duration
	DuplicateDetection bool
}

// DefaultConfig matches spec.md's stated defaults: 30s poll interval,
// ~2s per-ticket spacing.
func DefaultConfig() Config {
	return Config{
		PollInterval:       30 * time.Second,
		BatchSize:          20,
		TicketSpacing:      2 * time.Second,
		DuplicateDetection: true,
	}
}

// Worker drains C4's pending queue on a timer.
type Worker struct {
	tickets  *ticket.Service
	vision   *vision.Adapter
	siblings Siblings
	cfg      Config
	limiter  *rate.Limiter
	log      zerolog.Logger
}

// New builds a Worker. A nil vision adapter is allowed only for tests
// that never reach Run.
func New(tickets *ticket.Service, visionAdapter *vision.Adapter, siblings Siblings, cfg Config, log zerolog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg = DefaultConfig()
	}
	spacing := cfg.TicketSpacing
	if spacing <= 0 {
		spacing = 2 * time.Second
	}
	return &Worker{
		tickets:  tickets,
		vision:   visionAdapter,
		siblings: siblings,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(spacing), 1),
		log:      log,
	}
}

// Run blocks, polling until ctx is cancelled. On cancellation the
// in-flight ticket is allowed to finish before Run returns (spec.md
// §4.6 "Cancellation").
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	pending, err := w.tickets.ListPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("failed to list pending tickets")
		return
	}
	for _, t := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		w.processOne(context.WithoutCancel(ctx), t)
	}
}

// processOne runs a single ticket through §4.6 steps a-f. One ticket
// is processed at a time, in FIFO order, which also satisfies the
// per-user serialization requirement for streak/duplicate semantics.
func (w *Worker) processOne(ctx context.Context, t *ticket.Ticket) {
	image, err := w.tickets.ImageBytes(ctx, t)
	if err != nil {
		w.fail(ctx, t, fmt.Sprintf("failed to read ticket image: %v", err))
		return
	}

	extraction, err := w.vision.Extract(ctx, image)
	if err != nil {
		w.fail(ctx, t, err.Error())
		return
	}

	result := buildResult(extraction)

	if !result.ProcesadoCorrectamente {
		w.finish(ctx, t, ticket.StatusDoneRejected, result, "structural fields missing from extraction", false)
		return
	}

	isMarketStore, err := w.siblings.IsMarketStore(ctx, storeName(extraction))
	if err != nil {
		w.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("market-store check failed, defaulting to non-market")
		isMarketStore = false
	}
	result.EsTiendaMercado = isMarketStore

	if w.cfg.DuplicateDetection {
		isDup, err := w.isDuplicate(ctx, t, extraction)
		if err != nil {
			w.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("duplicate check failed, continuing")
		}
		if isDup {
			result.DuplicateDetected = boolPtr(true)
			w.finish(ctx, t, ticket.StatusDuplicate, result, "duplicate of a prior ticket", false)
			return
		}
	}

	if isMarketStore {
		w.finish(ctx, t, ticket.StatusDoneApproved, result, "approved", true)
		return
	}
	w.finish(ctx, t, ticket.StatusDoneRejected, result, "store is not a registered market store", true)
}

// fail marks a ticket failed after a C5 transport/parse error; C3 and
// C8 are never called for a failed ticket (spec.md §4.6 step b/f).
func (w *Worker) fail(ctx context.Context, t *ticket.Ticket, message string) {
	t.Status = ticket.StatusFailed
	if t.ProcessingResult == nil {
		t.ProcessingResult = map[string]any{}
	}
	t.ProcessingResult["error"] = message
	t.ProcessingResult["ticket_status"] = string(ticket.StatusFailed)
	t.ProcessingResult["status_message"] = message
	if err := w.tickets.Update(ctx, t); err != nil {
		w.log.Error().Err(err).Str("ticket_id", t.ID).Msg("failed to persist failed ticket")
	}
}

// finish persists the terminal status and, when fanOut is true, calls
// C3 (purchase history) and C8 (gamification) — spec.md §4.6 step e.
func (w *Worker) finish(ctx context.Context, t *ticket.Ticket, status ticket.Status, result *processingResult, statusMessage string, fanOut bool) {
	result.TicketStatus = string(status)
	result.StatusMessage = statusMessage
	t.Status = status
	t.ProcessingResult = result.toMap()
	if err := w.tickets.Update(ctx, t); err != nil {
		w.log.Error().Err(err).Str("ticket_id", t.ID).Msg("failed to persist ticket outcome")
		return
	}

	if !fanOut {
		return
	}

	now := time.Now().UTC()
	if err := w.siblings.RecordPurchase(ctx, sdk.CreatePurchaseRequest{
		TicketID:     t.ID,
		UserID:       t.UserID,
		StoreName:    storeName(fromResult(result)),
		TotalAmount:  result.total(),
		Products:     result.sdkProducts(),
		PurchaseDate: now.Format(time.RFC3339),
	}); err != nil {
		w.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("purchase-history write failed (possibly duplicate), swallowing")
	}

	if err := w.siblings.ReportTicketProcessed(ctx, sdk.TicketProcessedEvent{
		UserID:         t.UserID,
		TicketID:       t.ID,
		IsValid:        status == ticket.StatusDoneApproved,
		TotalAmount:    result.total(),
		StoreName:      storeName(fromResult(result)),
		ProcessingDate: now.Format(time.RFC3339),
	}); err != nil {
		w.log.Warn().Err(err).Str("ticket_id", t.ID).Msg("gamification fan-out failed")
	}
}

// ProcessTicket runs a single pending ticket through the pipeline
// synchronously, for the HTTP-triggered `/tickets/{id}/process` path
// (spec.md §6). No-op if the ticket isn't pending.
func (w *Worker) ProcessTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	t, err := w.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != ticket.StatusPending {
		return t, nil
	}
	w.processOne(ctx, t)
	return w.tickets.Get(ctx, id)
}

// ProcessPending drains up to the configured batch size synchronously,
// for the HTTP-triggered `/tickets/process-pending` path.
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	pending, err := w.tickets.ListPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, t := range pending {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		w.processOne(ctx, t)
	}
	return len(pending), nil
}

// isDuplicate runs C7 against the user's prior terminal tickets.
func (w *Worker) isDuplicate(ctx context.Context, t *ticket.Ticket, extraction *vision.Extraction) (bool, error) {
	prior, err := w.tickets.ListTerminalByUser(ctx, t.UserID)
	if err != nil {
		return false, err
	}

	candidate := toCandidate(extraction)
	existing := make([]duplicate.Candidate, 0, len(prior))
	for _, p := range prior {
		if p.ID == t.ID || p.ProcessingResult == nil {
			continue
		}
		existing = append(existing, candidateFromStoredResult(p.ProcessingResult))
	}

	_, found := duplicate.FindDuplicate(candidate, existing)
	return found, nil
}
