// Package sender implements C12, the channel-agnostic notification
// delivery model: a per-request record is created queued, routed to a
// channel adapter, and transitions to sent or failed. Grounded on
// crm/internal/segment's database/sql repository idiom for the record
// store, and on the teacher's cmd/main.go RabbitMQ queue-declare/
// consume shape for the asynchronous single-send path.
package sender

import (
	"context"
	"errors"
	"time"
)

// Status mirrors spec.md §3's CampaignNotification.status.
type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Channel is one of spec.md §3's UserSubscription.channel values.
const (
	ChannelWebpush = "webpush"
	ChannelAndroid = "android"
	ChannelIOS     = "ios"
)

// ErrNotFound signals a missing notification record.
var ErrNotFound = errors.New("notification not found")

// Request is spec.md §4.12's per-request model.
type Request struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Channel string         `json:"channel"`
	Data    map[string]any `json:"data,omitempty"`
}

// Record is the persisted delivery attempt, i.e. a CampaignNotification
// as seen from the sender's side of the boundary.
type Record struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Channel   string         `json:"channel"`
	Status    Status         `json:"status"`
	Meta      map[string]any `json:"meta"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Result is the per-item outcome returned by Send/SendBatch, matching
// the shared SDK's NotificationResult wire shape.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Stats is the /stats endpoint's aggregate view (spec.md §4.12).
type Stats struct {
	Total     int            `json:"total"`
	Queued    int            `json:"queued"`
	Sent      int            `json:"sent"`
	Failed    int            `json:"failed"`
	ByChannel map[string]int `json:"by_channel"`
}

// Repository persists notification records.
type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	UpdateStatus(ctx context.Context, id string, status Status, meta map[string]any) error
	Stats(ctx context.Context) (Stats, error)
}

// Subscriptions resolves the active delivery endpoint for a user/channel
// pair (C12 step 1).
type Subscriptions interface {
	GetActive(ctx context.Context, userID, channel string) (*SubscriptionView, error)
	Deactivate(ctx context.Context, userID, channel string) error
}

// SubscriptionView is the slice of a subscription the sender needs.
type SubscriptionView struct {
	Data map[string]any
}

// WebpushSender delivers a webpush payload and reports the outcome.
type WebpushSender interface {
	Send(data map[string]any, title, message string, extra map[string]any) WebpushResult
}

// WebpushResult mirrors internal/webpush.Result without importing it
// directly, keeping this package's dependency surface to interfaces.
type WebpushResult struct {
	Success                  bool
	StatusCode               int
	Error                    string
	ShouldRemoveSubscription bool
	ShouldRetry              bool
}

// Queue publishes a single-send request for asynchronous delivery
// (C12's "schedules asynchronous delivery" for /send).
type Queue interface {
	Publish(ctx context.Context, notificationID string) error
}

// Service implements C12's delivery model.
type Service struct {
	repo    Repository
	subs    Subscriptions
	webpush WebpushSender
	queue   Queue
}

// New builds the sender service. queue may be nil, in which case /send
// delivers inline instead of deferring to a consumer goroutine.
func New(repo Repository, subs Subscriptions, webpush WebpushSender, queue Queue) *Service {
	return &Service{repo: repo, subs: subs, webpush: webpush, queue: queue}
}

// Send creates a queued record for a single request and schedules
// asynchronous delivery (spec.md §4.12). It returns immediately with
// the queued record; delivery completes via Deliver, either invoked by
// the queue consumer or, absent a queue or on publish failure, inline.
func (s *Service) Send(ctx context.Context, req Request) (*Record, error) {
	rec := newRecord(req)
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}

	if s.queue != nil {
		if err := s.queue.Publish(ctx, rec.ID); err == nil {
			return rec, nil
		}
	}
	s.deliver(ctx, rec, req.Data)
	return rec, nil
}

// SendBatch processes each request independently and returns one
// outcome per item in order, for synchronous callers like CRM's
// campaign dispatcher (spec.md §4.12 step 5).
func (s *Service) SendBatch(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))
	for i, req := range reqs {
		rec := newRecord(req)
		if err := s.repo.Create(ctx, rec); err != nil {
			results[i] = Result{Status: string(StatusFailed), Error: err.Error()}
			continue
		}
		s.deliver(ctx, rec, req.Data)
		results[i] = Result{ID: rec.ID, Status: string(rec.Status), Error: metaError(rec.Meta)}
	}
	return results, nil
}

func newRecord(req Request) *Record {
	rec := &Record{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Message,
		Channel: req.Channel,
		Status:  StatusQueued,
		Meta:    map[string]any{"channel": req.Channel},
	}
	if req.Data != nil {
		rec.Meta["request_data"] = req.Data
	}
	return rec
}

// Deliver runs C12's delivery path for an already-created record,
// looked up by id. Used by the amqp consumer goroutine.
func (s *Service) Deliver(ctx context.Context, id string, extraData map[string]any) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return
	}
	s.deliver(ctx, rec, extraData)
}

func (s *Service) deliver(ctx context.Context, rec *Record, extraData map[string]any) {
	sub, err := s.subs.GetActive(ctx, rec.UserID, rec.Channel)
	if err != nil {
		s.fail(ctx, rec, "no subscription")
		return
	}

	switch rec.Channel {
	case ChannelAndroid, ChannelIOS:
		s.succeed(ctx, rec, map[string]any{
			"status_code": 200,
			"channel":     rec.Channel,
			"sent_at":     time.Now().UTC().Format(time.RFC3339),
		})

	case ChannelWebpush:
		res := s.webpush.Send(sub.Data, rec.Title, rec.Message, extraData)
		if res.Success {
			s.succeed(ctx, rec, map[string]any{
				"status_code": res.StatusCode,
				"channel":     rec.Channel,
				"sent_at":     time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		if res.ShouldRemoveSubscription {
			_ = s.subs.Deactivate(ctx, rec.UserID, rec.Channel)
		}
		meta := map[string]any{"error": res.Error}
		if res.ShouldRetry {
			meta["should_retry"] = true
		}
		if res.ShouldRemoveSubscription {
			meta["should_remove_subscription"] = true
		}
		s.failWithMeta(ctx, rec, meta)

	default:
		s.fail(ctx, rec, "unsupported channel")
	}
}

func (s *Service) succeed(ctx context.Context, rec *Record, deliveryInfo map[string]any) {
	rec.Status = StatusSent
	rec.Meta["delivery_info"] = deliveryInfo
	_ = s.repo.UpdateStatus(ctx, rec.ID, StatusSent, rec.Meta)
}

func (s *Service) fail(ctx context.Context, rec *Record, reason string) {
	s.failWithMeta(ctx, rec, map[string]any{"error": reason})
}

func (s *Service) failWithMeta(ctx context.Context, rec *Record, meta map[string]any) {
	rec.Status = StatusFailed
	for k, v := range meta {
		rec.Meta[k] = v
	}
	_ = s.repo.UpdateStatus(ctx, rec.ID, StatusFailed, rec.Meta)
}

func metaError(meta map[string]any) string {
	if meta == nil {
		return ""
	}
	if e, ok := meta["error"].(string); ok {
		return e
	}
	return ""
}

// GetStatus returns a single record's current state.
func (s *Service) GetStatus(ctx context.Context, id string) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// GetStats returns the aggregate view for the /stats endpoint.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	return s.repo.Stats(ctx)
}
