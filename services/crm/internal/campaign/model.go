// Package campaign implements C11, campaign CRUD, segment fan-out,
// and LLM-drafted copy with a fixed fallback. Grounded on
// crm/internal/customer's repo idiom and segment's filters-JSON
// entity store, generalized to campaign-segment link rows.
package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

// ErrNotFound signals a missing campaign.
var ErrNotFound = errors.New("campaign not found")

// ErrInactive signals an operation attempted on an inactive campaign.
var ErrInactive = errors.New("campaign is not active")

// fallbackCopy is the deterministic promotional copy used whenever the
// LLM adapter is unavailable or returns nothing usable (spec.md §9:
// "every call site must provide a deterministic fallback").
const fallbackCopy = "Check out what's new for you this week — come see us soon!"

// Campaign is spec.md §3's Campaign entity.
type Campaign struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Message     string    `json:"message"`
	Active      bool      `json:"active"`
	SegmentIDs  []string  `json:"segment_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NotificationStatus is a CampaignNotification's lifecycle state.
type NotificationStatus string

const (
	StatusQueued NotificationStatus = "queued"
	StatusSent   NotificationStatus = "sent"
	StatusFailed NotificationStatus = "failed"
)

// Notification is spec.md §3's CampaignNotification entity.
type Notification struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	CampaignID string             `json:"campaign_id,omitempty"`
	Message    string             `json:"message"`
	Status     NotificationStatus `json:"status"`
	Meta       map[string]any     `json:"meta,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Repository persists campaigns, their segment links, and the
// notification records dispatch creates.
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, activeOnly bool) ([]*Campaign, error)

	CreateNotifications(ctx context.Context, notifications []*Notification) error
	ListNotifications(ctx context.Context, status NotificationStatus) ([]*Notification, error)
	UpdateNotificationStatus(ctx context.Context, id string, status NotificationStatus, meta map[string]any) error
}

// SegmentCompiler resolves a segment id to its matching user set
// (C10), used by dispatch's union-over-linked-segments step.
type SegmentCompiler interface {
	PreviewUsers(ctx context.Context, segmentID string) ([]string, error)
	Get(ctx context.Context, id string) (*SegmentView, error)
}

// SegmentView is the slice of a segment campaign cares about: its
// filters, for copy drafting, and whether it is active, for dispatch.
type SegmentView struct {
	ID                  string
	Active              bool
	PreferencesContains map[string]any
}

// Generator drafts campaign copy; satisfied by llm.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int, fallback string) string
}

// Sender batch-delivers notification payloads to C12.
type Sender interface {
	SendBatch(ctx context.Context, reqs []sdk.NotificationRequest) ([]sdk.NotificationResult, error)
}

// Service implements campaign CRUD, dispatch, and send.
type Service struct {
	repo     Repository
	segments SegmentCompiler
	llm      Generator
	sender   Sender
}

// New builds the campaign dispatcher.
func New(repo Repository, segments SegmentCompiler, llm Generator, sender Sender) *Service {
	return &Service{repo: repo, segments: segments, llm: llm, sender: sender}
}

// CreateRequest is the create_campaign payload (spec.md §4.11).
type CreateRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Message     string   `json:"message"`
	SegmentIDs  []string `json:"segment_ids"`
}

// Create persists a campaign. If Message is empty, it aggregates the
// preferences_contains of every linked segment and asks the LLM
// adapter to draft a short promotional copy, falling back to a fixed
// string on failure (spec.md §4.11).
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Campaign, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		message = s.draftCopy(ctx, req.SegmentIDs)
	}

	now := time.Now()
	c := &Campaign{
		Name:        req.Name,
		Description: req.Description,
		Message:     message,
		Active:      true,
		SegmentIDs:  req.SegmentIDs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) draftCopy(ctx context.Context, segmentIDs []string) string {
	prefs := map[string]any{}
	for _, id := range segmentIDs {
		seg, err := s.segments.Get(ctx, id)
		if err != nil {
			continue
		}
		for k, v := range seg.PreferencesContains {
			prefs[k] = v
		}
	}

	var traits []string
	for k, v := range prefs {
		traits = append(traits, fmt.Sprintf("%s=%v", k, v))
	}
	prompt := "Write one short, friendly promotional message (max 2 sentences) for a loyalty-program audience"
	if len(traits) > 0 {
		prompt += " with these traits: " + strings.Join(traits, ", ")
	}
	prompt += ". No markdown, no quotes."

	const system = "You write concise, upbeat marketing copy for a local grocery loyalty program."
	return s.llm.Generate(ctx, prompt, system, 0.7, 120, fallbackCopy)
}

// Get returns a campaign by id.
func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns campaigns, optionally restricted to active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]*Campaign, error) {
	return s.repo.List(ctx, activeOnly)
}

// PreviewUsers returns the union of every linked segment's compiled
// user set, without creating any notification records.
func (s *Service) PreviewUsers(ctx context.Context, id string) ([]string, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.targetUsers(ctx, c)
}

func (s *Service) targetUsers(ctx context.Context, c *Campaign) ([]string, error) {
	seen := map[string]struct{}{}
	var out []string
	for _, segID := range c.SegmentIDs {
		seg, err := s.segments.Get(ctx, segID)
		if err != nil || !seg.Active {
			continue
		}
		users, err := s.segments.PreviewUsers(ctx, segID)
		if err != nil {
			continue
		}
		for _, u := range users {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out, nil
}

// Dispatch computes the target user set as the union of every linked
// active segment's compiled users, and creates a queued
// CampaignNotification for each (spec.md §4.11). Delivery is a
// separate step (Send) so a slow channel never blocks record creation.
func (s *Service) Dispatch(ctx context.Context, id string) ([]*Notification, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Active {
		return nil, ErrInactive
	}

	users, err := s.targetUsers(ctx, c)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	notifications := make([]*Notification, 0, len(users))
	for _, userID := range users {
		notifications = append(notifications, &Notification{
			UserID:     userID,
			CampaignID: c.ID,
			Message:    c.Message,
			Status:     StatusQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	if len(notifications) == 0 {
		return notifications, nil
	}
	if err := s.repo.CreateNotifications(ctx, notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// SendResult reports send_notifications' outcome (spec.md §4.11): the
// sent/failed counts plus a warning when C12 itself was unreachable,
// in which case queued records are left untouched for later resend.
type SendResult struct {
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Warning string `json:"warning,omitempty"`
}

// Send posts every queued notification for campaign id to C12 over
// the given channel, updating each record's status from the batch
// outcome. On total C12 unavailability, records stay queued and a
// warning is returned instead of an error.
func (s *Service) Send(ctx context.Context, id, channel string) (*SendResult, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	queued, err := s.repo.ListNotifications(ctx, StatusQueued)
	if err != nil {
		return nil, err
	}
	var mine []*Notification
	for _, n := range queued {
		if n.CampaignID == c.ID {
			mine = append(mine, n)
		}
	}
	if len(mine) == 0 {
		return &SendResult{}, nil
	}

	reqs := make([]sdk.NotificationRequest, len(mine))
	for i, n := range mine {
		reqs[i] = sdk.NotificationRequest{
			UserID:  n.UserID,
			Title:   c.Name,
			Message: n.Message,
			Channel: channel,
			Data: map[string]any{
				"campaign_id":   c.ID,
				"campaign_name": c.Name,
			},
		}
	}

	results, err := s.sender.SendBatch(ctx, reqs)
	if err != nil {
		return &SendResult{Warning: "notification sender unavailable; records remain queued"}, nil
	}

	res := &SendResult{}
	for i, n := range mine {
		if i >= len(results) {
			break
		}
		outcome := results[i]
		status := StatusSent
		meta := map[string]any{"channel": channel}
		if outcome.Status != "sent" {
			status = StatusFailed
			meta["error"] = outcome.Error
			res.Failed++
		} else {
			res.Sent++
		}
		_ = s.repo.UpdateNotificationStatus(ctx, n.ID, status, meta)
	}
	return res, nil
}

// ListNotifications returns notification records by status (empty
// status lists all), serving GET /notifications?status=….
func (s *Service) ListNotifications(ctx context.Context, status string) ([]*Notification, error) {
	return s.repo.ListNotifications(ctx, NotificationStatus(status))
}

// MarkSent transitions one notification to sent, used by the manual
// POST /notifications/{id}/mark-sent escape hatch.
func (s *Service) MarkSent(ctx context.Context, id string) error {
	return s.repo.UpdateNotificationStatus(ctx, id, StatusSent, nil)
}
