package campaign

import (
	"context"
	"testing"
	"time"

	sdk "github.com/yaniaici/loyalty-go-sdk"
)

type fakeRepo struct {
	campaigns     map[string]*Campaign
	notifications []*Notification
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{campaigns: map[string]*Campaign{}}
}

func (f *fakeRepo) Create(ctx context.Context, c *Campaign) error {
	if c.ID == "" {
		c.ID = "camp-" + c.Name
	}
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) List(ctx context.Context, activeOnly bool) ([]*Campaign, error) {
	var out []*Campaign
	for _, c := range f.campaigns {
		if activeOnly && !c.Active {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRepo) CreateNotifications(ctx context.Context, notifications []*Notification) error {
	for i, n := range notifications {
		if n.ID == "" {
			n.ID = "notif-" + string(rune('a'+i))
		}
	}
	f.notifications = append(f.notifications, notifications...)
	return nil
}

func (f *fakeRepo) ListNotifications(ctx context.Context, status NotificationStatus) ([]*Notification, error) {
	var out []*Notification
	for _, n := range f.notifications {
		if status == "" || n.Status == status {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepo) UpdateNotificationStatus(ctx context.Context, id string, status NotificationStatus, meta map[string]any) error {
	for _, n := range f.notifications {
		if n.ID == id {
			n.Status = status
			n.Meta = meta
			return nil
		}
	}
	return ErrNotFound
}

type fakeSegments struct {
	views map[string]*SegmentView
	users map[string][]string
}

func (f *fakeSegments) PreviewUsers(ctx context.Context, segmentID string) ([]string, error) {
	return f.users[segmentID], nil
}

func (f *fakeSegments) Get(ctx context.Context, id string) (*SegmentView, error) {
	v, ok := f.views[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

type fakeGenerator struct{ response string }

func (f *fakeGenerator) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int, fallback string) string {
	if f.response == "" {
		return fallback
	}
	return f.response
}

type fakeSender struct {
	results []sdk.NotificationResult
	err     error
}

func (f *fakeSender) SendBatch(ctx context.Context, reqs []sdk.NotificationRequest) ([]sdk.NotificationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestCreateUsesFallbackCopyWhenLLMUnconfigured(t *testing.T) {
	repo := newFakeRepo()
	segments := &fakeSegments{views: map[string]*SegmentView{
		"seg1": {ID: "seg1", Active: true, PreferencesContains: map[string]any{"diet": "vegetariano"}},
	}}
	svc := New(repo, segments, &fakeGenerator{}, &fakeSender{})

	c, err := svc.Create(context.Background(), CreateRequest{Name: "Promo", SegmentIDs: []string{"seg1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Message != fallbackCopy {
		t.Errorf("expected fallback copy, got %q", c.Message)
	}
}

func TestCreateKeepsExplicitMessage(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, &fakeSegments{}, &fakeGenerator{response: "ignored"}, &fakeSender{})

	c, err := svc.Create(context.Background(), CreateRequest{Name: "Promo", Message: "Hand-written copy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Message != "Hand-written copy" {
		t.Errorf("expected explicit message preserved, got %q", c.Message)
	}
}

func TestDispatchCreatesQueuedNotificationsForUnionOfSegments(t *testing.T) {
	repo := newFakeRepo()
	segments := &fakeSegments{
		views: map[string]*SegmentView{
			"seg1": {ID: "seg1", Active: true},
			"seg2": {ID: "seg2", Active: true},
		},
		users: map[string][]string{
			"seg1": {"u1", "u2"},
			"seg2": {"u2", "u3"},
		},
	}
	svc := New(repo, segments, &fakeGenerator{}, &fakeSender{})
	c, _ := svc.Create(context.Background(), CreateRequest{Name: "Promo", Message: "hi", SegmentIDs: []string{"seg1", "seg2"}})

	notifications, err := svc.Dispatch(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifications) != 3 {
		t.Errorf("expected 3 deduplicated notifications (u1,u2,u3), got %d", len(notifications))
	}
	for _, n := range notifications {
		if n.Status != StatusQueued {
			t.Errorf("expected queued status, got %s", n.Status)
		}
	}
}

func TestDispatchRejectsInactiveCampaign(t *testing.T) {
	repo := newFakeRepo()
	repo.campaigns["c1"] = &Campaign{ID: "c1", Active: false}
	svc := New(repo, &fakeSegments{}, &fakeGenerator{}, &fakeSender{})

	_, err := svc.Dispatch(context.Background(), "c1")
	if err != ErrInactive {
		t.Errorf("expected ErrInactive, got %v", err)
	}
}

func TestSendTransitionsQueuedToSentOrFailed(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	repo.campaigns["c1"] = &Campaign{ID: "c1", Name: "Promo", Active: true}
	repo.notifications = []*Notification{
		{ID: "n1", UserID: "u1", CampaignID: "c1", Status: StatusQueued, CreatedAt: now, UpdatedAt: now},
		{ID: "n2", UserID: "u2", CampaignID: "c1", Status: StatusQueued, CreatedAt: now, UpdatedAt: now},
	}
	sender := &fakeSender{results: []sdk.NotificationResult{
		{ID: "n1", Status: "sent"},
		{ID: "n2", Status: "failed", Error: "410 gone"},
	}}
	svc := New(repo, &fakeSegments{}, &fakeGenerator{}, sender)

	res, err := svc.Send(context.Background(), "c1", "webpush")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Errorf("expected 1 sent, 1 failed, got %+v", res)
	}
	if repo.notifications[0].Status != StatusSent || repo.notifications[1].Status != StatusFailed {
		t.Errorf("expected statuses updated in place, got %s/%s", repo.notifications[0].Status, repo.notifications[1].Status)
	}
}

func TestSendLeavesNotificationsQueuedWhenSenderUnavailable(t *testing.T) {
	repo := newFakeRepo()
	now := time.Now()
	repo.campaigns["c1"] = &Campaign{ID: "c1", Name: "Promo", Active: true}
	repo.notifications = []*Notification{
		{ID: "n1", UserID: "u1", CampaignID: "c1", Status: StatusQueued, CreatedAt: now, UpdatedAt: now},
	}
	svc := New(repo, &fakeSegments{}, &fakeGenerator{}, &fakeSender{err: errSenderDown})

	res, err := svc.Send(context.Background(), "c1", "webpush")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Warning == "" {
		t.Error("expected a warning when the sender is unavailable")
	}
	if repo.notifications[0].Status != StatusQueued {
		t.Errorf("expected notification to remain queued, got %s", repo.notifications[0].Status)
	}
}

var errSenderDown = &sendErr{"sender unreachable"}

type sendErr struct{ msg string }

func (e *sendErr) Error() string { return e.msg }
