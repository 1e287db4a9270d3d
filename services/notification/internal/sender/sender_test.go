package sender

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type fakeRepo struct {
	records map[string]*Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: map[string]*Record{}}
}

func (f *fakeRepo) Create(ctx context.Context, r *Record) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	f.records[r.ID] = r
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (*Record, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id string, status Status, meta map[string]any) error {
	r, ok := f.records[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	r.Meta = meta
	return nil
}

func (f *fakeRepo) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByChannel: map[string]int{}}
	for _, r := range f.records {
		stats.Total++
		stats.ByChannel[r.Channel]++
		switch r.Status {
		case StatusQueued:
			stats.Queued++
		case StatusSent:
			stats.Sent++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

type fakeSubs struct {
	active      map[string]map[string]any
	deactivated []string
}

func (f *fakeSubs) GetActive(ctx context.Context, userID, channel string) (*SubscriptionView, error) {
	data, ok := f.active[userID+":"+channel]
	if !ok {
		return nil, errors.New("no subscription")
	}
	return &SubscriptionView{Data: data}, nil
}

func (f *fakeSubs) Deactivate(ctx context.Context, userID, channel string) error {
	f.deactivated = append(f.deactivated, userID+":"+channel)
	return nil
}

type fakeWebpush struct {
	result WebpushResult
}

func (f *fakeWebpush) Send(data map[string]any, title, message string, extra map[string]any) WebpushResult {
	return f.result
}

func TestSendWithoutSubscriptionFailsImmediately(t *testing.T) {
	repo := newFakeRepo()
	svc := New(repo, &fakeSubs{active: map[string]map[string]any{}}, &fakeWebpush{}, nil)

	rec, err := svc.Send(context.Background(), Request{UserID: "u1", Channel: ChannelWebpush, Title: "Hi", Message: "there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if repo.records[rec.ID].Meta["error"] != "no subscription" {
		t.Errorf("expected no-subscription error recorded, got %v", repo.records[rec.ID].Meta)
	}
}

func TestSendWebpushSuccess(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{"u1:webpush": {"endpoint": "https://push.example/abc"}}}
	svc := New(repo, subs, &fakeWebpush{result: WebpushResult{Success: true, StatusCode: 201}}, nil)

	rec, err := svc.Send(context.Background(), Request{UserID: "u1", Channel: ChannelWebpush, Title: "Hi", Message: "there"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusSent {
		t.Errorf("expected sent, got %s", rec.Status)
	}
	if repo.records[rec.ID].Meta["delivery_info"] == nil {
		t.Error("expected delivery_info recorded on success")
	}
}

func TestSendWebpushGoneDeactivatesSubscription(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{"u1:webpush": {"endpoint": "https://push.example/abc"}}}
	svc := New(repo, subs, &fakeWebpush{result: WebpushResult{Success: false, StatusCode: 410, Error: "subscription expired or invalid", ShouldRemoveSubscription: true}}, nil)

	rec, _ := svc.Send(context.Background(), Request{UserID: "u1", Channel: ChannelWebpush})
	if rec.Status != StatusFailed {
		t.Errorf("expected failed, got %s", rec.Status)
	}
	if len(subs.deactivated) != 1 || subs.deactivated[0] != "u1:webpush" {
		t.Errorf("expected subscription deactivated, got %v", subs.deactivated)
	}
	if repo.records[rec.ID].Meta["should_remove_subscription"] != true {
		t.Error("expected should_remove_subscription hint recorded")
	}
}

func TestSendWebpushRateLimitedSetsShouldRetry(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{"u1:webpush": {"endpoint": "https://push.example/abc"}}}
	svc := New(repo, subs, &fakeWebpush{result: WebpushResult{Success: false, StatusCode: 429, Error: "rate limit exceeded", ShouldRetry: true}}, nil)

	rec, _ := svc.Send(context.Background(), Request{UserID: "u1", Channel: ChannelWebpush})
	if repo.records[rec.ID].Meta["should_retry"] != true {
		t.Error("expected should_retry hint recorded")
	}
	if len(subs.deactivated) != 0 {
		t.Error("rate limiting should not deactivate the subscription")
	}
}

func TestSendAndroidIOSAreStubSuccess(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{
		"u1:android": {"token": "abc"},
		"u1:ios":     {"token": "def"},
	}}
	svc := New(repo, subs, &fakeWebpush{}, nil)

	for _, ch := range []string{ChannelAndroid, ChannelIOS} {
		rec, err := svc.Send(context.Background(), Request{UserID: "u1", Channel: ch})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Status != StatusSent {
			t.Errorf("expected %s to stub-succeed, got %s", ch, rec.Status)
		}
	}
}

func TestSendBatchReturnsPerItemOutcomes(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{"u1:webpush": {"endpoint": "x"}}}
	svc := New(repo, subs, &fakeWebpush{result: WebpushResult{Success: true, StatusCode: 201}}, nil)

	results, err := svc.SendBatch(context.Background(), []Request{
		{UserID: "u1", Channel: ChannelWebpush},
		{UserID: "u2", Channel: ChannelWebpush},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != string(StatusSent) {
		t.Errorf("expected u1 sent, got %s", results[0].Status)
	}
	if results[1].Status != string(StatusFailed) {
		t.Errorf("expected u2 failed (no subscription), got %s", results[1].Status)
	}
}

type publishRecorder struct {
	published []string
	err       error
}

func (p *publishRecorder) Publish(ctx context.Context, id string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, id)
	return nil
}

func TestSendPublishesToQueueInsteadOfDeliveringInline(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{"u1:webpush": {"endpoint": "x"}}}
	queue := &publishRecorder{}
	svc := New(repo, subs, &fakeWebpush{result: WebpushResult{Success: true}}, queue)

	rec, err := svc.Send(context.Background(), Request{UserID: "u1", Channel: ChannelWebpush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusQueued {
		t.Errorf("expected record to remain queued pending the consumer, got %s", rec.Status)
	}
	if len(queue.published) != 1 || queue.published[0] != rec.ID {
		t.Errorf("expected notification id published, got %v", queue.published)
	}
}

func TestSendFallsBackToInlineDeliveryWhenPublishFails(t *testing.T) {
	repo := newFakeRepo()
	subs := &fakeSubs{active: map[string]map[string]any{"u1:webpush": {"endpoint": "x"}}}
	queue := &publishRecorder{err: errors.New("broker unavailable")}
	svc := New(repo, subs, &fakeWebpush{result: WebpushResult{Success: true, StatusCode: 201}}, queue)

	rec, err := svc.Send(context.Background(), Request{UserID: "u1", Channel: ChannelWebpush})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != StatusSent {
		t.Errorf("expected inline delivery fallback to succeed, got %s", rec.Status)
	}
}
