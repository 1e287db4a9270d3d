package ticket

import (
	"context"
	"testing"
)

type fakeRepo struct {
	created []*Ticket
}

func (f *fakeRepo) Create(ctx context.Context, t *Ticket) error {
	f.created = append(f.created, t)
	return nil
}
func (f *fakeRepo) GetByID(ctx context.Context, id string) (*Ticket, error) {
	for _, t := range f.created {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ErrNotFound
}
func (f *fakeRepo) Update(ctx context.Context, t *Ticket) error                         { return nil }
func (f *fakeRepo) ListPending(ctx context.Context, limit int) ([]*Ticket, error)       { return nil, nil }
func (f *fakeRepo) ListTerminalByUser(ctx context.Context, userID string, statuses []Status) ([]*Ticket, error) {
	return nil, nil
}
func (f *fakeRepo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Ticket, error) {
	return nil, nil
}

type fakeBlobs struct {
	stored map[string][]byte
}

func (f *fakeBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	f.stored[key] = data
	return "ref/" + key, nil
}
func (f *fakeBlobs) Get(ctx context.Context, ref string) ([]byte, error) {
	return f.stored[ref], nil
}

func TestUpload_RejectsUnsupportedExtension(t *testing.T) {
	svc := NewService(&fakeRepo{}, &fakeBlobs{}, 0)
	_, err := svc.Upload(context.Background(), "user-1", "ticket.pdf", []byte("data"), "application/pdf")
	if err != ErrUnsupportedMimeType {
		t.Fatalf("expected ErrUnsupportedMimeType, got %v", err)
	}
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	svc := NewService(&fakeRepo{}, &fakeBlobs{}, 4)
	_, err := svc.Upload(context.Background(), "user-1", "ticket.jpg", []byte("too big"), "image/jpeg")
	if err != ErrFileTooLarge {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestUpload_PersistsPendingTicket(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, &fakeBlobs{}, 0)
	ticket, err := svc.Upload(context.Background(), "user-1", "ticket.jpg", []byte("data"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.Status != StatusPending {
		t.Errorf("expected status pending, got %s", ticket.Status)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected 1 created ticket, got %d", len(repo.created))
	}
}

func TestCreateDigital_SkipsProcessing(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, &fakeBlobs{}, 0)
	req := DigitalTicketRequest{
		UserID:      "user-1",
		StoreName:   "Mercadona",
		TotalAmount: 12.5,
		Products:    []DigitalProduct{{Name: "Pan", Quantity: 1, Price: 1.2}},
	}
	ticket, err := svc.CreateDigital(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticket.Status != StatusDoneApproved {
		t.Errorf("expected status done_approved, got %s", ticket.Status)
	}
	if ticket.Metadata["type"] != "digital" {
		t.Errorf("expected metadata.type=digital, got %v", ticket.Metadata["type"])
	}
}
