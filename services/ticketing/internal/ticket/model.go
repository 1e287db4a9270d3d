// Package ticket implements C4, the ticket lifecycle record (image or
// digital) plus upload validation.
package ticket

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrNotFound            = errors.New("ticket not found")
	ErrUnsupportedMimeType = errors.New("unsupported file extension")
	ErrFileTooLarge        = errors.New("file exceeds the size ceiling")
)

// Status is a ticket's lifecycle state (spec.md §3).
type Status string

const (
	StatusPending       Status = "pending"
	StatusDoneApproved  Status = "done_approved"
	StatusDoneRejected  Status = "done_rejected"
	StatusDuplicate     Status = "duplicate"
	StatusFailed        Status = "failed"
)

// allowedExtensions is the upload extension allowlist (spec.md §4.4).
var allowedExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Ticket is a user-submitted purchase record awaiting or having
// completed processing (spec.md §3 Ticket entity).
type Ticket struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	FileRef          string         `json:"file_ref"`
	Size             int64          `json:"size"`
	Mime             string         `json:"mime"`
	Status           Status         `json:"status"`
	Metadata         map[string]any `json:"metadata"`
	ProcessingResult map[string]any `json:"processing_result,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DigitalTicketRequest is the vendor-submitted payload for a ticket
// that skips image processing entirely (spec.md §4.4).
type DigitalTicketRequest struct {
	UserID       string           `json:"user_id"`
	StoreName    string           `json:"store_name"`
	TotalAmount  float64          `json:"total_amount"`
	Products     []DigitalProduct `json:"products"`
	PurchaseDate string           `json:"purchase_date"`
}

// DigitalProduct is one line item of a digital ticket.
type DigitalProduct struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

// Repository persists Ticket records.
type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	GetByID(ctx context.Context, id string) (*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	ListPending(ctx context.Context, limit int) ([]*Ticket, error)
	ListTerminalByUser(ctx context.Context, userID string, statuses []Status) ([]*Ticket, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Ticket, error)
}

// Blobs stores and retrieves uploaded ticket image bytes.
type Blobs interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (ref string, err error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Service implements C4's lifecycle operations.
type Service struct {
	repo  Repository
	blobs Blobs
	maxSize int64
}

// NewService builds the ticket service; maxSize bounds upload size in bytes.
func NewService(repo Repository, blobs Blobs, maxSize int64) *Service {
	return &Service{repo: repo, blobs: blobs, maxSize: maxSize}
}

// Upload validates and persists an image upload as a pending ticket.
func (s *Service) Upload(ctx context.Context, userID, originalFilename string, data []byte, mime string) (*Ticket, error) {
	ext := strings.ToLower(filepath.Ext(originalFilename))
	if !allowedExtensions[ext] {
		return nil, ErrUnsupportedMimeType
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, ErrFileTooLarge
	}

	now := time.Now()
	filename := generateFilename(userID, ext)
	ref, err := s.blobs.Put(ctx, filename, data, mime)
	if err != nil {
		return nil, err
	}

	t := &Ticket{
		UserID:           userID,
		Filename:         filename,
		OriginalFilename: originalFilename,
		FileRef:          ref,
		Size:             int64(len(data)),
		Mime:             mime,
		Status:           StatusPending,
		Metadata:         map[string]any{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// CreateDigital creates an already-approved ticket for a vendor-entered
// purchase that skips the vision pipeline entirely (spec.md §4.4).
func (s *Service) CreateDigital(ctx context.Context, req DigitalTicketRequest) (*Ticket, error) {
	now := time.Now()
	t := &Ticket{
		UserID:    req.UserID,
		Filename:  "digital",
		Status:    StatusDoneApproved,
		Metadata: map[string]any{
			"type":          "digital",
			"store_name":    req.StoreName,
			"total_amount":  req.TotalAmount,
			"products":      req.Products,
			"purchase_date": req.PurchaseDate,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns a ticket by id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.repo.GetByID(ctx, id)
}

// ImageBytes returns the blob content for a ticket that has one.
func (s *Service) ImageBytes(ctx context.Context, t *Ticket) ([]byte, error) {
	if t.FileRef == "" {
		return nil, errors.New("ticket has no associated image")
	}
	return s.blobs.Get(ctx, t.FileRef)
}

// ListPending returns pending tickets FIFO-ordered, bounded by limit
// (spec.md §4.6 step 1).
func (s *Service) ListPending(ctx context.Context, limit int) ([]*Ticket, error) {
	return s.repo.ListPending(ctx, limit)
}

// ListTerminalByUser returns a user's terminal tickets eligible for
// duplicate comparison (spec.md §4.6 step d).
func (s *Service) ListTerminalByUser(ctx context.Context, userID string) ([]*Ticket, error) {
	return s.repo.ListTerminalByUser(ctx, userID, []Status{StatusDoneApproved, StatusDoneRejected, StatusDuplicate})
}

// ListByUser returns a user's ticket history, paginated.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Ticket, error) {
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// Update persists a ticket's new status/metadata/processing_result
// (called by the ingestion worker after C5/C7).
func (s *Service) Update(ctx context.Context, t *Ticket) error {
	t.UpdatedAt = time.Now()
	return s.repo.Update(ctx, t)
}

func generateFilename(userID, ext string) string {
	return userID + "-" + time.Now().UTC().Format("20060102T150405.000000000") + ext
}
