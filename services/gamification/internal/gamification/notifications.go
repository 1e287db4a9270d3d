package gamification

import (
	"context"
	"time"
)

// UserNotification is an in-app notification targeted at one user
// (spec.md §4.8 "In-app notifications").
type UserNotification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      string     `json:"notification_type"`
	Read      bool       `json:"is_read"`
	RelatedID string     `json:"related_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// NotificationStats is the per-type breakdown served alongside a
// user's notification list.
type NotificationStats struct {
	Total      int                    `json:"total_notifications"`
	Unread     int                    `json:"unread_notifications"`
	ByType     map[string]TypeCount   `json:"type_counts"`
}

// TypeCount is one notification type's total/unread split.
type TypeCount struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *UserNotification) error
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]UserNotification, error)
	MarkRead(ctx context.Context, id, userID string, readAt time.Time) (*UserNotification, error)
	MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error)
	Stats(ctx context.Context, userID string) (*NotificationStats, error)
}

// NotificationService implements C8's in-app notification surface.
type NotificationService struct {
	repo NotificationRepository
}

// NewNotificationService builds a NotificationService.
func NewNotificationService(repo NotificationRepository) *NotificationService {
	return &NotificationService{repo: repo}
}

// Create persists a new in-app notification.
func (s *NotificationService) Create(ctx context.Context, userID, title, message, notifType, relatedID string) (*UserNotification, error) {
	n := &UserNotification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		RelatedID: relatedID,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// List returns a user's notifications, optionally filtering to unread.
func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]UserNotification, error) {
	return s.repo.List(ctx, userID, unreadOnly, limit, offset)
}

// MarkRead marks a single notification read; idempotent if already read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userID string) (*UserNotification, error) {
	return s.repo.MarkRead(ctx, id, userID, time.Now())
}

// MarkAllRead marks every unread notification for a user as read and
// returns the count updated.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.repo.MarkAllRead(ctx, userID, time.Now())
}

// Stats returns a user's notification counts, overall and per type.
func (s *NotificationService) Stats(ctx context.Context, userID string) (*NotificationStats, error) {
	return s.repo.Stats(ctx, userID)
}
