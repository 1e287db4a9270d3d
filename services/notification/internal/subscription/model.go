// Package subscription stores per-user, per-channel delivery endpoints
// (spec.md §3's UserSubscription), grounded on ledger/internal/marketstore's
// raw database/sql repository idiom.
package subscription

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals no active subscription for a user/channel pair.
var ErrNotFound = errors.New("subscription not found")

// Subscription is spec.md §3's UserSubscription entity.
type Subscription struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Channel     string         `json:"channel"`
	Data        map[string]any `json:"subscription_data"`
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Repository persists subscriptions.
type Repository interface {
	Upsert(ctx context.Context, s *Subscription) error
	GetActive(ctx context.Context, userID, channel string) (*Subscription, error)
	Deactivate(ctx context.Context, userID, channel string) error
}

// PostgresRepository is a database/sql-backed Repository.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the user_subscriptions table if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_subscriptions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			subscription_data JSONB NOT NULL DEFAULT '{}',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, channel)
		)
	`)
	return err
}

// Upsert creates or replaces the subscription for a user/channel pair.
func (r *PostgresRepository) Upsert(ctx context.Context, s *Subscription) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	data, err := json.Marshal(s.Data)
	if err != nil {
		return err
	}
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_subscriptions (id, user_id, channel, subscription_data, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, channel) DO UPDATE SET
			subscription_data = EXCLUDED.subscription_data,
			active = TRUE,
			updated_at = EXCLUDED.updated_at
	`, s.ID, s.UserID, s.Channel, data, true, s.CreatedAt, s.UpdatedAt)
	return err
}

// GetActive returns the active subscription for a user/channel pair.
func (r *PostgresRepository) GetActive(ctx context.Context, userID, channel string) (*Subscription, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, channel, subscription_data, active, created_at, updated_at
		FROM user_subscriptions WHERE user_id = $1 AND channel = $2 AND active = TRUE
	`, userID, channel)
	s, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// Deactivate marks a user/channel subscription inactive, e.g. after the
// webpush adapter signals should_remove_subscription.
func (r *PostgresRepository) Deactivate(ctx context.Context, userID, channel string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_subscriptions SET active = FALSE, updated_at = $3
		WHERE user_id = $1 AND channel = $2
	`, userID, channel, time.Now())
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*Subscription, error) {
	var s Subscription
	var data []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Channel, &data, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.Data); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
