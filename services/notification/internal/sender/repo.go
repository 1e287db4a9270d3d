package sender

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository is a database/sql-backed Repository, grounded on
// ledger/internal/marketstore's repository shape.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the notification_records table if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notification_records (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			meta JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Create inserts a new queued record, assigning an id if absent.
func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return err
	}
	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notification_records (id, user_id, title, message, channel, status, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.UserID, rec.Title, rec.Message, rec.Channel, string(rec.Status), meta, rec.CreatedAt, rec.UpdatedAt)
	return err
}

// GetByID fetches one record.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, message, channel, status, meta, created_at, updated_at
		FROM notification_records WHERE id = $1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// UpdateStatus transitions a record's status and replaces its meta.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, meta map[string]any) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_records SET status = $2, meta = $3, updated_at = $4 WHERE id = $1
	`, id, string(status), data, time.Now())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates totals by status and channel.
func (r *PostgresRepository) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{ByChannel: map[string]int{}}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM notification_records GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Total += count
		switch Status(status) {
		case StatusQueued:
			stats.Queued = count
		case StatusSent:
			stats.Sent = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	chRows, err := r.db.QueryContext(ctx, `SELECT channel, COUNT(*) FROM notification_records GROUP BY channel`)
	if err != nil {
		return stats, err
	}
	defer chRows.Close()
	for chRows.Next() {
		var channel string
		var count int
		if err := chRows.Scan(&channel, &count); err != nil {
			return stats, err
		}
		stats.ByChannel[channel] = count
	}
	return stats, chRows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*Record, error) {
	var rec Record
	var status string
	var meta []byte
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &rec.Message, &rec.Channel, &status, &meta, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	rec.Meta = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}
