package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresRepository is Repository backed by Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the tickets table if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		original_filename TEXT NOT NULL DEFAULT '',
		file_ref TEXT NOT NULL DEFAULT '',
		size BIGINT NOT NULL DEFAULT 0,
		mime TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		metadata JSONB NOT NULL DEFAULT '{}',
		processing_result JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_tickets_status_created ON tickets (status, created_at);
	CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets (user_id, created_at DESC);`)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	var result []byte
	if t.ProcessingResult != nil {
		if result, err = json.Marshal(t.ProcessingResult); err != nil {
			return err
		}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tickets (id, user_id, filename, original_filename, file_ref, size, mime, status, metadata, processing_result, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.UserID, t.Filename, t.OriginalFilename, t.FileRef, t.Size, t.Mime, t.Status, meta, result, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Ticket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, original_filename, file_ref, size, mime, status, metadata, processing_result, created_at, updated_at
		FROM tickets WHERE id = $1`, id)
	return scanOne(row)
}

func (r *PostgresRepository) Update(ctx context.Context, t *Ticket) error {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return err
	}
	var result []byte
	if t.ProcessingResult != nil {
		if result, err = json.Marshal(t.ProcessingResult); err != nil {
			return err
		}
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE tickets SET status=$2, metadata=$3, processing_result=$4, updated_at=$5 WHERE id=$1`,
		t.ID, t.Status, meta, result, t.UpdatedAt)
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

func (r *PostgresRepository) ListPending(ctx context.Context, limit int) ([]*Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, filename, original_filename, file_ref, size, mime, status, metadata, processing_result, created_at, updated_at
		FROM tickets WHERE status = 'pending' ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (r *PostgresRepository) ListTerminalByUser(ctx context.Context, userID string, statuses []Status) ([]*Ticket, error) {
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, userID)
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, string(s))
	}
	query := fmt.Sprintf(`
		SELECT id, user_id, filename, original_filename, file_ref, size, mime, status, metadata, processing_result, created_at, updated_at
		FROM tickets WHERE user_id = $1 AND status IN (%s) ORDER BY created_at DESC`, strings.Join(placeholders, ","))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Ticket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, filename, original_filename, file_ref, size, mime, status, metadata, processing_result, created_at, updated_at
		FROM tickets WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanOne(row *sql.Row) (*Ticket, error) {
	t := &Ticket{}
	var meta, result []byte
	err := row.Scan(&t.ID, &t.UserID, &t.Filename, &t.OriginalFilename, &t.FileRef, &t.Size, &t.Mime, &t.Status,
		&meta, &result, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	unmarshalTicket(t, meta, result)
	return t, nil
}

func scanAll(rows *sql.Rows) ([]*Ticket, error) {
	var out []*Ticket
	for rows.Next() {
		t := &Ticket{}
		var meta, result []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Filename, &t.OriginalFilename, &t.FileRef, &t.Size, &t.Mime, &t.Status,
			&meta, &result, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		unmarshalTicket(t, meta, result)
		out = append(out, t)
	}
	return out, rows.Err()
}

func unmarshalTicket(t *Ticket, meta, result []byte) {
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &t.Metadata)
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	if len(result) > 0 {
		_ = json.Unmarshal(result, &t.ProcessingResult)
	}
}
