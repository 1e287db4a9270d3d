package segment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// PostgresRepository is Repository backed by Postgres, grounded on
// ledger/internal/marketstore/repo.go's raw database/sql idiom.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the segments table if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		filters JSONB NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, s *Segment) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	filters, err := json.Marshal(s.Filters)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO segments (id, name, description, filters, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.Name, s.Description, filters, s.Active, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Segment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, filters, active, created_at, updated_at
		FROM segments WHERE id = $1`, id)
	return scanSegment(row)
}

func (r *PostgresRepository) List(ctx context.Context, activeOnly bool) ([]*Segment, error) {
	query := `SELECT id, name, description, filters, active, created_at, updated_at FROM segments`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		s, err := scanSegmentRows(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, s)
	}
	return segments, rows.Err()
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSegment(row scannable) (*Segment, error) {
	s := &Segment{}
	var filters []byte
	err := row.Scan(&s.ID, &s.Name, &s.Description, &filters, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(filters, &s.Filters); err != nil {
		return nil, err
	}
	return s, nil
}

func scanSegmentRows(rows *sql.Rows) (*Segment, error) {
	return scanSegment(rows)
}
