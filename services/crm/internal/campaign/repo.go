package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

// PostgresRepository is Repository backed by Postgres, grounded on
// segment/repo.go's JSONB-column entity-store idiom.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the campaigns, campaign_segments link, and
// campaign_notifications tables if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS campaigns (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS campaign_segments (
		campaign_id TEXT NOT NULL REFERENCES campaigns(id),
		segment_id TEXT NOT NULL,
		PRIMARY KEY (campaign_id, segment_id)
	);

	CREATE TABLE IF NOT EXISTS campaign_notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		campaign_id TEXT REFERENCES campaigns(id),
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		meta JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_campaign_notifications_status ON campaign_notifications (status);
	CREATE INDEX IF NOT EXISTS idx_campaign_notifications_campaign ON campaign_notifications (campaign_id);
	`)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, c *Campaign) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, name, description, message, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Description, c.Message, c.Active, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return err
	}

	for _, segID := range c.SegmentIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_segments (campaign_id, segment_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, c.ID, segID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, message, active, created_at, updated_at
		FROM campaigns WHERE id = $1`, id)
	c := &Campaign{}
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Message, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.SegmentIDs, err = r.segmentIDs(ctx, id)
	return c, err
}

func (r *PostgresRepository) segmentIDs(ctx context.Context, campaignID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT segment_id FROM campaign_segments WHERE campaign_id = $1`, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) List(ctx context.Context, activeOnly bool) ([]*Campaign, error) {
	query := `SELECT id, name, description, message, active, created_at, updated_at FROM campaigns`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var campaigns []*Campaign
	for rows.Next() {
		c := &Campaign{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Message, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range campaigns {
		c.SegmentIDs, err = r.segmentIDs(ctx, c.ID)
		if err != nil {
			return nil, err
		}
	}
	return campaigns, nil
}

func (r *PostgresRepository) CreateNotifications(ctx context.Context, notifications []*Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_notifications (id, user_id, campaign_id, message, status, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range notifications {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		meta, err := json.Marshal(n.Meta)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, n.ID, n.UserID, n.CampaignID, n.Message, n.Status, meta, n.CreatedAt, n.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, status NotificationStatus) ([]*Notification, error) {
	query := `SELECT id, user_id, COALESCE(campaign_id, ''), message, status, meta, created_at, updated_at FROM campaign_notifications`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n := &Notification{}
		var meta []byte
		var statusStr string
		if err := rows.Scan(&n.ID, &n.UserID, &n.CampaignID, &n.Message, &statusStr, &meta, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.Status = NotificationStatus(statusStr)
		if err := json.Unmarshal(meta, &n.Meta); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *PostgresRepository) UpdateNotificationStatus(ctx context.Context, id string, status NotificationStatus, meta map[string]any) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaign_notifications SET status=$2, meta=$3, updated_at=now() WHERE id=$1`,
		id, string(status), metaJSON)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
