package purchase

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRepository is Repository backed by Postgres, grounded on
// core/internal/cdp/cdp.go's PostgresEventRepository raw-SQL/JSON
// column pattern, generalized from events to purchases.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the purchase_records table if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS purchase_records (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		ticket_id TEXT UNIQUE NOT NULL,
		purchase_date TIMESTAMPTZ NOT NULL,
		store_name TEXT NOT NULL DEFAULT '',
		total_amount NUMERIC NOT NULL DEFAULT 0,
		products JSONB NOT NULL DEFAULT '[]',
		num_products INT NOT NULL DEFAULT 0,
		ticket_type TEXT NOT NULL DEFAULT '',
		is_market_store BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_purchase_records_user_date ON purchase_records (user_id, purchase_date DESC);`)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	products, err := json.Marshal(rec.Products)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO purchase_records (id, user_id, ticket_id, purchase_date, store_name, total_amount, products, num_products, ticket_type, is_market_store, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.UserID, rec.TicketID, rec.PurchaseDate, rec.StoreName, rec.TotalAmount,
		products, rec.NumProducts, rec.TicketType, rec.IsMarketStore, rec.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateTicket
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Record, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM purchase_records WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ticket_id, purchase_date, store_name, total_amount, products, num_products, ticket_type, is_market_store, created_at
		FROM purchase_records WHERE user_id = $1 ORDER BY purchase_date DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	records, err := scanAll(rows)
	return records, total, err
}

func (r *PostgresRepository) ListByUserSince(ctx context.Context, userID string, since time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ticket_id, purchase_date, store_name, total_amount, products, num_products, ticket_type, is_market_store, created_at
		FROM purchase_records WHERE user_id = $1 AND purchase_date >= $2 ORDER BY purchase_date DESC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (r *PostgresRepository) ListLatestByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ticket_id, purchase_date, store_name, total_amount, products, num_products, ticket_type, is_market_store, created_at
		FROM purchase_records WHERE user_id = $1 ORDER BY purchase_date DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (r *PostgresRepository) SpendAndCountSince(ctx context.Context, since time.Time) (map[string]UserAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, COALESCE(sum(total_amount), 0), count(*)
		FROM purchase_records WHERE purchase_date >= $1 GROUP BY user_id`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]UserAggregate{}
	for rows.Next() {
		var userID string
		var agg UserAggregate
		if err := rows.Scan(&userID, &agg.TotalSpent, &agg.NumPurchases); err != nil {
			return nil, err
		}
		out[userID] = agg
	}
	return out, rows.Err()
}

func (r *PostgresRepository) DistinctUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM purchase_records`)
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

func (r *PostgresRepository) PurchaseRollup(ctx context.Context) (TotalRollup, error) {
	var rollup TotalRollup
	err := r.db.QueryRowContext(ctx, `SELECT count(*), COALESCE(sum(total_amount), 0) FROM purchase_records`).
		Scan(&rollup.TotalPurchases, &rollup.TotalSpent)
	return rollup, err
}

func scanAll(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var products []byte
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TicketID, &rec.PurchaseDate, &rec.StoreName,
			&rec.TotalAmount, &products, &rec.NumProducts, &rec.TicketType, &rec.IsMarketStore, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if len(products) > 0 {
			if err := json.Unmarshal(products, &rec.Products); err != nil {
				return nil, err
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
