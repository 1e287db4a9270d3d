package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresRepository is the Repository backed by Postgres, grounded on
// crm/internal/customer/repo.go's raw database/sql + ON CONFLICT idiom.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates the users table if absent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		google_id TEXT UNIQUE,
		facebook_id TEXT UNIQUE,
		preferences JSONB NOT NULL DEFAULT '{}',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	return err
}

func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, google_id, facebook_id, preferences, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)`,
		user.ID, user.Email, user.PasswordHash, user.Role, user.GoogleID, user.FacebookID,
		prefs, user.Active, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, role, COALESCE(google_id, ''), COALESCE(facebook_id, ''), preferences, active, created_at, updated_at FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, role, COALESCE(google_id, ''), COALESCE(facebook_id, ''), preferences, active, created_at, updated_at FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) GetByGoogleID(ctx context.Context, id string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, role, COALESCE(google_id, ''), COALESCE(facebook_id, ''), preferences, active, created_at, updated_at FROM users WHERE google_id = $1`, id)
}

func (r *PostgresRepository) GetByFacebookID(ctx context.Context, id string) (*User, error) {
	return r.scanOne(ctx, `SELECT id, email, password_hash, role, COALESCE(google_id, ''), COALESCE(facebook_id, ''), preferences, active, created_at, updated_at FROM users WHERE facebook_id = $1`, id)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg string) (*User, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	u := &User{}
	var prefs []byte
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.GoogleID, &u.FacebookID, &prefs, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return nil, fmt.Errorf("unmarshal preferences: %w", err)
		}
	}
	if u.Preferences == nil {
		u.Preferences = map[string]any{}
	}
	return u, nil
}

func (r *PostgresRepository) Update(ctx context.Context, user *User) error {
	prefs, err := json.Marshal(user.Preferences)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email=$2, password_hash=$3, role=$4, google_id=NULLIF($5,''), facebook_id=NULLIF($6,''),
			preferences=$7, active=$8, updated_at=$9
		WHERE id=$1`,
		user.ID, user.Email, user.PasswordHash, user.Role, user.GoogleID, user.FacebookID,
		prefs, user.Active, user.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, password_hash, role, COALESCE(google_id, ''), COALESCE(facebook_id, ''), preferences, active, created_at, updated_at
		FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		var prefs []byte
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.GoogleID, &u.FacebookID, &prefs, &u.Active, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, err
		}
		if len(prefs) > 0 {
			_ = json.Unmarshal(prefs, &u.Preferences)
		}
		if u.Preferences == nil {
			u.Preferences = map[string]any{}
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *PostgresRepository) CountByRole(ctx context.Context) (map[Role]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT role, count(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[Role]int{}
	for rows.Next() {
		var role Role
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		counts[role] = n
	}
	return counts, rows.Err()
}
