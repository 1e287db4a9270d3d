package gamification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository, RewardRepository,
// SpecialRewardRepository, and NotificationRepository over a single
// Postgres connection pool.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository builds a PostgresRepository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema creates every table the engine touches.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS user_gamification (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL UNIQUE,
		level INTEGER NOT NULL DEFAULT 1,
		experience INTEGER NOT NULL DEFAULT 0,
		total_tickets INTEGER NOT NULL DEFAULT 0,
		valid_tickets INTEGER NOT NULL DEFAULT 0,
		total_spent DOUBLE PRECISION NOT NULL DEFAULT 0,
		streak_days INTEGER NOT NULL DEFAULT 0,
		last_scan_date TIMESTAMPTZ,
		badges_earned INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS user_badges (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		badge_type TEXT NOT NULL,
		badge_name TEXT NOT NULL,
		badge_description TEXT NOT NULL,
		earned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_active BOOLEAN NOT NULL DEFAULT true
	);
	CREATE INDEX IF NOT EXISTS idx_user_badges_user ON user_badges (user_id, is_active);

	CREATE TABLE IF NOT EXISTS experience_log (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		ticket_id TEXT,
		experience_gained INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_experience_log_user ON experience_log (user_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		points_cost INTEGER NOT NULL,
		reward_type TEXT NOT NULL,
		reward_value TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		max_redemptions INTEGER,
		current_redemptions INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS reward_redemptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL REFERENCES rewards(id),
		points_spent INTEGER NOT NULL,
		redemption_code TEXT NOT NULL UNIQUE,
		is_used BOOLEAN NOT NULL DEFAULT false,
		used_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_reward_redemptions_user ON reward_redemptions (user_id);

	CREATE TABLE IF NOT EXISTS special_rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		reward_type TEXT NOT NULL,
		reward_value TEXT NOT NULL,
		is_global BOOLEAN NOT NULL DEFAULT false,
		target_users JSONB NOT NULL DEFAULT '[]',
		target_segments JSONB NOT NULL DEFAULT '[]',
		max_redemptions INTEGER,
		expires_at TIMESTAMPTZ,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_special_rewards_active ON special_rewards (is_active);

	CREATE TABLE IF NOT EXISTS special_reward_redemptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		special_reward_id TEXT NOT NULL REFERENCES special_rewards(id),
		redemption_code TEXT NOT NULL UNIQUE,
		is_used BOOLEAN NOT NULL DEFAULT false,
		used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_sr_redemptions_user ON special_reward_redemptions (user_id, special_reward_id);

	CREATE TABLE IF NOT EXISTS user_notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		notification_type TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT false,
		related_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		read_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_user_notifications_user ON user_notifications (user_id, created_at DESC);
	`)
	return err
}

// --- Repository (profiles, badges, experience log) ---

func (r *PostgresRepository) GetOrCreateProfile(ctx context.Context, userID string) (*Profile, error) {
	p := &Profile{}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, level, experience, total_tickets, valid_tickets, total_spent, streak_days, last_scan_date, badges_earned, created_at, updated_at
		FROM user_gamification WHERE user_id = $1`, userID)
	err := row.Scan(&p.ID, &p.UserID, &p.Level, &p.Experience, &p.TotalTickets, &p.ValidTickets, &p.TotalSpent, &p.StreakDays, &p.LastScanDate, &p.BadgesEarned, &p.CreatedAt, &p.UpdatedAt)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO user_gamification (id, user_id, level, experience, total_tickets, valid_tickets, total_spent, streak_days, badges_earned)
		VALUES ($1, $2, 1, 0, 0, 0, 0, 0, 0)
		ON CONFLICT (user_id) DO NOTHING`, id, userID)
	if err != nil {
		return nil, err
	}
	return r.GetOrCreateProfile(ctx, userID)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, p *Profile) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_gamification SET level=$2, experience=$3, total_tickets=$4, valid_tickets=$5, total_spent=$6,
			streak_days=$7, last_scan_date=$8, badges_earned=$9, updated_at=now()
		WHERE user_id=$1`,
		p.UserID, p.Level, p.Experience, p.TotalTickets, p.ValidTickets, p.TotalSpent, p.StreakDays, p.LastScanDate, p.BadgesEarned)
	return err
}

func (r *PostgresRepository) ResetProfile(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_gamification SET level=1, experience=0, total_tickets=0, valid_tickets=0, total_spent=0,
			streak_days=0, last_scan_date=NULL, badges_earned=0, updated_at=now()
		WHERE user_id=$1`, userID)
	return err
}

func (r *PostgresRepository) ActiveBadgeTypes(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT badge_type FROM user_badges WHERE user_id=$1 AND is_active=true`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out[t] = true
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AwardBadge(ctx context.Context, b *Badge) error {
	b.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_badges (id, user_id, badge_type, badge_name, badge_description, earned_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, true)`,
		b.ID, b.UserID, b.Type, b.Name, b.Description, b.EarnedAt)
	return err
}

func (r *PostgresRepository) ListBadges(ctx context.Context, userID string) ([]Badge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, badge_type, badge_name, badge_description, earned_at, is_active
		FROM user_badges WHERE user_id=$1 AND is_active=true ORDER BY earned_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Badge
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.ID, &b.UserID, &b.Type, &b.Name, &b.Description, &b.EarnedAt, &b.Active); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AppendExperience(ctx context.Context, e *ExperienceEntry) error {
	e.ID = uuid.NewString()
	var ticketID interface{}
	if e.TicketID != "" {
		ticketID = e.TicketID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO experience_log (id, user_id, ticket_id, experience_gained, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.UserID, ticketID, e.Experience, e.Reason, e.CreatedAt)
	return err
}

func (r *PostgresRepository) ListExperience(ctx context.Context, userID string, limit, offset int) ([]ExperienceEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(ticket_id, ''), experience_gained, reason, created_at
		FROM experience_log WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExperienceEntry
	for rows.Next() {
		var e ExperienceEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.TicketID, &e.Experience, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- RewardRepository ---

func (r *PostgresRepository) GetReward(ctx context.Context, id string) (*Reward, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, points_cost, reward_type, reward_value, is_active, max_redemptions, current_redemptions, created_at, updated_at
		FROM rewards WHERE id=$1`, id)
	rw := &Reward{}
	err := row.Scan(&rw.ID, &rw.Name, &rw.Description, &rw.PointsCost, &rw.RewardType, &rw.RewardValue, &rw.Active, &rw.MaxRedemptions, &rw.CurrentRedemptions, &rw.CreatedAt, &rw.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rw, err
}

func (r *PostgresRepository) ListRewards(ctx context.Context) ([]Reward, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, points_cost, reward_type, reward_value, is_active, max_redemptions, current_redemptions, created_at, updated_at
		FROM rewards ORDER BY points_cost ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reward
	for rows.Next() {
		var rw Reward
		if err := rows.Scan(&rw.ID, &rw.Name, &rw.Description, &rw.PointsCost, &rw.RewardType, &rw.RewardValue, &rw.Active, &rw.MaxRedemptions, &rw.CurrentRedemptions, &rw.CreatedAt, &rw.UpdatedAt); err != nil {
				return nil, err
			}
		out = append(out, rw)
	}
	return out, rows.Err()
}

// Redeem runs the capacity check, the points_cost reservation, and the
// redemption insert inside one transaction so a racing redeem can't
// oversell a capped reward.
func (r *PostgresRepository) Redeem(ctx context.Context, userID string, reward *Reward, code string, expiresAt time.Time) (*Redemption, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var active bool
	var maxRedemptions sql.NullInt64
	var current int
	row := tx.QueryRowContext(ctx, `SELECT is_active, max_redemptions, current_redemptions FROM rewards WHERE id=$1 FOR UPDATE`, reward.ID)
	if err := row.Scan(&active, &maxRedemptions, &current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !active {
		return nil, ErrRewardInactive
	}
	if maxRedemptions.Valid && int64(current) >= maxRedemptions.Int64 {
		return nil, ErrRewardDepleted
	}

	if _, err := tx.ExecContext(ctx, `UPDATE rewards SET current_redemptions = current_redemptions + 1, updated_at = now() WHERE id=$1`, reward.ID); err != nil {
		return nil, err
	}

	red := &Redemption{
		ID:          uuid.NewString(),
		UserID:      userID,
		RewardID:    reward.ID,
		PointsSpent: reward.PointsCost,
		Code:        code,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now(),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO reward_redemptions (id, user_id, reward_id, points_spent, redemption_code, is_used, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		red.ID, red.UserID, red.RewardID, red.PointsSpent, red.Code, red.ExpiresAt, red.CreatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return red, nil
}

func (r *PostgresRepository) GetRedemptionByCode(ctx context.Context, code string) (*Redemption, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, reward_id, points_spent, redemption_code, is_used, used_at, expires_at, created_at
		FROM reward_redemptions WHERE redemption_code=$1`, code)
	red := &Redemption{}
	err := row.Scan(&red.ID, &red.UserID, &red.RewardID, &red.PointsSpent, &red.Code, &red.Used, &red.UsedAt, &red.ExpiresAt, &red.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return red, err
}

func (r *PostgresRepository) UseRedemption(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reward_redemptions SET is_used=true, used_at=$2, updated_at=now() WHERE id=$1`, id, usedAt)
	return err
}

func (r *PostgresRepository) ExpireRedemption(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE reward_redemptions SET expires_at=$2, updated_at=now() WHERE id=$1`, id, expiresAt)
	return err
}

func (r *PostgresRepository) ListRedemptions(ctx context.Context, userID, status string) ([]Redemption, error) {
	query := `
		SELECT id, user_id, reward_id, points_spent, redemption_code, is_used, used_at, expires_at, created_at
		FROM reward_redemptions WHERE user_id=$1`
	switch status {
	case "used":
		query += ` AND is_used=true`
	case "expired":
		query += ` AND is_used=false AND expires_at < now()`
	case "available":
		query += ` AND is_used=false AND expires_at >= now()`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Redemption
	for rows.Next() {
		var red Redemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.RewardID, &red.PointsSpent, &red.Code, &red.Used, &red.UsedAt, &red.ExpiresAt, &red.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, red)
	}
	return out, rows.Err()
}

// --- SpecialRewardRepository ---

func (r *PostgresRepository) CreateSpecialReward(ctx context.Context, sr *SpecialReward) error {
	sr.ID = uuid.NewString()
	targetUsers, err := json.Marshal(nonNilStrings(sr.TargetUsers))
	if err != nil {
		return err
	}
	targetSegments, err := json.Marshal(nonNilStrings(sr.TargetSegments))
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO special_rewards (id, name, description, reward_type, reward_value, is_global, target_users, target_segments, max_redemptions, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		sr.ID, sr.Name, sr.Description, sr.RewardType, sr.RewardValue, sr.IsGlobal, targetUsers, targetSegments, sr.MaxRedemptions, sr.ExpiresAt, sr.Active, sr.CreatedAt)
	return err
}

func (r *PostgresRepository) GetSpecialReward(ctx context.Context, id string) (*SpecialReward, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, reward_type, reward_value, is_global, target_users, target_segments, max_redemptions, expires_at, is_active, created_at
		FROM special_rewards WHERE id=$1`, id)
	return scanSpecialReward(row)
}

func (r *PostgresRepository) ListActiveSpecialRewards(ctx context.Context) ([]SpecialReward, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, reward_type, reward_value, is_global, target_users, target_segments, max_redemptions, expires_at, is_active, created_at
		FROM special_rewards WHERE is_active=true ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SpecialReward
	for rows.Next() {
		sr, err := scanSpecialReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sr)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSpecialReward(row scanner) (*SpecialReward, error) {
	sr := &SpecialReward{}
	var targetUsers, targetSegments []byte
	err := row.Scan(&sr.ID, &sr.Name, &sr.Description, &sr.RewardType, &sr.RewardValue, &sr.IsGlobal, &targetUsers, &targetSegments, &sr.MaxRedemptions, &sr.ExpiresAt, &sr.Active, &sr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targetUsers, &sr.TargetUsers); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(targetSegments, &sr.TargetSegments); err != nil {
		return nil, err
	}
	return sr, nil
}

func (r *PostgresRepository) ListRedemptionsFor(ctx context.Context, userID, specialRewardID string) ([]SpecialRewardRedemption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, special_reward_id, redemption_code, is_used, used_at, created_at
		FROM special_reward_redemptions WHERE user_id=$1 AND special_reward_id=$2 ORDER BY created_at DESC`, userID, specialRewardID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SpecialRewardRedemption
	for rows.Next() {
		var red SpecialRewardRedemption
		if err := rows.Scan(&red.ID, &red.UserID, &red.SpecialRewardID, &red.Code, &red.Used, &red.UsedAt, &red.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, red)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountUsedRedemptions(ctx context.Context, userID, specialRewardID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM special_reward_redemptions WHERE user_id=$1 AND special_reward_id=$2 AND is_used=true`,
		userID, specialRewardID).Scan(&count)
	return count, err
}

func (r *PostgresRepository) CreateDistribution(ctx context.Context, red *SpecialRewardRedemption) error {
	red.ID = uuid.NewString()
	if red.CreatedAt.IsZero() {
		red.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO special_reward_redemptions (id, user_id, special_reward_id, redemption_code, is_used, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		red.ID, red.UserID, red.SpecialRewardID, red.Code, red.Used, red.UsedAt, red.CreatedAt)
	return err
}

func (r *PostgresRepository) MarkDistributionUsed(ctx context.Context, id string, usedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE special_reward_redemptions SET is_used=true, used_at=$2 WHERE id=$1`, id, usedAt)
	return err
}

// --- NotificationRepository ---

func (r *PostgresRepository) Create(ctx context.Context, n *UserNotification) error {
	n.ID = uuid.NewString()
	var relatedID interface{}
	if n.RelatedID != "" {
		relatedID = n.RelatedID
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_notifications (id, user_id, title, message, notification_type, is_read, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, relatedID, n.CreatedAt)
	return err
}

func (r *PostgresRepository) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]UserNotification, error) {
	query := `
		SELECT id, user_id, title, message, notification_type, is_read, COALESCE(related_id, ''), created_at, read_at
		FROM user_notifications WHERE user_id=$1`
	if unreadOnly {
		query += ` AND is_read=false`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserNotification
	for rows.Next() {
		var n UserNotification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.RelatedID, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkRead(ctx context.Context, id, userID string, readAt time.Time) (*UserNotification, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_notifications SET is_read=true, read_at=$3 WHERE id=$1 AND user_id=$2 AND is_read=false`,
		id, userID, readAt)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, message, notification_type, is_read, COALESCE(related_id, ''), created_at, read_at
		FROM user_notifications WHERE id=$1 AND user_id=$2`, id, userID)
	var n UserNotification
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.RelatedID, &n.CreatedAt, &n.ReadAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *PostgresRepository) MarkAllRead(ctx context.Context, userID string, readAt time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_notifications SET is_read=true, read_at=$2 WHERE user_id=$1 AND is_read=false`, userID, readAt)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresRepository) Stats(ctx context.Context, userID string) (*NotificationStats, error) {
	stats := &NotificationStats{ByType: map[string]TypeCount{}}
	rows, err := r.db.QueryContext(ctx, `
		SELECT notification_type, is_read, COUNT(*) FROM user_notifications WHERE user_id=$1 GROUP BY notification_type, is_read`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var notifType string
		var read bool
		var count int
		if err := rows.Scan(&notifType, &read, &count); err != nil {
			return nil, err
		}
		tc := stats.ByType[notifType]
		tc.Total += count
		if !read {
			tc.Unread += count
		}
		stats.ByType[notifType] = tc
		stats.Total += count
		if !read {
			stats.Unread += count
		}
	}
	return stats, rows.Err()
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
