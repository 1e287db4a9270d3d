// Package gamification implements C8: per-user level/XP/streak/badge
// tracking, point-cost and special-reward redemption, and in-app
// notifications. Grounded on
// original_source/modules/backend/gamification-service/gamification_engine.py
// and models.py.
package gamification

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrRewardInactive   = errors.New("reward is not active")
	ErrRewardDepleted   = errors.New("reward has no remaining redemptions")
	ErrInsufficientXP   = errors.New("insufficient experience for this reward")
	ErrRedemptionUsed   = errors.New("redemption already used")
	ErrRedemptionExpired = errors.New("redemption has expired")
	ErrMaxRedemptions   = errors.New("user has reached the maximum redemptions for this reward")
	ErrSpecialRewardInactive = errors.New("special reward is not active or has expired")
	ErrAccessDenied     = errors.New("user is not eligible for this special reward")
)

// levelTable maps level -> minimum XP threshold (spec.md §4.8).
var levelTable = map[int]int{
	1: 0, 2: 100, 3: 250, 4: 450, 5: 700,
	6: 1000, 7: 1350, 8: 1750, 9: 2200, 10: 2700,
}

const maxTableLevel = 10

// LevelFromXP returns the highest level whose threshold is <= xp
// (spec.md §4.8 `level(xp)`).
func LevelFromXP(xp int) int {
	level := 1
	for l, threshold := range levelTable {
		if xp >= threshold && l > level {
			level = l
		}
	}
	return level
}

// NextThreshold returns the XP required for the level after current,
// extrapolating past the table in +100 steps (spec.md §4.8).
func NextThreshold(level int) int {
	if next, ok := levelTable[level+1]; ok {
		return next
	}
	return levelTable[level] + 100
}

// ProgressPercentage computes min(100, xp/next*100).
func ProgressPercentage(xp, next int) float64 {
	if next <= 0 {
		return 100
	}
	pct := float64(xp) / float64(next) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Profile is a user's gamification state (spec.md §4.8 UserGamification).
type Profile struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Level         int        `json:"level"`
	Experience    int        `json:"experience"`
	TotalTickets  int        `json:"total_tickets"`
	ValidTickets  int        `json:"valid_tickets"`
	TotalSpent    float64    `json:"total_spent"`
	StreakDays    int        `json:"streak_days"`
	LastScanDate  *time.Time `json:"last_scan_date,omitempty"`
	BadgesEarned  int        `json:"badges_earned"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Badge is a user's earned badge.
type Badge struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"badge_type"`
	Name        string    `json:"badge_name"`
	Description string    `json:"badge_description"`
	EarnedAt    time.Time `json:"earned_at"`
	Active      bool      `json:"is_active"`
}

// ExperienceEntry is one XP gain log row.
type ExperienceEntry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TicketID   string    `json:"ticket_id,omitempty"`
	Experience int       `json:"experience_gained"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// TicketEvent mirrors the SDK's gamification ingest contract
// (spec.md §4.8 "Ticket event").
type TicketEvent struct {
	UserID         string
	TicketID       string
	IsValid        bool
	TotalAmount    float64
	StoreName      string
	ProcessingDate time.Time
}

// badgeDef is one entry of the fixed badge catalog.
type badgeDef struct {
	Type        string
	Name        string
	Description string
	Condition   func(stats badgeStats) bool
}

type badgeStats struct {
	TotalTickets int
	ValidTickets int
	TotalSpent   float64
	StreakDays   int
	Level        int
}

// badgeCatalog is spec.md §4.8's fixed badge list.
var badgeCatalog = []badgeDef{
	{"first_scan", "First Scan", "Scanned your first ticket", func(s badgeStats) bool { return s.TotalTickets >= 1 }},
	{"first_valid", "First Valid Purchase", "Scanned your first valid ticket", func(s badgeStats) bool { return s.ValidTickets >= 1 }},
	{"ticket_collector", "Ticket Collector", "Scanned 10 tickets", func(s badgeStats) bool { return s.TotalTickets >= 10 }},
	{"valid_collector", "Valid Collector", "Scanned 10 valid tickets", func(s badgeStats) bool { return s.ValidTickets >= 10 }},
	{"big_spender", "Big Spender", "Spent over 100 on valid tickets", func(s badgeStats) bool { return s.TotalSpent >= 100 }},
	{"streak_3", "3-Day Streak", "Scanned tickets 3 days in a row", func(s badgeStats) bool { return s.StreakDays >= 3 }},
	{"streak_7", "7-Day Streak", "Scanned tickets 7 days in a row", func(s badgeStats) bool { return s.StreakDays >= 7 }},
	{"level_5", "Level 5", "Reached level 5", func(s badgeStats) bool { return s.Level >= 5 }},
	{"level_10", "Level 10", "Reached level 10", func(s badgeStats) bool { return s.Level >= 10 }},
}

// Repository persists profiles, badges, and the experience log.
type Repository interface {
	GetOrCreateProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, p *Profile) error
	ResetProfile(ctx context.Context, userID string) error
	ActiveBadgeTypes(ctx context.Context, userID string) (map[string]bool, error)
	AwardBadge(ctx context.Context, b *Badge) error
	ListBadges(ctx context.Context, userID string) ([]Badge, error)
	AppendExperience(ctx context.Context, e *ExperienceEntry) error
	ListExperience(ctx context.Context, userID string, limit, offset int) ([]ExperienceEntry, error)
}

// Metrics records counters for the engine's side effects. Implemented
// over github.com/prometheus/client_golang in internal/metrics.
type Metrics interface {
	ObserveXPAwarded(amount int)
	ObserveBadgeAwarded(badgeType string)
}

// Service implements C8's engine: ticket-event processing, level/XP,
// streaks, and badge evaluation.
type Service struct {
	repo    Repository
	metrics Metrics
}

// NewService builds the gamification engine. A nil metrics recorder
// falls back to a no-op implementation.
func NewService(repo Repository, metrics Metrics) *Service {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{repo: repo, metrics: metrics}
}

// noopMetrics satisfies Metrics when none is configured (tests).
type noopMetrics struct{}

func (noopMetrics) ObserveXPAwarded(int)        {}
func (noopMetrics) ObserveBadgeAwarded(string) {}

// GetProfile returns or creates a user's profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.repo.GetOrCreateProfile(ctx, userID)
}

// Reset clears a user's gamification state — used by admin tooling
// and test fixtures.
func (s *Service) Reset(ctx context.Context, userID string) error {
	return s.repo.ResetProfile(ctx, userID)
}

// Badges returns a user's active badges.
func (s *Service) Badges(ctx context.Context, userID string) ([]Badge, error) {
	return s.repo.ListBadges(ctx, userID)
}

// ExperienceLog returns a user's XP gain history, newest first.
func (s *Service) ExperienceLog(ctx context.Context, userID string, limit, offset int) ([]ExperienceEntry, error) {
	return s.repo.ListExperience(ctx, userID, limit, offset)
}

// Stats is the computed view served by GET /users/{id}/stats
// (spec.md §4.8 get_user_stats).
type Stats struct {
	Level                 int     `json:"level"`
	Experience            int     `json:"experience"`
	NextLevelExperience   int     `json:"next_level_experience"`
	ExperienceToNextLevel int     `json:"experience_to_next_level"`
	ProgressPercentage    float64 `json:"progress_percentage"`
	TotalTickets          int     `json:"total_tickets"`
	ValidTickets          int     `json:"valid_tickets"`
	TotalSpent            float64 `json:"total_spent"`
	StreakDays            int     `json:"streak_days"`
	BadgesEarned          int     `json:"badges_earned"`
	RecentBadges          []Badge `json:"recent_badges"`
}

// Stats computes the derived level/progress view over a profile.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	p, err := s.repo.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	next := NextThreshold(p.Level)
	badges, err := s.repo.ListBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(badges) > 5 {
		badges = badges[:5]
	}
	return &Stats{
		Level:                 p.Level,
		Experience:            p.Experience,
		NextLevelExperience:   next,
		ExperienceToNextLevel: next - p.Experience,
		ProgressPercentage:    ProgressPercentage(p.Experience, next),
		TotalTickets:          p.TotalTickets,
		ValidTickets:          p.ValidTickets,
		TotalSpent:            p.TotalSpent,
		StreakDays:            p.StreakDays,
		BadgesEarned:          p.BadgesEarned,
		RecentBadges:          badges,
	}, nil
}

// AddExperience applies a manual XP grant (spec.md §6
// POST /users/{id}/add-experience, used by admin tooling and tests).
func (s *Service) AddExperience(ctx context.Context, userID string, amount int, reason string) (*Profile, error) {
	p, err := s.repo.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.grantExperience(ctx, p, amount, reason, "")
	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProcessTicketEvent applies spec.md §4.8's ticket-event pipeline:
// counters, streak update, XP award, badge evaluation.
func (s *Service) ProcessTicketEvent(ctx context.Context, evt TicketEvent) (*Profile, error) {
	p, err := s.repo.GetOrCreateProfile(ctx, evt.UserID)
	if err != nil {
		return nil, err
	}

	p.TotalTickets++
	if evt.IsValid {
		p.ValidTickets++
		p.TotalSpent += evt.TotalAmount
	}

	today := evt.ProcessingDate.UTC().Truncate(24 * time.Hour)
	switch {
	case p.LastScanDate == nil:
		p.StreakDays = 1
	default:
		last := p.LastScanDate.UTC().Truncate(24 * time.Hour)
		switch {
		case today.Equal(last):
			// already scanned today, streak unchanged
		case today.Equal(last.AddDate(0, 0, 1)):
			p.StreakDays++
		default:
			p.StreakDays = 1
		}
	}
	scanDate := evt.ProcessingDate.UTC()
	p.LastScanDate = &scanDate

	experienceGained := 0
	reason := "invalid ticket scanned (no points)"
	if evt.IsValid {
		experienceGained = 50
		reason = "valid ticket scanned: " + nonEmpty(evt.StoreName, "unknown store")
		if evt.TotalAmount > 50 {
			bonus := int(evt.TotalAmount / 10)
			experienceGained += bonus
		}
	}

	if experienceGained > 0 {
		s.grantExperience(ctx, p, experienceGained, reason, evt.TicketID)
	}

	newBadges, err := s.evaluateBadges(ctx, p)
	if err != nil {
		return nil, err
	}
	p.BadgesEarned += len(newBadges)

	if err := s.repo.UpdateProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// grantExperience mutates p in place, appends the log entry, and
// recomputes level. Caller persists p.
func (s *Service) grantExperience(ctx context.Context, p *Profile, amount int, reason, ticketID string) {
	p.Experience += amount
	p.Level = LevelFromXP(p.Experience)
	entry := &ExperienceEntry{
		UserID:     p.UserID,
		TicketID:   ticketID,
		Experience: amount,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.AppendExperience(ctx, entry); err == nil {
		s.metrics.ObserveXPAwarded(amount)
	}
}

// evaluateBadges awards any newly-qualifying badges (spec.md §4.8
// "at most one active per user" — a badge already awarded is skipped).
func (s *Service) evaluateBadges(ctx context.Context, p *Profile) ([]Badge, error) {
	existing, err := s.repo.ActiveBadgeTypes(ctx, p.UserID)
	if err != nil {
		return nil, err
	}

	stats := badgeStats{
		TotalTickets: p.TotalTickets,
		ValidTickets: p.ValidTickets,
		TotalSpent:   p.TotalSpent,
		StreakDays:   p.StreakDays,
		Level:        p.Level,
	}

	var newBadges []Badge
	for _, def := range badgeCatalog {
		if existing[def.Type] || !def.Condition(stats) {
			continue
		}
		b := &Badge{
			UserID:      p.UserID,
			Type:        def.Type,
			Name:        def.Name,
			Description: def.Description,
			EarnedAt:    time.Now(),
			Active:      true,
		}
		if err := s.repo.AwardBadge(ctx, b); err != nil {
			return nil, err
		}
		s.metrics.ObserveBadgeAwarded(def.Type)
		newBadges = append(newBadges, *b)
	}
	return newBadges, nil
}

func nonEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
