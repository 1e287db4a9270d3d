package gamification

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// Reward is a point-cost catalog entry (spec.md §4.8 Rewards).
type Reward struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	PointsCost          int       `json:"points_cost"`
	RewardType          string    `json:"reward_type"`
	RewardValue         string    `json:"reward_value"`
	Active              bool      `json:"is_active"`
	MaxRedemptions      *int      `json:"max_redemptions,omitempty"`
	CurrentRedemptions  int       `json:"current_redemptions"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Redemption is a user's point-cost reward claim.
type Redemption struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	RewardID      string     `json:"reward_id"`
	PointsSpent   int        `json:"points_spent"`
	Code          string     `json:"redemption_code"`
	Used          bool       `json:"is_used"`
	UsedAt        *time.Time `json:"used_at,omitempty"`
	ExpiresAt     time.Time  `json:"expires_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// RewardRepository persists the point-cost reward catalog and its
// redemptions. Reward.CurrentRedemptions / user XP deduction happen
// within a single transactional boundary (spec.md §4.8 "Rewards").
type RewardRepository interface {
	GetReward(ctx context.Context, id string) (*Reward, error)
	ListRewards(ctx context.Context) ([]Reward, error)
	// Redeem atomically verifies reward.active, remaining capacity, and
	// user XP, then decrements XP, increments current_redemptions, and
	// inserts the redemption row. Returns the created Redemption.
	Redeem(ctx context.Context, userID string, reward *Reward, code string, expiresAt time.Time) (*Redemption, error)
	GetRedemptionByCode(ctx context.Context, code string) (*Redemption, error)
	UseRedemption(ctx context.Context, id string, usedAt time.Time) error
	ExpireRedemption(ctx context.Context, id string, expiresAt time.Time) error
	ListRedemptions(ctx context.Context, userID, status string) ([]Redemption, error)
}

// RewardService implements the point-cost redemption lifecycle.
type RewardService struct {
	repo    RewardRepository
	profile Repository
}

// NewRewardService builds a RewardService.
func NewRewardService(repo RewardRepository, profile Repository) *RewardService {
	return &RewardService{repo: repo, profile: profile}
}

// List returns the reward catalog.
func (s *RewardService) List(ctx context.Context) ([]Reward, error) {
	return s.repo.ListRewards(ctx)
}

// Redeem implements spec.md §4.8's redeem(user, reward): verifies
// reward.active, remaining global capacity, and user XP >=
// points_cost, then mints an 8-hex-uppercase code with a 30-day expiry.
func (s *RewardService) Redeem(ctx context.Context, userID, rewardID string) (*Redemption, error) {
	reward, err := s.repo.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}
	if !reward.Active {
		return nil, ErrRewardInactive
	}
	if reward.MaxRedemptions != nil && reward.CurrentRedemptions >= *reward.MaxRedemptions {
		return nil, ErrRewardDepleted
	}

	profile, err := s.profile.GetOrCreateProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.Experience < reward.PointsCost {
		return nil, ErrInsufficientXP
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	redemption, err := s.repo.Redeem(ctx, userID, reward, code, time.Now().AddDate(0, 0, 30))
	if err != nil {
		return nil, err
	}

	profile.Experience -= reward.PointsCost
	profile.Level = LevelFromXP(profile.Experience)
	if err := s.profile.UpdateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return redemption, nil
}

// Validate returns a redemption's state without mutating it
// (spec.md §4.8 validate(code)).
func (s *RewardService) Validate(ctx context.Context, code string) (*Redemption, bool, bool, error) {
	r, err := s.repo.GetRedemptionByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, false, false, err
	}
	expired := !r.Used && time.Now().After(r.ExpiresAt)
	return r, r.Used, expired, nil
}

// Use marks a redemption used; fails if already used or expired
// (spec.md §4.8 use(code)).
func (s *RewardService) Use(ctx context.Context, code string) error {
	r, err := s.repo.GetRedemptionByCode(ctx, normalizeCode(code))
	if err != nil {
		return err
	}
	if r.Used {
		return ErrRedemptionUsed
	}
	if time.Now().After(r.ExpiresAt) {
		return ErrRedemptionExpired
	}
	return s.repo.UseRedemption(ctx, r.ID, time.Now())
}

// Expire is the vendor action that force-expires a redemption; fails
// if already used, idempotent if already expired (spec.md §4.8 expire(code)).
func (s *RewardService) Expire(ctx context.Context, code string) error {
	r, err := s.repo.GetRedemptionByCode(ctx, normalizeCode(code))
	if err != nil {
		return err
	}
	if r.Used {
		return ErrRedemptionUsed
	}
	if time.Now().After(r.ExpiresAt) {
		return nil
	}
	return s.repo.ExpireRedemption(ctx, r.ID, time.Now())
}

// ListForUser returns a user's redemptions, optionally filtered by
// status (available|used|expired).
func (s *RewardService) ListForUser(ctx context.Context, userID, status string) ([]Redemption, error) {
	return s.repo.ListRedemptions(ctx, userID, status)
}

func (s *RewardService) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, err := s.repo.GetRedemptionByCode(ctx, code); err == ErrNotFound {
			return code, nil
		}
	}
	return "", ErrNotFound
}

// generateCode mints an 8-hex-character uppercase code (spec.md §6).
func generateCode() (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
