package gamification

import (
	"context"
	"strings"
	"testing"
	"time"
)

// memRewardRepo is an in-memory RewardRepository fake keyed by lower-cased
// code. The real store matches codes exactly; case-insensitivity comes
// from the service upper-casing every code before lookup (spec.md §4.8
// "Codes are compared case-insensitively").
type memRewardRepo struct {
	rewards     map[string]*Reward
	redemptions map[string]*Redemption
}

func newMemRewardRepo() *memRewardRepo {
	return &memRewardRepo{rewards: map[string]*Reward{}, redemptions: map[string]*Redemption{}}
}

func (r *memRewardRepo) GetReward(ctx context.Context, id string) (*Reward, error) {
	rw, ok := r.rewards[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rw
	return &cp, nil
}

func (r *memRewardRepo) ListRewards(ctx context.Context) ([]Reward, error) {
	var out []Reward
	for _, rw := range r.rewards {
		out = append(out, *rw)
	}
	return out, nil
}

func (r *memRewardRepo) Redeem(ctx context.Context, userID string, reward *Reward, code string, expiresAt time.Time) (*Redemption, error) {
	rw := r.rewards[reward.ID]
	rw.CurrentRedemptions++
	red := &Redemption{
		ID: code, UserID: userID, RewardID: reward.ID,
		PointsSpent: reward.PointsCost, Code: code,
		ExpiresAt: expiresAt, CreatedAt: time.Now(),
	}
	r.redemptions[strings.ToLower(code)] = red
	cp := *red
	return &cp, nil
}

func (r *memRewardRepo) GetRedemptionByCode(ctx context.Context, code string) (*Redemption, error) {
	red, ok := r.redemptions[strings.ToLower(code)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *red
	return &cp, nil
}

func (r *memRewardRepo) UseRedemption(ctx context.Context, id string, usedAt time.Time) error {
	for _, red := range r.redemptions {
		if red.ID == id {
			red.Used = true
			red.UsedAt = &usedAt
			return nil
		}
	}
	return ErrNotFound
}

func (r *memRewardRepo) ExpireRedemption(ctx context.Context, id string, expiresAt time.Time) error {
	for _, red := range r.redemptions {
		if red.ID == id {
			red.ExpiresAt = expiresAt
			return nil
		}
	}
	return ErrNotFound
}

func (r *memRewardRepo) ListRedemptions(ctx context.Context, userID, status string) ([]Redemption, error) {
	var out []Redemption
	for _, red := range r.redemptions {
		if red.UserID == userID {
			out = append(out, *red)
		}
	}
	return out, nil
}

func TestRedeemLifecycle(t *testing.T) {
	ctx := context.Background()
	rewardRepo := newMemRewardRepo()
	rewardRepo.rewards["coffee"] = &Reward{ID: "coffee", Name: "Coffee", PointsCost: 50, Active: true}
	profileRepo := newMemRepo()
	profileRepo.profiles["u1"] = &Profile{UserID: "u1", Experience: 150, Level: LevelFromXP(150)}

	svc := NewRewardService(rewardRepo, profileRepo)

	redemption, err := svc.Redeem(ctx, "u1", "coffee")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if len(redemption.Code) != 8 {
		t.Errorf("expected an 8-character code, got %q", redemption.Code)
	}
	if redemption.Code != strings.ToUpper(redemption.Code) {
		t.Errorf("expected an uppercase code, got %q", redemption.Code)
	}

	profile, _ := profileRepo.GetOrCreateProfile(ctx, "u1")
	if profile.Experience != 100 {
		t.Errorf("expected 100 XP remaining after a 50-point redemption, got %d", profile.Experience)
	}
	if rewardRepo.rewards["coffee"].CurrentRedemptions != 1 {
		t.Errorf("expected current_redemptions = 1, got %d", rewardRepo.rewards["coffee"].CurrentRedemptions)
	}

	// use is case-insensitive
	if err := svc.Use(ctx, strings.ToLower(redemption.Code)); err != nil {
		t.Fatalf("Use (lowercase): %v", err)
	}

	_, used, expired, err := svc.Validate(ctx, redemption.Code)
	if err != nil {
		t.Fatal(err)
	}
	if !used || expired {
		t.Errorf("expected used=true expired=false after use, got used=%v expired=%v", used, expired)
	}

	if err := svc.Use(ctx, redemption.Code); err != ErrRedemptionUsed {
		t.Errorf("second use: expected ErrRedemptionUsed, got %v", err)
	}

	if err := svc.Expire(ctx, redemption.Code); err != ErrRedemptionUsed {
		t.Errorf("expire on a used code: expected ErrRedemptionUsed, got %v", err)
	}
}

func TestRedeemInsufficientXP(t *testing.T) {
	ctx := context.Background()
	rewardRepo := newMemRewardRepo()
	rewardRepo.rewards["coffee"] = &Reward{ID: "coffee", Name: "Coffee", PointsCost: 50, Active: true}
	profileRepo := newMemRepo()
	profileRepo.profiles["u1"] = &Profile{UserID: "u1", Experience: 10}

	svc := NewRewardService(rewardRepo, profileRepo)
	if _, err := svc.Redeem(ctx, "u1", "coffee"); err != ErrInsufficientXP {
		t.Errorf("expected ErrInsufficientXP, got %v", err)
	}
}

func TestRedeemRespectsMaxRedemptions(t *testing.T) {
	ctx := context.Background()
	max := 1
	rewardRepo := newMemRewardRepo()
	rewardRepo.rewards["limited"] = &Reward{ID: "limited", PointsCost: 10, Active: true, MaxRedemptions: &max, CurrentRedemptions: 1}
	profileRepo := newMemRepo()
	profileRepo.profiles["u1"] = &Profile{UserID: "u1", Experience: 1000}

	svc := NewRewardService(rewardRepo, profileRepo)
	if _, err := svc.Redeem(ctx, "u1", "limited"); err != ErrRewardDepleted {
		t.Errorf("expected ErrRewardDepleted, got %v", err)
	}
}
