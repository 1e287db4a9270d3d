package gamification

import (
	"context"
	"strings"
	"time"
)

// SpecialReward is a zero-points, targeted reward (spec.md §4.8
// "Special rewards").
type SpecialReward struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	RewardType     string     `json:"reward_type"`
	RewardValue    string     `json:"reward_value"`
	IsGlobal       bool       `json:"is_global"`
	TargetUsers    []string   `json:"target_users"`
	TargetSegments []string   `json:"target_segments"`
	MaxRedemptions *int       `json:"max_redemptions,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Active         bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SpecialRewardRedemption is a per-user distribution/claim row. A
// distribution with Used=false is a "you've been granted access"
// marker; Used=true means the user actually claimed it.
type SpecialRewardRedemption struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	SpecialRewardID string     `json:"special_reward_id"`
	Code            string     `json:"redemption_code"`
	Used            bool       `json:"is_used"`
	UsedAt          *time.Time `json:"used_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// SpecialRewardRepository persists special rewards and their
// per-user distribution/claim rows.
type SpecialRewardRepository interface {
	CreateSpecialReward(ctx context.Context, r *SpecialReward) error
	GetSpecialReward(ctx context.Context, id string) (*SpecialReward, error)
	ListActiveSpecialRewards(ctx context.Context) ([]SpecialReward, error)
	ListRedemptionsFor(ctx context.Context, userID, specialRewardID string) ([]SpecialRewardRedemption, error)
	CountUsedRedemptions(ctx context.Context, userID, specialRewardID string) (int, error)
	CreateDistribution(ctx context.Context, r *SpecialRewardRedemption) error
	MarkDistributionUsed(ctx context.Context, id string, usedAt time.Time) error
}

// SpecialRewardService implements the distribute/claim lifecycle.
type SpecialRewardService struct {
	repo         SpecialRewardRepository
	notifications *NotificationService
}

// NewSpecialRewardService builds a SpecialRewardService. notifications
// may be nil to skip notification creation on distribute.
func NewSpecialRewardService(repo SpecialRewardRepository, notifications *NotificationService) *SpecialRewardService {
	return &SpecialRewardService{repo: repo, notifications: notifications}
}

// Create adds a new special reward to the catalog.
func (s *SpecialRewardService) Create(ctx context.Context, r *SpecialReward) error {
	r.Active = true
	r.CreatedAt = time.Now()
	return s.repo.CreateSpecialReward(ctx, r)
}

// CanAccess implements spec.md §4.8's access rule: global, targeted by
// user id, targeted by an intersecting segment, or an existing
// distribution row already grants access.
func (s *SpecialRewardService) CanAccess(ctx context.Context, userID string, reward *SpecialReward, userSegments []string) (bool, error) {
	if reward.IsGlobal {
		return true, nil
	}
	for _, u := range reward.TargetUsers {
		if u == userID {
			return true, nil
		}
	}
	for _, seg := range userSegments {
		for _, target := range reward.TargetSegments {
			if strings.EqualFold(seg, target) {
				return true, nil
			}
		}
	}
	existing, err := s.repo.ListRedemptionsFor(ctx, userID, reward.ID)
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

func (s *SpecialRewardService) reachedMax(ctx context.Context, userID string, reward *SpecialReward) (bool, error) {
	if reward.MaxRedemptions == nil {
		return false, nil
	}
	used, err := s.repo.CountUsedRedemptions(ctx, userID, reward.ID)
	if err != nil {
		return false, err
	}
	return used >= *reward.MaxRedemptions, nil
}

// Available lists special rewards a user may still access and claim.
func (s *SpecialRewardService) Available(ctx context.Context, userID string, userSegments []string) ([]SpecialReward, error) {
	all, err := s.repo.ListActiveSpecialRewards(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var out []SpecialReward
	for _, r := range all {
		if r.ExpiresAt != nil && r.ExpiresAt.Before(now) {
			continue
		}
		canAccess, err := s.CanAccess(ctx, userID, &r, userSegments)
		if err != nil {
			return nil, err
		}
		if !canAccess {
			continue
		}
		maxed, err := s.reachedMax(ctx, userID, &r)
		if err != nil {
			return nil, err
		}
		if maxed {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Distribute creates a distribution row (Used=false) per target user
// up to max_redemptions, optionally notifying each (spec.md §4.8
// "distribution creates... per target user").
func (s *SpecialRewardService) Distribute(ctx context.Context, specialRewardID string, targetUsers []string, sendNotifications bool) (usersAffected, notificationsSent int, err error) {
	reward, err := s.repo.GetSpecialReward(ctx, specialRewardID)
	if err != nil {
		return 0, 0, err
	}

	for _, userID := range targetUsers {
		maxed, err := s.reachedMax(ctx, userID, reward)
		if err != nil {
			continue
		}
		if maxed {
			continue
		}
		code, err := generateCode()
		if err != nil {
			continue
		}
		distribution := &SpecialRewardRedemption{
			UserID:          userID,
			SpecialRewardID: specialRewardID,
			Code:            "SR" + code,
			Used:            false,
			CreatedAt:       time.Now(),
		}
		if err := s.repo.CreateDistribution(ctx, distribution); err != nil {
			continue
		}
		usersAffected++

		if sendNotifications && s.notifications != nil {
			if _, err := s.notifications.Create(ctx, userID, "New special reward!", "You've received a special reward: "+reward.Name, "special_reward", specialRewardID); err == nil {
				notificationsSent++
			}
		}
	}
	return usersAffected, notificationsSent, nil
}

// Claim is the user-initiated redeem_special action: marks the
// user's unused distribution row used immediately, creating a new row
// first when the user has none (spec.md §4.8 redeem_special).
func (s *SpecialRewardService) Claim(ctx context.Context, userID, specialRewardID string) (*SpecialRewardRedemption, error) {
	reward, err := s.repo.GetSpecialReward(ctx, specialRewardID)
	if err != nil {
		return nil, err
	}
	if !reward.Active || (reward.ExpiresAt != nil && reward.ExpiresAt.Before(time.Now())) {
		return nil, ErrSpecialRewardInactive
	}
	maxed, err := s.reachedMax(ctx, userID, reward)
	if err != nil {
		return nil, err
	}
	if maxed {
		return nil, ErrMaxRedemptions
	}

	existing, err := s.repo.ListRedemptionsFor(ctx, userID, specialRewardID)
	if err != nil {
		return nil, err
	}
	var redemption *SpecialRewardRedemption
	for i := range existing {
		if !existing[i].Used {
			redemption = &existing[i]
			break
		}
	}
	if redemption == nil {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		redemption = &SpecialRewardRedemption{
			UserID:          userID,
			SpecialRewardID: specialRewardID,
			Code:            "SR" + code,
			CreatedAt:       time.Now(),
		}
		if err := s.repo.CreateDistribution(ctx, redemption); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	if err := s.repo.MarkDistributionUsed(ctx, redemption.ID, now); err != nil {
		return nil, err
	}
	redemption.Used = true
	redemption.UsedAt = &now
	return redemption, nil
}
