package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Service implements C1 Identity Store and the token-verify half of
// C13 Admin/Role Guard. Grounded on core/internal/auth/service.go.
type Service struct {
	repo    Repository
	jwt     *JWTManager
	hasher  *PasswordHasher
	ledger  LedgerClient
}

// NewService builds the identity service.
func NewService(repo Repository, jwt *JWTManager, ledger LedgerClient) *Service {
	return &Service{repo: repo, jwt: jwt, hasher: NewPasswordHasher(nil), ledger: ledger}
}

// Register creates a new account with role defaulting to "user"
// (spec.md §3's invariant) and mints a token pair.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, *TokenPair, error) {
	if existing, _ := s.repo.GetByEmail(ctx, req.Email); existing != nil {
		return nil, nil, ErrUserExists
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = RoleUser
	}

	now := time.Now()
	user := &User{
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Preferences:  map[string]any{},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	tokens, err := s.jwt.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Login verifies credentials and mints a fresh token pair.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*User, *TokenPair, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if !user.Active {
		return nil, nil, ErrAccountDisabled
	}
	if err := s.hasher.Verify(req.Password, user.PasswordHash); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	tokens, err := s.jwt.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// LoginWithOAuth authenticates or registers a user via an external
// identity provider (SPEC_FULL.md §10 supplemented feature).
func (s *Service) LoginWithOAuth(ctx context.Context, oauthUser OAuthUser) (*User, *TokenPair, error) {
	var user *User
	var err error

	switch oauthUser.Provider {
	case ProviderGoogle:
		user, err = s.repo.GetByGoogleID(ctx, oauthUser.ID)
	case ProviderFacebook:
		user, err = s.repo.GetByFacebookID(ctx, oauthUser.ID)
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, nil, err
	}

	if user == nil && oauthUser.Email != "" {
		user, _ = s.repo.GetByEmail(ctx, oauthUser.Email)
	}

	if user == nil {
		now := time.Now()
		user = &User{
			Email:       oauthUser.Email,
			Role:        RoleUser,
			Preferences: map[string]any{},
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		switch oauthUser.Provider {
		case ProviderGoogle:
			user.GoogleID = oauthUser.ID
		case ProviderFacebook:
			user.FacebookID = oauthUser.ID
		}
		if err := s.repo.Create(ctx, user); err != nil {
			return nil, nil, err
		}
	} else {
		updated := false
		switch oauthUser.Provider {
		case ProviderGoogle:
			if user.GoogleID == "" {
				user.GoogleID = oauthUser.ID
				updated = true
			}
		case ProviderFacebook:
			if user.FacebookID == "" {
				user.FacebookID = oauthUser.ID
				updated = true
			}
		}
		if updated {
			user.UpdatedAt = time.Now()
			if err := s.repo.Update(ctx, user); err != nil {
				return nil, nil, err
			}
		}
	}

	if !user.Active {
		return nil, nil, ErrAccountDisabled
	}
	tokens, err := s.jwt.GenerateTokenPair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, err
	}
	return user, tokens, nil
}

// Verify validates a bearer token and returns the carried user id.
func (s *Service) Verify(ctx context.Context, token string) (string, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Refresh mints a new token pair from a still-valid refresh token,
// re-reading the user's current role/email so a promotion takes
// effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	return s.jwt.RefreshTokens(refreshToken, func(userID string) (Role, string, error) {
		user, err := s.repo.GetByID(ctx, userID)
		if err != nil {
			return "", "", err
		}
		return user.Role, user.Email, nil
	})
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// ListUsers returns a paginated user listing (admin only; role-guarded
// at the transport layer).
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// PromoteVendor elevates a user to the vendor role.
func (s *Service) PromoteVendor(ctx context.Context, id string) (*User, error) {
	return s.promote(ctx, id, RoleVendor)
}

// PromoteAdmin elevates a user to the admin role.
func (s *Service) PromoteAdmin(ctx context.Context, id string) (*User, error) {
	return s.promote(ctx, id, RoleAdmin)
}

func (s *Service) promote(ctx context.Context, id string, role Role) (*User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.Role = role
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// SetPreferences overwrites a user's preference map (called by the
// CRM service's C9 preference-inference adapter once it has inferred
// a non-empty map for a user with none stored — spec.md §4.9).
func (s *Service) SetPreferences(ctx context.Context, userID string, prefs map[string]any) (*User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Preferences = prefs
	user.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Overview computes the admin dashboard aggregate (spec.md §4.1 +
// SPEC_FULL.md §10's purchase rollup).
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	counts, err := s.repo.CountByRole(ctx)
	if err != nil {
		return nil, err
	}
	ov := &Overview{
		TotalUsers:   counts[RoleUser],
		TotalVendors: counts[RoleVendor],
		TotalAdmins:  counts[RoleAdmin],
	}
	if s.ledger != nil {
		rollup, err := s.ledger.PurchaseRollup(ctx)
		if err == nil {
			ov.Purchases = rollup
		}
	}
	return ov, nil
}
