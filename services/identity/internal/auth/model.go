package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// User is the platform's account record (spec.md §3 User entity).
type User struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	PasswordHash string            `json:"-"`
	Role         Role              `json:"role"`
	GoogleID     string            `json:"google_id,omitempty"`
	FacebookID   string            `json:"facebook_id,omitempty"`
	Preferences  map[string]any    `json:"preferences"`
	Active       bool              `json:"active"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// RegisterRequest is the payload for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role,omitempty"`
}

// LoginRequest is the payload for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Repository persists User records. Implementations must enforce
// email uniqueness (spec.md §3's invariant) at the storage layer.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByGoogleID(ctx context.Context, id string) (*User, error)
	GetByFacebookID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user *User) error
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
	CountByRole(ctx context.Context) (map[Role]int, error)
}

// Overview is the admin aggregate returned by GET /admin/overview,
// enriched per SPEC_FULL.md §10 with a purchase-aggregate rollup
// fetched from the ledger service.
type Overview struct {
	TotalUsers   int            `json:"total_users"`
	TotalVendors int            `json:"total_vendors"`
	TotalAdmins  int            `json:"total_admins"`
	Purchases    PurchaseRollup `json:"purchases"`
}

// PurchaseRollup is the ledger-derived slice of the admin overview.
type PurchaseRollup struct {
	TotalPurchases int     `json:"total_purchases"`
	TotalSpent     float64 `json:"total_spent"`
}

// LedgerClient is the thin dependency identity takes on ledger for the
// admin overview's purchase rollup — kept as a narrow interface so the
// service can be tested without a live sibling.
type LedgerClient interface {
	PurchaseRollup(ctx context.Context) (PurchaseRollup, error)
}
