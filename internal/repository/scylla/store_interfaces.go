package scylla

import (
	"context"
	"time"

	"guest-access/internal/models"
)

// UserUpdate is a partial update of a durable account. Nil fields are
// left untouched; writes are last-writer-wins.
type UserUpdate struct {
	PhoneNumber    *string
	Email          *string
	Name           *string
	Roles          []string
	PinHash        *string
	PinSalt        *string
	HasDefaultPin  *bool
	ReservationIDs []string
	LastLogin      *time.Time
}

// MagicLinkUpdate is a partial update of a magic-link record.
type MagicLinkUpdate struct {
	Status               *string
	VerificationAttempts *int
	TempUserID           *string
}

// TempUserUpdate is a partial update of a temporary identity.
type TempUserUpdate struct {
	DisplayName     *string
	Phone           *string
	ReservationIDs  []string
	AccessDisabled  *bool
	MigrationStatus *string
	UpgradedUserID  *string
}

// UserStore is the durable-account surface of the persistent store.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, userID string, update UserUpdate) (bool, error)
}

// ReservationStore exposes reservation reads.
type ReservationStore interface {
	GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
	FindReservationsByPropertyAndPhoneSuffix(ctx context.Context, propertyID, last4 string) ([]*models.Reservation, error)
}

// MagicLinkStore exposes the token-hash keyed link records and the
// property resolution for the current link scheme.
type MagicLinkStore interface {
	GetMagicLink(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error)
	UpdateMagicLink(ctx context.Context, tokenHash string, update MagicLinkUpdate) error
	GetPropertyByMagicLinkToken(ctx context.Context, tokenHash string) (*models.Property, error)
}

// TempUserStore manages ephemeral guest identities.
type TempUserStore interface {
	// CreateTemporaryUser is an idempotent upsert keyed by the
	// deterministically derived id.
	CreateTemporaryUser(ctx context.Context, tempUser *models.TemporaryUser) error
	GetTemporaryUser(ctx context.Context, tempUserID string) (*models.TemporaryUser, error)
	GetTemporaryUserByPhone(ctx context.Context, phone string) (*models.TemporaryUser, error)
	UpdateTemporaryUser(ctx context.Context, tempUserID string, update TempUserUpdate) error
}
