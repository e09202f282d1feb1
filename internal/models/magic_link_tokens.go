package models

import "time"

// Magic-link token status values.
const (
	TokenStatusActive          = "active"
	TokenStatusPartialVerified = "partial_verified"
	TokenStatusVerified        = "verified"
	TokenStatusExpired         = "expired"
	// TokenStatusLocked is distinct from expired: a locked token still
	// resolves so the guest can be told to contact the host.
	TokenStatusLocked = "locked"
)

// MaxVerificationAttempts is the number of wrong 4-digit guesses a token
// absorbs before it is permanently locked and the guest has to contact
// the host out of band.
const MaxVerificationAttempts = 5

// MagicLinkToken is the persisted form of a host-issued link. Only the
// token hash is ever stored or matched; the raw token lives in the URL.
type MagicLinkToken struct {
	TokenHash            string     `db:"token_hash"`
	PropertyID           string     `db:"property_id"`    // current scheme
	ReservationID        string     `db:"reservation_id"` // legacy scheme
	Status               string     `db:"status"`
	VerificationAttempts int        `db:"verification_attempts"`
	TempUserID           string     `db:"temp_user_id"`
	CreatedAt            time.Time  `db:"created_at"`
	ExpiresAt            *time.Time `db:"expires_at"`
}

// IsLocked reports whether the token exhausted its verification attempts.
func (m *MagicLinkToken) IsLocked() bool {
	return m.VerificationAttempts >= MaxVerificationAttempts
}

// IsExpired reports whether the token has passed its expiry, if it has one.
func (m *MagicLinkToken) IsExpired(now time.Time) bool {
	if m.Status == TokenStatusExpired {
		return true
	}
	return m.ExpiresAt != nil && now.After(*m.ExpiresAt)
}
