package models

import "time"

// AccountType distinguishes provisional guest identities from durable accounts.
const (
	AccountTypeTemporary = "temporary"
	AccountTypePermanent = "permanent"
)

// User is a durable account keyed by a provider-asserted subject id.
type User struct {
	UserID         string     `db:"user_id"` // provider subject id
	PhoneNumber    string     `db:"phone_number"`
	Email          string     `db:"email"`
	Name           string     `db:"name"`
	Roles          []string   `db:"roles"`
	AccountType    string     `db:"account_type"`
	PinHash        string     `db:"pin_hash"`
	PinSalt        string     `db:"pin_salt"`
	HasDefaultPin  bool       `db:"has_default_pin"`
	ReservationIDs []string   `db:"reservation_ids"`
	CreatedAt      time.Time  `db:"created_at"`
	LastLogin      *time.Time `db:"last_login"`
	UpdatedAt      *time.Time `db:"updated_at"`
}

// HasReservation reports whether the reservation is already attached.
func (u *User) HasReservation(reservationID string) bool {
	for _, id := range u.ReservationIDs {
		if id == reservationID {
			return true
		}
	}
	return false
}
