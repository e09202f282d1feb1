package models

import "time"

// ReservationContact is a companion traveler on a group booking. Their
// phone can differ from the primary guest's and is matched independently.
type ReservationContact struct {
	Name  string `db:"name"`
	Phone string `db:"phone"`
}

// Reservation is a stay at a property.
type Reservation struct {
	ReservationID      string               `db:"reservation_id"`
	PropertyID         string               `db:"property_id"`
	GuestName          string               `db:"guest_name"`
	GuestPhone         string               `db:"guest_phone"`
	GuestPhoneLast4    string               `db:"guest_phone_last4"`
	AdditionalContacts []ReservationContact `db:"additional_contacts"`
	CheckIn            time.Time            `db:"check_in"`
	CheckOut           time.Time            `db:"check_out"`
}
