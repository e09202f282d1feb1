package scylla

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gocql/gocql"

	"guest-access/internal/models"
	"guest-access/internal/util"
)

// ReservationRepository reads reservations. additional_contacts is stored
// as a JSON text column; reservations_by_property is partitioned by
// property id so a whole property scans in one query.
type ReservationRepository struct {
	client *ScyllaClient
}

func NewReservationRepository(client *ScyllaClient) *ReservationRepository {
	return &ReservationRepository{client: client}
}

const reservationColumns = `reservation_id, property_id, guest_name, guest_phone,
	guest_phone_last4, additional_contacts, check_in, check_out`

func (r *ReservationRepository) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	query := fmt.Sprintf(`SELECT %s FROM reservations WHERE reservation_id = ?`, reservationColumns)

	var contactsJSON string
	res := &models.Reservation{}
	err := r.client.Session.Query(query, reservationID).WithContext(ctx).Scan(
		&res.ReservationID, &res.PropertyID, &res.GuestName, &res.GuestPhone,
		&res.GuestPhoneLast4, &contactsJSON, &res.CheckIn, &res.CheckOut,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	if err := decodeContacts(contactsJSON, res); err != nil {
		return nil, err
	}
	return res, nil
}

// FindReservationsByPropertyAndPhoneSuffix returns every reservation at
// the property whose primary guest phone, stored last-4, or any companion
// contact phone ends in the claimed 4 digits. Exact suffix match only.
func (r *ReservationRepository) FindReservationsByPropertyAndPhoneSuffix(ctx context.Context, propertyID, last4 string) ([]*models.Reservation, error) {
	query := fmt.Sprintf(`SELECT %s FROM reservations_by_property WHERE property_id = ?`, reservationColumns)
	iter := r.client.Session.Query(query, propertyID).WithContext(ctx).Iter()

	var matched []*models.Reservation
	for {
		res := &models.Reservation{}
		var contactsJSON string
		if !iter.Scan(
			&res.ReservationID, &res.PropertyID, &res.GuestName, &res.GuestPhone,
			&res.GuestPhoneLast4, &contactsJSON, &res.CheckIn, &res.CheckOut,
		) {
			break
		}
		if err := decodeContacts(contactsJSON, res); err != nil {
			util.Warn("Skipping reservation with bad contact data",
				util.String("reservation_id", res.ReservationID),
				util.ErrorField(err))
			continue
		}
		if reservationMatchesSuffix(res, last4) {
			matched = append(matched, res)
		}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to scan property reservations: %w", err)
	}

	return matched, nil
}

func reservationMatchesSuffix(res *models.Reservation, last4 string) bool {
	if res.GuestPhoneLast4 == last4 {
		return true
	}
	if phone := util.NormalizePhone(res.GuestPhone); phone != "" && strings.HasSuffix(phone, last4) {
		return true
	}
	for _, contact := range res.AdditionalContacts {
		if phone := util.NormalizePhone(contact.Phone); phone != "" && strings.HasSuffix(phone, last4) {
			return true
		}
	}
	return false
}

func decodeContacts(contactsJSON string, res *models.Reservation) error {
	if contactsJSON == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(contactsJSON), &res.AdditionalContacts); err != nil {
		return fmt.Errorf("failed to decode additional contacts: %w", err)
	}
	return nil
}
