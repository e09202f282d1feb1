package verification

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/util"
)

// Candidate is one reservation a claimed fragment matched, with the phone
// that matched it. For a group booking the matched phone can belong to a
// companion, not the primary guest.
type Candidate struct {
	Reservation  *models.Reservation
	MatchedPhone string
	MatchedName  string
}

// Matcher finds the reservations a 4-digit fragment points at. The caller
// acts on cardinality: 0 rejects, 1 proceeds, more than one forces the
// guest to choose — auto-selecting would risk showing one guest another
// guest's stay.
type Matcher struct {
	reservations scylla.ReservationStore
	logger       *zap.Logger
}

func NewMatcher(reservations scylla.ReservationStore, logger *zap.Logger) *Matcher {
	return &Matcher{reservations: reservations, logger: logger}
}

// Match compares the fragment within the resolved scope. Exact last-4
// match only, no fuzzing.
func (m *Matcher) Match(ctx context.Context, vctx *Context, last4 string) ([]Candidate, error) {
	if !util.IsLast4(last4) {
		return nil, fmt.Errorf("%w: fragment must be 4 digits", ErrSecretMismatch)
	}

	switch vctx.Mode {
	case ModeReservation:
		return m.matchSingle(ctx, vctx.ReservationID, last4)
	case ModeProperty:
		return m.matchProperty(ctx, vctx.PropertyID, last4)
	default:
		return nil, fmt.Errorf("unknown verification mode %q", vctx.Mode)
	}
}

func (m *Matcher) matchSingle(ctx context.Context, reservationID, last4 string) ([]Candidate, error) {
	reservation, err := m.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		if err == scylla.ErrNotFound {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	if reservation.GuestPhoneLast4 != last4 {
		return nil, nil
	}

	return []Candidate{{
		Reservation:  reservation,
		MatchedPhone: reservation.GuestPhone,
		MatchedName:  reservation.GuestName,
	}}, nil
}

func (m *Matcher) matchProperty(ctx context.Context, propertyID, last4 string) ([]Candidate, error) {
	matched, err := m.reservations.FindReservationsByPropertyAndPhoneSuffix(ctx, propertyID, last4)
	if err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(matched))
	for _, reservation := range matched {
		candidates = append(candidates, m.candidateFor(reservation, last4))
	}

	if len(candidates) > 1 {
		m.logger.Info("Ambiguous weak-secret match, disambiguation required",
			util.String("property_id", propertyID),
			util.Int("candidates", len(candidates)))
	}

	return candidates, nil
}

// candidateFor records which contact's phone carried the match. The
// primary guest wins when both match.
func (m *Matcher) candidateFor(reservation *models.Reservation, last4 string) Candidate {
	primary := util.NormalizePhone(reservation.GuestPhone)
	if reservation.GuestPhoneLast4 == last4 || strings.HasSuffix(primary, last4) {
		return Candidate{
			Reservation:  reservation,
			MatchedPhone: reservation.GuestPhone,
			MatchedName:  reservation.GuestName,
		}
	}

	for _, contact := range reservation.AdditionalContacts {
		if strings.HasSuffix(util.NormalizePhone(contact.Phone), last4) {
			return Candidate{
				Reservation:  reservation,
				MatchedPhone: contact.Phone,
				MatchedName:  contact.Name,
			}
		}
	}

	// the store matched it, so something above should have too; fall back
	// to the primary guest
	return Candidate{
		Reservation:  reservation,
		MatchedPhone: reservation.GuestPhone,
		MatchedName:  reservation.GuestName,
	}
}
