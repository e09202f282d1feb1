package verification

import (
	"context"
	"time"

	"go.uber.org/zap"

	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/token"
	"guest-access/internal/util"
)

// Mode of a verification context: which scheme the link was issued under.
type Mode string

const (
	// ModeProperty is the current scheme: one link per property, matched
	// against every reservation at it.
	ModeProperty Mode = "property"
	// ModeReservation is the legacy scheme: one link per reservation.
	ModeReservation Mode = "reservation"
)

// Context is the resolved scope of a magic link.
type Context struct {
	Mode          Mode
	TokenHash     string
	PropertyID    string
	ReservationID string
	DisplayName   string
}

// Resolver maps a raw token to its verification context. Only the token
// hash ever touches storage.
type Resolver struct {
	links        scylla.MagicLinkStore
	reservations scylla.ReservationStore
	logger       *zap.Logger
}

func NewResolver(links scylla.MagicLinkStore, reservations scylla.ReservationStore, logger *zap.Logger) *Resolver {
	return &Resolver{links: links, reservations: reservations, logger: logger}
}

// Resolve tries the current property scheme first, then the legacy
// reservation scheme. An unknown or expired token is terminal.
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (*Context, *models.MagicLinkToken, error) {
	tokenHash := token.Hash(rawToken)

	link, err := r.links.GetMagicLink(ctx, tokenHash)
	if err != nil {
		if err == scylla.ErrNotFound {
			return nil, nil, ErrLinkNotFound
		}
		return nil, nil, err
	}

	if link.IsExpired(time.Now().UTC()) {
		r.logger.Info("Rejected expired magic link", util.String("token_hash", tokenHash))
		return nil, nil, ErrLinkNotFound
	}

	if link.PropertyID != "" {
		property, err := r.links.GetPropertyByMagicLinkToken(ctx, tokenHash)
		if err != nil {
			if err == scylla.ErrNotFound {
				return nil, nil, ErrLinkNotFound
			}
			return nil, nil, err
		}
		return &Context{
			Mode:        ModeProperty,
			TokenHash:   tokenHash,
			PropertyID:  property.PropertyID,
			DisplayName: property.Name,
		}, link, nil
	}

	if link.ReservationID != "" {
		reservation, err := r.reservations.GetReservation(ctx, link.ReservationID)
		if err != nil {
			if err == scylla.ErrNotFound {
				return nil, nil, ErrLinkNotFound
			}
			return nil, nil, err
		}
		return &Context{
			Mode:          ModeReservation,
			TokenHash:     tokenHash,
			PropertyID:    reservation.PropertyID,
			ReservationID: reservation.ReservationID,
			DisplayName:   reservation.GuestName,
		}, link, nil
	}

	return nil, nil, ErrLinkNotFound
}
