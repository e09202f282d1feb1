package scylla

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocql/gocql"

	"guest-access/internal/models"
	"guest-access/internal/util"
)

// MagicLinkRepository stores link records keyed by token hash. Raw tokens
// never reach this layer.
type MagicLinkRepository struct {
	client *ScyllaClient
}

func NewMagicLinkRepository(client *ScyllaClient) *MagicLinkRepository {
	return &MagicLinkRepository{client: client}
}

func (r *MagicLinkRepository) GetMagicLink(ctx context.Context, tokenHash string) (*models.MagicLinkToken, error) {
	link := &models.MagicLinkToken{}
	err := r.client.Session.Query(
		`SELECT token_hash, property_id, reservation_id, status, verification_attempts,
			temp_user_id, created_at, expires_at
		 FROM magic_links WHERE token_hash = ?`, tokenHash,
	).WithContext(ctx).Scan(
		&link.TokenHash, &link.PropertyID, &link.ReservationID, &link.Status,
		&link.VerificationAttempts, &link.TempUserID, &link.CreatedAt, &link.ExpiresAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get magic link: %w", err)
	}
	return link, nil
}

func (r *MagicLinkRepository) UpdateMagicLink(ctx context.Context, tokenHash string, update MagicLinkUpdate) error {
	var assignments []string
	var args []interface{}

	if update.Status != nil {
		assignments = append(assignments, "status = ?")
		args = append(args, *update.Status)
	}
	if update.VerificationAttempts != nil {
		assignments = append(assignments, "verification_attempts = ?")
		args = append(args, *update.VerificationAttempts)
	}
	if update.TempUserID != nil {
		assignments = append(assignments, "temp_user_id = ?")
		args = append(args, *update.TempUserID)
	}
	if len(assignments) == 0 {
		return nil
	}

	query := fmt.Sprintf("UPDATE magic_links SET %s WHERE token_hash = ?", strings.Join(assignments, ", "))
	args = append(args, tokenHash)

	if err := r.client.Session.Query(query, args...).WithContext(ctx).Exec(); err != nil {
		util.Error("Failed to update magic link",
			util.String("token_hash", tokenHash),
			util.ErrorField(err))
		return fmt.Errorf("failed to update magic link: %w", err)
	}
	return nil
}

// GetPropertyByMagicLinkToken resolves the current link scheme: a link
// bound directly to a property.
func (r *MagicLinkRepository) GetPropertyByMagicLinkToken(ctx context.Context, tokenHash string) (*models.Property, error) {
	link, err := r.GetMagicLink(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if link.PropertyID == "" {
		return nil, ErrNotFound
	}

	property := &models.Property{}
	err = r.client.Session.Query(
		`SELECT property_id, name, host_id, created_at FROM properties WHERE property_id = ?`,
		link.PropertyID,
	).WithContext(ctx).Scan(
		&property.PropertyID, &property.Name, &property.HostID, &property.CreatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get property: %w", err)
	}
	return property, nil
}
