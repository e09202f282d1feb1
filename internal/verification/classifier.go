package verification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/token"
	"guest-access/internal/util"
)

// Outcome of classifying a matched phone/context.
type Outcome string

const (
	// OutcomeTempUserAccess: a named temporary identity already exists
	// for this token; grant a session immediately.
	OutcomeTempUserAccess Outcome = "temp_user_access"
	// OutcomeMigratedUserConfirmation: the match landed on an identity
	// that was upgraded to a durable account; require an explicit "is
	// this you?" before anything is granted.
	OutcomeMigratedUserConfirmation Outcome = "migrated_user_confirmation"
	// OutcomeCreateTempUser: fresh or nameless identity; proceed to name
	// collection.
	OutcomeCreateTempUser Outcome = "create_temp_user"
)

// Decision is the classifier's verdict for a successful match.
type Decision struct {
	Outcome        Outcome
	TempUser       *models.TemporaryUser
	ExistingUserID string // set for migrated_user_confirmation
}

// Classifier decides how to treat a matched weak secret. A 4-digit secret
// is weak by design; whenever a guess lands on an already-upgraded
// identity the classifier demands strong re-proof instead of granting
// anything.
type Classifier struct {
	tempUsers scylla.TempUserStore
	links     scylla.MagicLinkStore
	logger    *zap.Logger
}

func NewClassifier(tempUsers scylla.TempUserStore, links scylla.MagicLinkStore, logger *zap.Logger) *Classifier {
	return &Classifier{tempUsers: tempUsers, links: links, logger: logger}
}

// Classify runs the priority-ordered outcomes for a matched candidate.
func (c *Classifier) Classify(ctx context.Context, link *models.MagicLinkToken, candidate Candidate) (*Decision, error) {
	tempUserID := link.TempUserID
	if tempUserID == "" {
		tempUserID = token.TempUserID(link.TokenHash)
	}

	tempUser, err := c.tempUsers.GetTemporaryUser(ctx, tempUserID)
	if err != nil && err != scylla.ErrNotFound {
		return nil, err
	}

	if tempUser != nil {
		if tempUser.IsUpgraded() {
			return &Decision{
				Outcome:        OutcomeMigratedUserConfirmation,
				TempUser:       tempUser,
				ExistingUserID: tempUser.UpgradedUserID,
			}, nil
		}
		if tempUser.AccessDisabled {
			return nil, ErrLinkNotFound
		}
		if tempUser.HasName() {
			return &Decision{Outcome: OutcomeTempUserAccess, TempUser: tempUser}, nil
		}
	}

	// The token has no usable identity yet; a prior identity for the
	// matched phone may still have been upgraded elsewhere.
	if phone := util.NormalizePhone(candidate.MatchedPhone); phone != "" {
		byPhone, err := c.tempUsers.GetTemporaryUserByPhone(ctx, phone)
		if err != nil && err != scylla.ErrNotFound {
			return nil, err
		}
		if byPhone != nil && byPhone.IsUpgraded() {
			return &Decision{
				Outcome:        OutcomeMigratedUserConfirmation,
				TempUser:       byPhone,
				ExistingUserID: byPhone.UpgradedUserID,
			}, nil
		}
	}

	created, err := c.provisionTempUser(ctx, link, tempUserID, candidate)
	if err != nil {
		return nil, err
	}

	return &Decision{Outcome: OutcomeCreateTempUser, TempUser: created}, nil
}

// RecordFailure counts a wrong fragment against the token. At the limit
// the token locks permanently: host contact, not a cooldown. Locked is
// not expired; the token still resolves so later attempts get a
// too-many-attempts answer instead of not-found.
func (c *Classifier) RecordFailure(ctx context.Context, link *models.MagicLinkToken) (remaining int, err error) {
	attempts := link.VerificationAttempts + 1
	update := scylla.MagicLinkUpdate{VerificationAttempts: &attempts}

	if attempts >= models.MaxVerificationAttempts {
		status := models.TokenStatusLocked
		update.Status = &status
		c.logger.Warn("Magic link locked after repeated failures",
			util.String("token_hash", link.TokenHash),
			util.Int("attempts", attempts))
	}

	if err := c.links.UpdateMagicLink(ctx, link.TokenHash, update); err != nil {
		return 0, err
	}
	link.VerificationAttempts = attempts

	remaining = models.MaxVerificationAttempts - attempts
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// provisionTempUser creates or idempotently reuses the token's temporary
// identity and links it back to the token record.
func (c *Classifier) provisionTempUser(ctx context.Context, link *models.MagicLinkToken, tempUserID string, candidate Candidate) (*models.TemporaryUser, error) {
	tempUser := &models.TemporaryUser{
		TempUserID:      tempUserID,
		TokenHash:       link.TokenHash,
		Phone:           util.NormalizePhone(candidate.MatchedPhone),
		ReservationIDs:  []string{candidate.Reservation.ReservationID},
		MigrationStatus: models.MigrationNone,
	}
	if err := c.tempUsers.CreateTemporaryUser(ctx, tempUser); err != nil {
		return nil, fmt.Errorf("failed to provision temporary user: %w", err)
	}

	status := models.TokenStatusPartialVerified
	if err := c.links.UpdateMagicLink(ctx, link.TokenHash, scylla.MagicLinkUpdate{
		Status:     &status,
		TempUserID: &tempUser.TempUserID,
	}); err != nil {
		return nil, err
	}
	link.Status = status
	link.TempUserID = tempUser.TempUserID

	return tempUser, nil
}
