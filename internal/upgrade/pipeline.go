package upgrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"guest-access/internal/identity"
	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/roles"
	"guest-access/internal/util"
	"guest-access/internal/verification"
)

// Request is what a flow hands the pipeline once a credential has been
// collected: the temporary identity, the credential the guest claimed to
// verify, and the provider token that proves it. ReservationID is the
// reservation pinned during the weak-secret match; it wins over any
// phone-derived lookup so a guest who verifies with a phone different
// from the one that matched still gets the right stay.
type Request struct {
	TempUserID    string
	ReservationID string
	ClaimedPhone  string
	ClaimedEmail  string
	IDToken       string
}

// Outcome of a completed upgrade. Merged is set when the credential
// already belonged to a durable account and that account's id was adopted
// instead of minting a second one.
type Outcome struct {
	User   *models.User
	Merged bool
}

// Pipeline turns a temporary identity into (or onto) a durable account.
// Every step that can fail does so before the temporary identity is
// touched, so a failed attempt leaves it fully usable.
type Pipeline struct {
	users     scylla.UserStore
	tempUsers scylla.TempUserStore
	provider  identity.Provider
	logger    *zap.Logger
}

func NewPipeline(users scylla.UserStore, tempUsers scylla.TempUserStore, provider identity.Provider, logger *zap.Logger) *Pipeline {
	return &Pipeline{users: users, tempUsers: tempUsers, provider: provider, logger: logger}
}

// Complete runs the full upgrade: verify the provider token, find or
// create the durable account, normalize roles, attach the reservation,
// retire the temporary identity.
func (p *Pipeline) Complete(ctx context.Context, req Request) (*Outcome, error) {
	asserted, err := p.provider.VerifyIDToken(ctx, req.IDToken)
	if err != nil {
		if errors.Is(err, identity.ErrTokenInvalid) {
			return nil, verification.ErrProviderTokenInvalid
		}
		return nil, err
	}

	if err := p.checkClaim(req, asserted); err != nil {
		return nil, err
	}

	tempUser, err := p.tempUsers.GetTemporaryUser(ctx, req.TempUserID)
	if err != nil {
		if err == scylla.ErrNotFound {
			return nil, verification.ErrLinkNotFound
		}
		return nil, err
	}

	user, merged, err := p.findOrCreateUser(ctx, asserted, tempUser)
	if err != nil {
		return nil, err
	}

	if err := p.attachReservation(ctx, user, req, tempUser); err != nil {
		return nil, err
	}

	if err := p.retireTempUser(ctx, tempUser, user.UserID); err != nil {
		return nil, err
	}

	p.logger.Info("Temporary identity upgraded",
		util.String("temp_user_id", tempUser.TempUserID),
		util.String("user_id", user.UserID),
		util.Bool("merged", merged))

	return &Outcome{User: user, Merged: merged}, nil
}

// checkClaim rejects provider tokens that assert a credential other than
// the one the guest claimed to verify. Without it, any valid provider
// token could complete any pending upgrade.
func (p *Pipeline) checkClaim(req Request, asserted *identity.Identity) error {
	if req.ClaimedPhone != "" {
		if asserted.Phone != util.NormalizePhone(req.ClaimedPhone) {
			p.logger.Warn("Provider asserted a different phone than claimed",
				util.String("temp_user_id", req.TempUserID))
			return verification.ErrProviderIdentityMismatch
		}
		return nil
	}
	if req.ClaimedEmail != "" {
		if asserted.Email != req.ClaimedEmail {
			p.logger.Warn("Provider asserted a different email than claimed",
				util.String("temp_user_id", req.TempUserID))
			return verification.ErrProviderIdentityMismatch
		}
		return nil
	}
	return verification.ErrProviderIdentityMismatch
}

// findOrCreateUser looks the asserted credential up by phone and email in
// parallel. A hit under a different subject id means phone-auth and
// email-auth minted distinct provider ids for the same person; the
// existing record's id is adopted rather than creating a second account.
func (p *Pipeline) findOrCreateUser(ctx context.Context, asserted *identity.Identity, tempUser *models.TemporaryUser) (*models.User, bool, error) {
	var byPhone, byEmail *models.User

	g, gctx := errgroup.WithContext(ctx)
	if asserted.Phone != "" {
		g.Go(func() error {
			user, err := p.users.GetUserByPhone(gctx, asserted.Phone)
			if err != nil && err != scylla.ErrNotFound {
				return err
			}
			byPhone = user
			return nil
		})
	}
	if asserted.Email != "" {
		g.Go(func() error {
			user, err := p.users.GetUserByEmail(gctx, asserted.Email)
			if err != nil && err != scylla.ErrNotFound {
				return err
			}
			byEmail = user
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	existing := byPhone
	if existing == nil {
		existing = byEmail
	}

	if existing != nil {
		merged := existing.UserID != asserted.SubjectID
		if err := p.adoptCredential(ctx, existing, asserted); err != nil {
			return nil, false, err
		}
		return existing, merged, nil
	}

	now := time.Now().UTC()
	user := &models.User{
		UserID:      asserted.SubjectID,
		PhoneNumber: asserted.Phone,
		Email:       asserted.Email,
		Name:        tempUser.DisplayName,
		Roles:       roles.EnsureGuest(nil),
		AccountType: models.AccountTypePermanent,
		CreatedAt:   now,
		LastLogin:   &now,
	}
	if err := p.users.CreateUser(ctx, user); err != nil {
		return nil, false, fmt.Errorf("%w: %v", verification.ErrUpgradeWriteFailure, err)
	}
	return user, false, nil
}

// adoptCredential attaches the newly verified phone/email to an existing
// account where it is missing, normalizes roles, and stamps the login.
func (p *Pipeline) adoptCredential(ctx context.Context, user *models.User, asserted *identity.Identity) error {
	now := time.Now().UTC()
	update := scylla.UserUpdate{LastLogin: &now}

	if asserted.Phone != "" && user.PhoneNumber == "" {
		update.PhoneNumber = &asserted.Phone
		user.PhoneNumber = asserted.Phone
	}
	if asserted.Email != "" && user.Email == "" {
		update.Email = &asserted.Email
		user.Email = asserted.Email
	}

	normalized := roles.EnsureGuest(user.Roles)
	if !roles.Equal(normalized, user.Roles) {
		update.Roles = normalized
	}
	user.Roles = normalized
	user.LastLogin = &now

	found, err := p.users.UpdateUser(ctx, user.UserID, update)
	if err != nil {
		return fmt.Errorf("%w: %v", verification.ErrUpgradeWriteFailure, err)
	}
	if !found {
		return verification.ErrUpgradeWriteFailure
	}
	return nil
}

// attachReservation is an idempotent set-union over the account's
// reservation list. The preserved reservation from the weak-secret match
// wins; the temporary identity's collected reservations are the fallback.
func (p *Pipeline) attachReservation(ctx context.Context, user *models.User, req Request, tempUser *models.TemporaryUser) error {
	attach := tempUser.ReservationIDs
	if req.ReservationID != "" {
		attach = []string{req.ReservationID}
	}
	if len(attach) == 0 {
		return nil
	}

	combined := unionReservations(user.ReservationIDs, attach)
	if len(combined) == len(user.ReservationIDs) {
		return nil
	}

	found, err := p.users.UpdateUser(ctx, user.UserID, scylla.UserUpdate{ReservationIDs: combined})
	if err != nil {
		return fmt.Errorf("%w: %v", verification.ErrUpgradeWriteFailure, err)
	}
	if !found {
		return verification.ErrUpgradeWriteFailure
	}
	user.ReservationIDs = combined
	return nil
}

// retireTempUser flags the temporary identity as upgraded. It is never
// deleted; later weak-secret matches on it route to migrated-user
// confirmation instead of granting access.
func (p *Pipeline) retireTempUser(ctx context.Context, tempUser *models.TemporaryUser, userID string) error {
	status := models.MigrationUpgraded
	if err := p.tempUsers.UpdateTemporaryUser(ctx, tempUser.TempUserID, scylla.TempUserUpdate{
		MigrationStatus: &status,
		UpgradedUserID:  &userID,
	}); err != nil {
		return fmt.Errorf("%w: %v", verification.ErrUpgradeWriteFailure, err)
	}
	tempUser.MigrationStatus = status
	tempUser.UpgradedUserID = userID
	return nil
}

func unionReservations(existing, attach []string) []string {
	seen := make(map[string]bool, len(existing))
	combined := make([]string, 0, len(existing)+len(attach))
	for _, id := range existing {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		combined = append(combined, id)
	}
	for _, id := range attach {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		combined = append(combined, id)
	}
	return combined
}
