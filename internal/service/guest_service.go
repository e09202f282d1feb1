package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"guest-access/internal/audit"
	"guest-access/internal/identity"
	"guest-access/internal/login"
	"guest-access/internal/models"
	redisrepo "guest-access/internal/repository/redis"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/roles"
	"guest-access/internal/session"
	"guest-access/internal/upgrade"
	"guest-access/internal/util"
	"guest-access/internal/verification"
)

var (
	ErrFlowExpired        = errors.New("flow expired")
	ErrInvalidReservation = errors.New("reservation not in scope")
	ErrInvalidInput       = errors.New("invalid input")
)

// Status of one step in the access flow, as the presentation layer sees
// it.
type Status string

const (
	StatusGranted             Status = "granted"
	StatusDisambiguation      Status = "disambiguation"
	StatusNameCollection      Status = "name_collection"
	StatusConfirmIdentity     Status = "confirm_identity"
	StatusVerificationStarted Status = "verification_started"
	StatusRejected            Status = "rejected"
	StatusLocked              Status = "locked"
	StatusPinEntry            Status = "pin_entry"
	StatusPinCreation         Status = "pin_creation"
)

// Caller carries per-request attributes: the browser flow key, the
// device fingerprint, and the remote address for auditing.
type Caller struct {
	FlowID      string
	Fingerprint string
	RemoteAddr  string
}

// SessionGrant is an issued session plus where to send the guest next.
type SessionGrant struct {
	Token     string    `json:"sessionToken"`
	ExpiresAt time.Time `json:"expiresAt"`
	Redirect  string    `json:"redirect"`
}

// ReservationChoice is one disambiguation entry. Only what the guest
// needs to recognize their own stay is exposed.
type ReservationChoice struct {
	ReservationID string    `json:"reservationId"`
	GuestName     string    `json:"guestName"`
	CheckIn       time.Time `json:"checkIn"`
	CheckOut      time.Time `json:"checkOut"`
}

// AccessResult is the service's answer to one flow step.
type AccessResult struct {
	Status            Status              `json:"status"`
	DisplayName       string              `json:"displayName,omitempty"`
	Session           *SessionGrant       `json:"session,omitempty"`
	Choices           []ReservationChoice `json:"choices,omitempty"`
	AttemptsRemaining int                 `json:"attemptsRemaining,omitempty"`
}

// LinkContext is what resolve-link exposes about a token.
type LinkContext struct {
	Mode              string `json:"mode"`
	DisplayName       string `json:"displayName"`
	PropertyID        string `json:"propertyId,omitempty"`
	ReservationID     string `json:"reservationId,omitempty"`
	Locked            bool   `json:"locked"`
	AttemptsRemaining int    `json:"attemptsRemaining"`
}

// FlowStore is the session-scoped pending flow state.
type FlowStore interface {
	SetFlow(ctx context.Context, flowID string, flow *models.PendingFlow) error
	GetFlow(ctx context.Context, flowID string) (*models.PendingFlow, error)
	GetFlowOfKind(ctx context.Context, flowID string, kind models.FlowKind) (*models.PendingFlow, error)
	ClearFlow(ctx context.Context, flowID string) error
}

// Deps are the collaborators a GuestService needs.
type Deps struct {
	Resolver   *verification.Resolver
	Matcher    *verification.Matcher
	Classifier *verification.Classifier
	Machine    *login.Machine
	Pipeline   *upgrade.Pipeline
	Users      scylla.UserStore
	TempUsers  scylla.TempUserStore
	Flows      FlowStore
	Provider   identity.Provider
	Codec      *session.Codec
	Recorder   *audit.Recorder
	Logger     *zap.Logger
}

// GuestService orchestrates the whole guest access flow: magic link
// resolution, weak-secret verification, identity collection, strong
// verification, and phone login for returning accounts.
type GuestService struct {
	deps Deps
}

func NewGuestService(deps Deps) *GuestService {
	return &GuestService{deps: deps}
}

// ResolveLink maps a raw token to its public context.
func (s *GuestService) ResolveLink(ctx context.Context, rawToken string) (*LinkContext, error) {
	vctx, link, err := s.deps.Resolver.Resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	remaining := models.MaxVerificationAttempts - link.VerificationAttempts
	if remaining < 0 {
		remaining = 0
	}
	return &LinkContext{
		Mode:              string(vctx.Mode),
		DisplayName:       vctx.DisplayName,
		PropertyID:        vctx.PropertyID,
		ReservationID:     vctx.ReservationID,
		Locked:            link.IsLocked(),
		AttemptsRemaining: remaining,
	}, nil
}

// SubmitWeakSecret checks a 4-digit phone fragment against the link's
// scope. Lock state is checked before anything else, so a locked token
// rejects even a correct fragment.
func (s *GuestService) SubmitWeakSecret(ctx context.Context, caller Caller, rawToken, fragment string) (*AccessResult, error) {
	vctx, link, err := s.deps.Resolver.Resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if link.IsLocked() {
		return nil, verification.ErrTooManyAttempts
	}

	candidates, err := s.deps.Matcher.Match(ctx, vctx, fragment)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		return s.recordMismatch(ctx, caller, link)
	}

	if len(candidates) > 1 {
		if err := s.deps.Flows.SetFlow(ctx, caller.FlowID, &models.PendingFlow{
			Kind:      models.FlowSignup,
			CreatedAt: time.Now().UTC(),
			Signup:    &models.SignupFlow{TokenHash: vctx.TokenHash, Fragment: fragment},
		}); err != nil {
			return nil, err
		}
		return &AccessResult{
			Status:  StatusDisambiguation,
			Choices: choicesFrom(candidates),
		}, nil
	}

	return s.continueWithCandidate(ctx, caller, vctx, link, candidates[0])
}

// SelectReservation resolves a prior disambiguation by re-running the
// match with the stored fragment and picking the chosen entry.
func (s *GuestService) SelectReservation(ctx context.Context, caller Caller, rawToken, reservationID string) (*AccessResult, error) {
	pending, err := s.deps.Flows.GetFlowOfKind(ctx, caller.FlowID, models.FlowSignup)
	if err != nil {
		return nil, s.flowErr(err)
	}
	flow := pending.Signup
	if flow.Fragment == "" {
		return nil, ErrFlowExpired
	}

	vctx, link, err := s.deps.Resolver.Resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if vctx.TokenHash != flow.TokenHash {
		return nil, ErrFlowExpired
	}
	if link.IsLocked() {
		return nil, verification.ErrTooManyAttempts
	}

	candidates, err := s.deps.Matcher.Match(ctx, vctx, flow.Fragment)
	if err != nil {
		return nil, err
	}
	for _, candidate := range candidates {
		if candidate.Reservation.ReservationID == reservationID {
			return s.continueWithCandidate(ctx, caller, vctx, link, candidate)
		}
	}
	return nil, ErrInvalidReservation
}

// CollectIdentity records the guest's name and optional phone. Without a
// phone the temporary session is issued directly; with one, strong
// verification begins.
func (s *GuestService) CollectIdentity(ctx context.Context, caller Caller, name, phone string) (*AccessResult, error) {
	pending, err := s.deps.Flows.GetFlowOfKind(ctx, caller.FlowID, models.FlowSignup)
	if err != nil {
		return nil, s.flowErr(err)
	}
	flow := pending.Signup
	if flow.TempUserID == "" {
		return nil, ErrFlowExpired
	}

	name = util.SanitizeInput(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidInput)
	}

	update := scylla.TempUserUpdate{DisplayName: &name}
	phone = util.NormalizePhone(phone)
	if phone != "" {
		update.Phone = &phone
	}
	if err := s.deps.TempUsers.UpdateTemporaryUser(ctx, flow.TempUserID, update); err != nil {
		return nil, err
	}

	if phone == "" {
		grant, err := s.issueSession(ctx, caller, flow.TempUserID, nil, flow.TokenHash)
		if err != nil {
			return nil, err
		}
		if err := s.deps.Flows.ClearFlow(ctx, caller.FlowID); err != nil {
			return nil, err
		}
		return &AccessResult{Status: StatusGranted, DisplayName: name, Session: grant}, nil
	}

	if err := s.deps.Provider.RequestCode(ctx, phone); err != nil {
		return nil, err
	}
	if err := s.deps.Flows.SetFlow(ctx, caller.FlowID, &models.PendingFlow{
		Kind:      models.FlowOtpUpgrade,
		CreatedAt: time.Now().UTC(),
		OtpUpgrade: &models.OtpUpgradeFlow{
			TokenHash:     flow.TokenHash,
			TempUserID:    flow.TempUserID,
			ReservationID: flow.ReservationID,
			ClaimedPhone:  phone,
		},
	}); err != nil {
		return nil, err
	}
	return &AccessResult{Status: StatusVerificationStarted, DisplayName: name}, nil
}

// CompleteStrongVerification finishes whichever strong-verification flow
// is pending: a temporary-identity upgrade or a migrated-user login.
func (s *GuestService) CompleteStrongVerification(ctx context.Context, caller Caller, providerToken string) (*AccessResult, error) {
	pending, err := s.deps.Flows.GetFlow(ctx, caller.FlowID)
	if err != nil {
		return nil, s.flowErr(err)
	}

	switch pending.Kind {
	case models.FlowOtpUpgrade:
		return s.completeUpgrade(ctx, caller, pending.OtpUpgrade, providerToken)
	case models.FlowAccountCreation:
		return s.completeMigratedLogin(ctx, caller, pending.AccountCreation, providerToken)
	default:
		return nil, models.ErrFlowKindMismatch
	}
}

// ConfirmMigratedUser handles the "is this you?" answer after a match
// landed on an upgraded identity. Yes starts strong verification against
// the durable account; no provisions an unrelated fresh identity.
func (s *GuestService) ConfirmMigratedUser(ctx context.Context, caller Caller, accept bool) (*AccessResult, error) {
	pending, err := s.deps.Flows.GetFlowOfKind(ctx, caller.FlowID, models.FlowAccountCreation)
	if err != nil {
		return nil, s.flowErr(err)
	}
	flow := pending.AccountCreation

	if accept {
		if err := s.deps.Provider.RequestCode(ctx, flow.ClaimedPhone); err != nil {
			return nil, err
		}
		return &AccessResult{Status: StatusVerificationStarted}, nil
	}

	// Declined: this guest is someone else. Provision a fresh identity
	// unrelated to the upgraded one.
	tempUser := &models.TemporaryUser{
		TempUserID:      uuid.NewString(),
		TokenHash:       flow.TokenHash,
		Phone:           util.NormalizePhone(flow.ClaimedPhone),
		ReservationIDs:  []string{flow.ReservationID},
		MigrationStatus: models.MigrationNone,
	}
	if err := s.deps.TempUsers.CreateTemporaryUser(ctx, tempUser); err != nil {
		return nil, err
	}
	if err := s.deps.Flows.SetFlow(ctx, caller.FlowID, &models.PendingFlow{
		Kind:      models.FlowSignup,
		CreatedAt: time.Now().UTC(),
		Signup: &models.SignupFlow{
			TokenHash:     flow.TokenHash,
			TempUserID:    tempUser.TempUserID,
			ReservationID: flow.ReservationID,
			Phone:         tempUser.Phone,
		},
	}); err != nil {
		return nil, err
	}
	return &AccessResult{Status: StatusNameCollection}, nil
}

// ValidateSession re-checks a session cookie for a privileged action.
func (s *GuestService) ValidateSession(value, fingerprint string) (session.Payload, error) {
	return s.deps.Codec.Validate(value, fingerprint, time.Now().UTC())
}

// ---- phone login for returning accounts ----

func (s *GuestService) StartPhoneLogin(ctx context.Context, caller Caller, phone string) (*AccessResult, error) {
	result, err := s.deps.Machine.Start(ctx, caller.FlowID, phone)
	if err != nil {
		return nil, err
	}
	return s.loginResult(ctx, caller, result)
}

func (s *GuestService) SubmitLoginPin(ctx context.Context, caller Caller, pin string) (*AccessResult, error) {
	result, err := s.deps.Machine.SubmitPin(ctx, caller.FlowID, pin)
	if err != nil {
		return nil, err
	}
	return s.loginResult(ctx, caller, result)
}

func (s *GuestService) SubmitLoginOtp(ctx context.Context, caller Caller, providerToken string) (*AccessResult, error) {
	result, err := s.deps.Machine.SubmitOtp(ctx, caller.FlowID, providerToken)
	if err != nil {
		return nil, err
	}
	return s.loginResult(ctx, caller, result)
}

func (s *GuestService) CreateLoginPin(ctx context.Context, caller Caller, pin string) (*AccessResult, error) {
	result, err := s.deps.Machine.CreatePin(ctx, caller.FlowID, pin)
	if err != nil {
		return nil, err
	}
	return s.loginResult(ctx, caller, result)
}

// ---- internals ----

func (s *GuestService) continueWithCandidate(ctx context.Context, caller Caller, vctx *verification.Context, link *models.MagicLinkToken, candidate verification.Candidate) (*AccessResult, error) {
	decision, err := s.deps.Classifier.Classify(ctx, link, candidate)
	if err != nil {
		return nil, err
	}

	switch decision.Outcome {
	case verification.OutcomeTempUserAccess:
		grant, err := s.issueSession(ctx, caller, decision.TempUser.TempUserID, nil, link.TokenHash)
		if err != nil {
			return nil, err
		}
		return &AccessResult{
			Status:      StatusGranted,
			DisplayName: decision.TempUser.DisplayName,
			Session:     grant,
		}, nil

	case verification.OutcomeMigratedUserConfirmation:
		if err := s.deps.Flows.SetFlow(ctx, caller.FlowID, &models.PendingFlow{
			Kind:      models.FlowAccountCreation,
			CreatedAt: time.Now().UTC(),
			AccountCreation: &models.AccountCreationFlow{
				TokenHash:     link.TokenHash,
				TargetUserID:  decision.ExistingUserID,
				ClaimedPhone:  util.NormalizePhone(candidate.MatchedPhone),
				ReservationID: candidate.Reservation.ReservationID,
			},
		}); err != nil {
			return nil, err
		}
		return &AccessResult{
			Status:      StatusConfirmIdentity,
			DisplayName: decision.TempUser.DisplayName,
		}, nil

	case verification.OutcomeCreateTempUser:
		if err := s.deps.Flows.SetFlow(ctx, caller.FlowID, &models.PendingFlow{
			Kind:      models.FlowSignup,
			CreatedAt: time.Now().UTC(),
			Signup: &models.SignupFlow{
				TokenHash:     link.TokenHash,
				TempUserID:    decision.TempUser.TempUserID,
				ReservationID: candidate.Reservation.ReservationID,
				Phone:         decision.TempUser.Phone,
			},
		}); err != nil {
			return nil, err
		}
		return &AccessResult{Status: StatusNameCollection, DisplayName: vctx.DisplayName}, nil

	default:
		return nil, fmt.Errorf("unknown classification outcome %q", decision.Outcome)
	}
}

func (s *GuestService) recordMismatch(ctx context.Context, caller Caller, link *models.MagicLinkToken) (*AccessResult, error) {
	remaining, err := s.deps.Classifier.RecordFailure(ctx, link)
	if err != nil {
		return nil, err
	}

	s.deps.Recorder.Record(ctx, audit.Event(models.EventSecretMismatch, link.TokenHash, "", caller.Fingerprint, caller.RemoteAddr))
	if link.IsLocked() {
		s.deps.Recorder.Record(ctx, audit.Event(models.EventTokenLocked, link.TokenHash, "", caller.Fingerprint, caller.RemoteAddr))
		return &AccessResult{Status: StatusLocked}, nil
	}
	return &AccessResult{Status: StatusRejected, AttemptsRemaining: remaining}, nil
}

func (s *GuestService) completeUpgrade(ctx context.Context, caller Caller, flow *models.OtpUpgradeFlow, providerToken string) (*AccessResult, error) {
	outcome, err := s.deps.Pipeline.Complete(ctx, upgrade.Request{
		TempUserID:    flow.TempUserID,
		ReservationID: flow.ReservationID,
		ClaimedPhone:  flow.ClaimedPhone,
		ClaimedEmail:  flow.ClaimedEmail,
		IDToken:       providerToken,
	})
	if err != nil {
		if errors.Is(err, verification.ErrProviderIdentityMismatch) {
			s.deps.Recorder.Record(ctx, audit.Event(models.EventProviderIdentityMismatch, flow.TokenHash, "", caller.Fingerprint, caller.RemoteAddr))
		}
		return nil, err
	}

	if outcome.Merged {
		s.deps.Recorder.Record(ctx, audit.Event(models.EventAccountMerged, flow.TokenHash, outcome.User.UserID, caller.Fingerprint, caller.RemoteAddr))
	}

	grant, err := s.issueSession(ctx, caller, outcome.User.UserID, outcome.User.Roles, flow.TokenHash)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Flows.ClearFlow(ctx, caller.FlowID); err != nil {
		return nil, err
	}
	return &AccessResult{
		Status:      StatusGranted,
		DisplayName: outcome.User.Name,
		Session:     grant,
	}, nil
}

func (s *GuestService) completeMigratedLogin(ctx context.Context, caller Caller, flow *models.AccountCreationFlow, providerToken string) (*AccessResult, error) {
	asserted, err := s.deps.Provider.VerifyIDToken(ctx, providerToken)
	if err != nil {
		if errors.Is(err, identity.ErrTokenInvalid) {
			return nil, verification.ErrProviderTokenInvalid
		}
		return nil, err
	}
	if asserted.Phone != flow.ClaimedPhone {
		s.deps.Recorder.Record(ctx, audit.Event(models.EventProviderIdentityMismatch, flow.TokenHash, flow.TargetUserID, caller.Fingerprint, caller.RemoteAddr))
		return nil, verification.ErrProviderIdentityMismatch
	}

	user, err := s.deps.Users.GetUser(ctx, flow.TargetUserID)
	if err != nil {
		if err == scylla.ErrNotFound {
			return nil, verification.ErrLinkNotFound
		}
		return nil, err
	}

	update := scylla.UserUpdate{}
	dirty := false
	normalized := roles.EnsureGuest(user.Roles)
	if !roles.Equal(normalized, user.Roles) {
		update.Roles = normalized
		dirty = true
	}
	user.Roles = normalized
	if flow.ReservationID != "" && !user.HasReservation(flow.ReservationID) {
		update.ReservationIDs = append(append([]string{}, user.ReservationIDs...), flow.ReservationID)
		user.ReservationIDs = update.ReservationIDs
		dirty = true
	}
	if dirty {
		if _, err := s.deps.Users.UpdateUser(ctx, user.UserID, update); err != nil {
			return nil, fmt.Errorf("%w: %v", verification.ErrUpgradeWriteFailure, err)
		}
	}

	grant, err := s.issueSession(ctx, caller, user.UserID, user.Roles, flow.TokenHash)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Flows.ClearFlow(ctx, caller.FlowID); err != nil {
		return nil, err
	}
	return &AccessResult{Status: StatusGranted, DisplayName: user.Name, Session: grant}, nil
}

func (s *GuestService) loginResult(ctx context.Context, caller Caller, result *login.Result) (*AccessResult, error) {
	switch result.State {
	case login.StateSessionIssued:
		grant, err := s.issueSession(ctx, caller, result.User.UserID, result.User.Roles, "")
		if err != nil {
			return nil, err
		}
		return &AccessResult{Status: StatusGranted, DisplayName: result.User.Name, Session: grant}, nil
	case login.StatePinEntry:
		return &AccessResult{Status: StatusPinEntry, AttemptsRemaining: result.AttemptsRemaining}, nil
	case login.StatePinCreation:
		return &AccessResult{Status: StatusPinCreation}, nil
	case login.StateOtpVerification, login.StateOtpRecovery:
		return &AccessResult{Status: StatusVerificationStarted}, nil
	default:
		return nil, fmt.Errorf("unexpected login state %q", result.State)
	}
}

// issueSession hands out the cookie value and the post-login redirect.
// Temporary identities carry no roles and land on the guest dashboard.
func (s *GuestService) issueSession(ctx context.Context, caller Caller, userID string, roleList []string, tokenHash string) (*SessionGrant, error) {
	value, payload, err := s.deps.Codec.Issue(userID, caller.Fingerprint, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.deps.Recorder.Record(ctx, audit.Event(models.EventSessionIssued, tokenHash, userID, caller.Fingerprint, caller.RemoteAddr))
	s.deps.Logger.Info("Session issued",
		util.String("user_id", userID),
		util.String("fingerprint", caller.Fingerprint))

	return &SessionGrant{
		Token:     value,
		ExpiresAt: payload.ExpiresAt,
		Redirect:  roles.DashboardPath(roleList),
	}, nil
}

// choicesFrom maps match candidates to the disambiguation entries the
// guest picks from.
func choicesFrom(candidates []verification.Candidate) []ReservationChoice {
	choices := make([]ReservationChoice, 0, len(candidates))
	for _, candidate := range candidates {
		choices = append(choices, ReservationChoice{
			ReservationID: candidate.Reservation.ReservationID,
			GuestName:     candidate.MatchedName,
			CheckIn:       candidate.Reservation.CheckIn,
			CheckOut:      candidate.Reservation.CheckOut,
		})
	}
	return choices
}

func (s *GuestService) flowErr(err error) error {
	if errors.Is(err, models.ErrFlowKindMismatch) || errors.Is(err, redisrepo.ErrFlowNotFound) {
		return ErrFlowExpired
	}
	return err
}
