package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"guest-access/internal/hashing"
	"guest-access/internal/identity"
	"guest-access/internal/models"
	"guest-access/internal/repository/scylla"
	"guest-access/internal/util"
)

// State of a phone login flow. The set is closed and every move between
// states goes through the transition table; handlers never compare step
// strings ad hoc.
type State string

const (
	StatePhoneEntered    State = "phone_entered"
	StatePinEntry        State = "pin_entry"
	StatePinCreation     State = "pin_creation"
	StateOtpVerification State = "otp_verification"
	StateOtpRecovery     State = "otp_recovery"
	StateSessionIssued   State = "session_issued"
)

// MaxPinAttempts bounds wrong PINs per flow. Exceeding it forces OTP
// recovery, not a lockout.
const MaxPinAttempts = 3

// MaxOtpIssues bounds code sends per flow. The counter lives in the
// ledger and expires with it.
const MaxOtpIssues = 3

var (
	ErrIllegalTransition = errors.New("illegal login state transition")
	ErrUnknownPhone      = errors.New("no account for phone")
	ErrInvalidPin        = errors.New("invalid pin")
	// ErrIdentityMismatch means the provider asserted a credential other
	// than the one this flow is for. Logged as suspicious.
	ErrIdentityMismatch = errors.New("provider identity mismatch")
	// ErrOtpNotIssued: an OTP completion arrived for a flow the ledger
	// never issued a code for.
	ErrOtpNotIssued = errors.New("no code issued for this flow")
	// ErrOtpResendLimit: the flow asked for more codes than MaxOtpIssues.
	ErrOtpResendLimit = errors.New("too many codes requested")
)

var transitions = map[State]map[State]bool{
	StatePhoneEntered:    {StatePinEntry: true, StateOtpVerification: true},
	StatePinEntry:        {StatePinEntry: true, StateOtpRecovery: true, StateSessionIssued: true},
	StateOtpVerification: {StatePinCreation: true, StateSessionIssued: true},
	StateOtpRecovery:     {StatePinCreation: true, StateSessionIssued: true},
	StatePinCreation:     {StateSessionIssued: true},
}

func transition(flow *models.PinLoginFlow, to State) error {
	from := State(flow.State)
	if !transitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	flow.State = string(to)
	return nil
}

// FlowStore is the session-scoped flow state this machine reads and
// writes. Nothing here is ever persisted durably.
type FlowStore interface {
	SetFlow(ctx context.Context, flowID string, flow *models.PendingFlow) error
	GetFlowOfKind(ctx context.Context, flowID string, kind models.FlowKind) (*models.PendingFlow, error)
	ClearFlow(ctx context.Context, flowID string) error
}

// OtpLedger tracks one-time-code issuance per flow. Completions are
// checked against an actual issuance, and the issuance count bounds
// re-sends.
type OtpLedger interface {
	MarkOtpIssued(ctx context.Context, flowID string) (int, error)
	OtpIssued(ctx context.Context, flowID string) (bool, error)
	ClearOtp(ctx context.Context, flowID string) error
}

// Result is the machine's answer to one input: the state the flow landed
// in, plus the user once a session may be issued.
type Result struct {
	State             State
	User              *models.User
	AttemptsRemaining int
}

// Machine drives phone logins for durable accounts. The primary path is
// phone -> OTP -> session; accounts that still carry a self-chosen PIN
// get PIN entry first, with OTP as the recovery path.
type Machine struct {
	users    scylla.UserStore
	flows    FlowStore
	otp      OtpLedger
	provider identity.Provider
	hasher   *hashing.PinHasher
	logger   *zap.Logger
}

func NewMachine(users scylla.UserStore, flows FlowStore, otp OtpLedger, provider identity.Provider, hasher *hashing.PinHasher, logger *zap.Logger) *Machine {
	return &Machine{
		users:    users,
		flows:    flows,
		otp:      otp,
		provider: provider,
		hasher:   hasher,
		logger:   logger,
	}
}

// Start begins a flow for a phone. A usable PIN routes to PIN entry; no
// PIN, or a provisioned default PIN, routes straight to OTP.
func (m *Machine) Start(ctx context.Context, flowID, phone string) (*Result, error) {
	phone = util.NormalizePhone(phone)

	user, err := m.users.GetUserByPhone(ctx, phone)
	if err != nil {
		if err == scylla.ErrNotFound {
			return nil, ErrUnknownPhone
		}
		return nil, err
	}

	flow := &models.PinLoginFlow{
		State:  string(StatePhoneEntered),
		Phone:  phone,
		UserID: user.UserID,
	}

	next := StateOtpVerification
	if user.PinHash != "" && !user.HasDefaultPin {
		next = StatePinEntry
	}
	if err := transition(flow, next); err != nil {
		return nil, err
	}

	if next == StateOtpVerification {
		if err := m.issueOtp(ctx, flowID, flow); err != nil {
			return nil, err
		}
	}

	if err := m.saveFlow(ctx, flowID, flow); err != nil {
		return nil, err
	}
	return &Result{State: next}, nil
}

// SubmitPin checks a PIN against the account. The third wrong PIN moves
// the flow to OTP recovery instead of rejecting again.
func (m *Machine) SubmitPin(ctx context.Context, flowID, pin string) (*Result, error) {
	flow, err := m.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if State(flow.State) != StatePinEntry {
		return nil, fmt.Errorf("%w: pin submitted in state %s", ErrIllegalTransition, flow.State)
	}

	user, err := m.users.GetUser(ctx, flow.UserID)
	if err != nil {
		return nil, err
	}

	ok, err := m.hasher.VerifyPin(pin, user.PinHash, user.PinSalt)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := transition(flow, StateSessionIssued); err != nil {
			return nil, err
		}
		if err := m.flows.ClearFlow(ctx, flowID); err != nil {
			return nil, err
		}
		return &Result{State: StateSessionIssued, User: user}, nil
	}

	flow.PinAttempts++
	if flow.PinAttempts >= MaxPinAttempts {
		if err := transition(flow, StateOtpRecovery); err != nil {
			return nil, err
		}
		m.logger.Info("PIN attempts exhausted, falling back to OTP",
			util.String("user_id", flow.UserID))
		if err := m.issueOtp(ctx, flowID, flow); err != nil {
			return nil, err
		}
		if err := m.saveFlow(ctx, flowID, flow); err != nil {
			return nil, err
		}
		return &Result{State: StateOtpRecovery}, nil
	}

	if err := transition(flow, StatePinEntry); err != nil {
		return nil, err
	}
	if err := m.saveFlow(ctx, flowID, flow); err != nil {
		return nil, err
	}
	// A pin_entry result from a submission is a rejection; the remaining
	// count tells the guest how many tries are left before OTP recovery.
	return &Result{
		State:             StatePinEntry,
		AttemptsRemaining: MaxPinAttempts - flow.PinAttempts,
	}, nil
}

// SubmitOtp completes the OTP leg. The provider must assert the exact
// phone this flow was started for.
func (m *Machine) SubmitOtp(ctx context.Context, flowID, idToken string) (*Result, error) {
	flow, err := m.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	state := State(flow.State)
	if state != StateOtpVerification && state != StateOtpRecovery {
		return nil, fmt.Errorf("%w: otp submitted in state %s", ErrIllegalTransition, flow.State)
	}

	issued, err := m.otp.OtpIssued(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if !issued {
		return nil, ErrOtpNotIssued
	}

	asserted, err := m.provider.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if asserted.Phone != flow.Phone {
		m.logger.Warn("OTP verified a different phone than the flow's",
			util.String("user_id", flow.UserID))
		return nil, ErrIdentityMismatch
	}

	user, err := m.users.GetUser(ctx, flow.UserID)
	if err != nil {
		return nil, err
	}

	if user.PinHash == "" || user.HasDefaultPin {
		if err := transition(flow, StatePinCreation); err != nil {
			return nil, err
		}
		if err := m.saveFlow(ctx, flowID, flow); err != nil {
			return nil, err
		}
		return &Result{State: StatePinCreation, User: user}, nil
	}

	if err := transition(flow, StateSessionIssued); err != nil {
		return nil, err
	}
	if err := m.finishFlow(ctx, flowID); err != nil {
		return nil, err
	}
	return &Result{State: StateSessionIssued, User: user}, nil
}

// CreatePin sets a self-chosen PIN after the OTP leg and issues the
// session.
func (m *Machine) CreatePin(ctx context.Context, flowID, pin string) (*Result, error) {
	flow, err := m.loadFlow(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if State(flow.State) != StatePinCreation {
		return nil, fmt.Errorf("%w: pin created in state %s", ErrIllegalTransition, flow.State)
	}
	if !validPin(pin) {
		return nil, fmt.Errorf("%w: must be 4 digits", ErrInvalidPin)
	}

	hash, salt, err := m.hasher.HashPin(pin)
	if err != nil {
		return nil, err
	}

	hasDefault := false
	found, err := m.users.UpdateUser(ctx, flow.UserID, scylla.UserUpdate{
		PinHash:       &hash,
		PinSalt:       &salt,
		HasDefaultPin: &hasDefault,
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrUnknownPhone
	}

	user, err := m.users.GetUser(ctx, flow.UserID)
	if err != nil {
		return nil, err
	}

	if err := transition(flow, StateSessionIssued); err != nil {
		return nil, err
	}
	if err := m.finishFlow(ctx, flowID); err != nil {
		return nil, err
	}
	return &Result{State: StateSessionIssued, User: user}, nil
}

func (m *Machine) issueOtp(ctx context.Context, flowID string, flow *models.PinLoginFlow) error {
	// Mark before sending: the count gates the provider call, so a flow
	// cannot spam codes past the limit.
	count, err := m.otp.MarkOtpIssued(ctx, flowID)
	if err != nil {
		return err
	}
	if count > MaxOtpIssues {
		m.logger.Warn("OTP re-send limit reached",
			util.String("user_id", flow.UserID))
		return ErrOtpResendLimit
	}
	if err := m.provider.RequestCode(ctx, flow.Phone); err != nil {
		return err
	}
	now := time.Now().UTC()
	flow.OtpIssuedAt = &now
	return nil
}

func (m *Machine) saveFlow(ctx context.Context, flowID string, flow *models.PinLoginFlow) error {
	return m.flows.SetFlow(ctx, flowID, &models.PendingFlow{
		Kind:      models.FlowPinLogin,
		CreatedAt: time.Now().UTC(),
		PinLogin:  flow,
	})
}

func (m *Machine) loadFlow(ctx context.Context, flowID string) (*models.PinLoginFlow, error) {
	pending, err := m.flows.GetFlowOfKind(ctx, flowID, models.FlowPinLogin)
	if err != nil {
		return nil, err
	}
	return pending.PinLogin, nil
}

func (m *Machine) finishFlow(ctx context.Context, flowID string) error {
	if err := m.otp.ClearOtp(ctx, flowID); err != nil {
		return err
	}
	return m.flows.ClearFlow(ctx, flowID)
}

func validPin(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
