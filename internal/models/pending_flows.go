package models

import (
	"errors"
	"time"
)

// FlowKind tags the single in-flight flow a browser session may hold.
type FlowKind string

const (
	FlowPinLogin        FlowKind = "pin_login"
	FlowSignup          FlowKind = "signup"
	FlowOtpUpgrade      FlowKind = "otp_upgrade"
	FlowAccountCreation FlowKind = "account_creation"
)

var ErrFlowKindMismatch = errors.New("pending flow kind mismatch")

// PendingFlow is a tagged union stored under one key per browser session,
// so starting a new flow replaces the old one and two flows can never be
// in flight at once. Exactly one variant pointer is non-nil and it must
// agree with Kind.
type PendingFlow struct {
	Kind      FlowKind  `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`

	PinLogin        *PinLoginFlow        `json:"pinLogin,omitempty"`
	Signup          *SignupFlow          `json:"signup,omitempty"`
	OtpUpgrade      *OtpUpgradeFlow      `json:"otpUpgrade,omitempty"`
	AccountCreation *AccountCreationFlow `json:"accountCreation,omitempty"`
}

// PinLoginFlow carries the state of a phone → PIN → OTP login.
type PinLoginFlow struct {
	State       string     `json:"state"`
	Phone       string     `json:"phone"`
	UserID      string     `json:"userId"`
	PinAttempts int        `json:"pinAttempts"`
	OtpIssuedAt *time.Time `json:"otpIssuedAt,omitempty"`
}

// SignupFlow carries a weak-secret match that is collecting name/phone.
// While a match is still ambiguous only TokenHash and Fragment are set;
// selection fills in the rest.
type SignupFlow struct {
	TokenHash     string `json:"tokenHash"`
	TempUserID    string `json:"tempUserId,omitempty"`
	ReservationID string `json:"reservationId,omitempty"`
	Fragment      string `json:"fragment,omitempty"`
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// OtpUpgradeFlow carries a temporary identity awaiting strong verification.
// ReservationID preserves the reservation pinned during the weak-secret
// match; the upgrade prefers it over a fresh phone lookup so cross-phone
// verification attaches the right stay.
type OtpUpgradeFlow struct {
	TokenHash     string `json:"tokenHash"`
	TempUserID    string `json:"tempUserId"`
	ReservationID string `json:"reservationId"`
	ClaimedPhone  string `json:"claimedPhone,omitempty"`
	ClaimedEmail  string `json:"claimedEmail,omitempty"`
}

// AccountCreationFlow carries a confirmed migrated-user login that still
// has to finish strong verification against the permanent account.
type AccountCreationFlow struct {
	TokenHash     string `json:"tokenHash"`
	TargetUserID  string `json:"targetUserId"`
	ClaimedPhone  string `json:"claimedPhone"`
	ReservationID string `json:"reservationId,omitempty"`
}

// Validate verifies the tag agrees with the populated variant.
func (f *PendingFlow) Validate() error {
	switch f.Kind {
	case FlowPinLogin:
		if f.PinLogin == nil {
			return ErrFlowKindMismatch
		}
	case FlowSignup:
		if f.Signup == nil {
			return ErrFlowKindMismatch
		}
	case FlowOtpUpgrade:
		if f.OtpUpgrade == nil {
			return ErrFlowKindMismatch
		}
	case FlowAccountCreation:
		if f.AccountCreation == nil {
			return ErrFlowKindMismatch
		}
	default:
		return ErrFlowKindMismatch
	}
	return nil
}
