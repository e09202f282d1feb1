package verification

import "errors"

// The guest-facing error taxonomy. Persistence and provider failures are
// translated into one of these at the boundary; raw errors never reach
// presentation logic.
var (
	// ErrLinkNotFound: no scheme matched the token hash. Terminal per token.
	ErrLinkNotFound = errors.New("magic link not found")

	// ErrSecretMismatch: the 4-digit fragment matched nothing. Retryable
	// while attempts remain.
	ErrSecretMismatch = errors.New("secret mismatch")

	// ErrTooManyAttempts: the token is permanently locked; the guest has
	// to contact the host out of band.
	ErrTooManyAttempts = errors.New("too many verification attempts")

	// ErrProviderTokenInvalid: the strong-verification token failed.
	// Retryable.
	ErrProviderTokenInvalid = errors.New("provider token invalid")

	// ErrProviderIdentityMismatch: the provider asserted a different
	// credential than the one the user claimed to verify. Retryable,
	// logged as suspicious.
	ErrProviderIdentityMismatch = errors.New("provider identity mismatch")

	// ErrUpgradeWriteFailure: a merge/write failed mid-upgrade. Fatal for
	// this attempt; the temporary identity remains usable.
	ErrUpgradeWriteFailure = errors.New("upgrade write failure")
)
