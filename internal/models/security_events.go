package models

import (
	"net"
	"time"
)

// Security event types recorded by the guest access flow.
const (
	EventSecretMismatch           = "secret_mismatch"
	EventTokenLocked              = "token_locked"
	EventProviderIdentityMismatch = "provider_identity_mismatch"
	EventAccountMerged            = "account_merged"
	EventSessionIssued            = "session_issued"
)

type SecurityEvent struct {
	EventTime   time.Time `db:"event_time"`
	EventType   string    `db:"event_type"`
	TokenHash   string    `db:"token_hash"`
	UserID      string    `db:"user_id"`
	Fingerprint string    `db:"fingerprint"`
	IPAddress   net.IP    `db:"ip_address"`
	RiskScore   int       `db:"risk_score"`
	Details     string    `db:"details"`
}
