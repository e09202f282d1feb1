package models

import "time"

// Migration status of a temporary identity.
const (
	MigrationNone     = "none"
	MigrationUpgraded = "upgraded"
)

// TemporaryUser is an ephemeral guest identity. Its id is derived
// deterministically from the magic-link token hash, so repeat visits and
// concurrent requests converge on the same record instead of creating
// duplicates.
type TemporaryUser struct {
	TempUserID      string     `db:"temp_user_id"`
	TokenHash       string     `db:"token_hash"`
	DisplayName     string     `db:"display_name"`
	Phone           string     `db:"phone"`
	ReservationIDs  []string   `db:"reservation_ids"`
	AccessDisabled  bool       `db:"access_disabled"`
	MigrationStatus string     `db:"migration_status"`
	UpgradedUserID  string     `db:"upgraded_user_id"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at"`
}

// HasName reports whether a human supplied a display name, which is what
// lets a returning visit skip name collection.
func (t *TemporaryUser) HasName() bool {
	return t.DisplayName != ""
}

// IsUpgraded reports whether this identity was migrated to a durable account.
func (t *TemporaryUser) IsUpgraded() bool {
	return t.MigrationStatus == MigrationUpgraded && t.UpgradedUserID != ""
}
