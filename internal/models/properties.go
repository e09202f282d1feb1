package models

import "time"

// Property is a host-managed rental unit that magic links can be scoped to.
type Property struct {
	PropertyID string    `db:"property_id"`
	Name       string    `db:"name"`
	HostID     string    `db:"host_id"`
	CreatedAt  time.Time `db:"created_at"`
}
