package models

import (
	"time"
)

// Connection represents a stored OAuth credential for a (tenant, provider)
// pair: the tokens obtained from the provider, the scopes it actually
// granted, and a minimal profile snapshot of the external account.
//
// Exactly one Connection per (tenant, provider) is active at a time; the
// store enforces this on upsert. An expired AccessToken is never handed to a
// caller without refreshing first.
type Connection struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	TenantID string `gorm:"not null;index:idx_connections_tenant_provider,priority:1"`
	Provider string `gorm:"not null;index:idx_connections_tenant_provider,priority:2"`

	// Token storage (sealed at rest, see util.Sealer)
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text"` // empty when provider issued none
	ExpiresAt    time.Time `gorm:"not null"`

	// GrantedScopes come from the provider's token response when present;
	// otherwise they fall back to the requested scopes (flagged in logs).
	GrantedScopes StringArray `gorm:"type:json"`

	// Profile snapshot from the provider (best effort; may be empty when the
	// profile fetch failed or the granted scopes did not permit it)
	ExternalProfileID    string
	ExternalProfileName  string
	ExternalProfileEmail string

	LastSyncAt time.Time
	IsActive   bool `gorm:"not null;default:true;index"`

	// RowVersion guards token replacement against a racing refresh or
	// disconnect on the same row (optimistic concurrency).
	RowVersion int64 `gorm:"not null;default:0"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name used by Connection to `connections`
func (Connection) TableName() string {
	return "connections"
}

// Expired reports whether the access token has passed its expiry at the
// given instant.
func (c *Connection) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// SecondsToExpiry returns the remaining access token lifetime in whole
// seconds, or 0 when already expired.
func (c *Connection) SecondsToExpiry(now time.Time) int64 {
	d := c.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(d.Seconds())
}
