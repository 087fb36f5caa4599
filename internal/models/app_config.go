package models

import (
	"time"
)

// AppConfig holds the OAuth application registration for a provider within a
// tenant: the client credentials issued by the provider plus the redirect URI
// and default scope set used when starting an authorization flow.
//
// At most one AppConfig per (tenant, provider) is active at a time. The store
// enforces this by deactivating the prior row inside the configure
// transaction; rows are never deleted implicitly.
type AppConfig struct {
	ID       string `gorm:"primaryKey;type:varchar(36)"`
	TenantID string `gorm:"not null;index:idx_app_configs_tenant_provider,priority:1"`
	Provider string `gorm:"not null;index:idx_app_configs_tenant_provider,priority:2"` // "google", "github", "linkedin", ...

	ClientID     string      `gorm:"not null"`
	ClientSecret string      `gorm:"type:text;not null"` // sealed at rest, see util.Sealer
	RedirectURI  string      `gorm:"not null"`
	Scopes       StringArray `gorm:"type:json"` // default scopes requested at initiation

	IsActive  bool `gorm:"not null;default:true;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name used by AppConfig to `app_configs`
func (AppConfig) TableName() string {
	return "app_configs"
}
