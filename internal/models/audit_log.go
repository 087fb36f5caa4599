package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EventType represents the type of audit event
type EventType string

const (
	// Authorization flow events
	EventAuthorizationStarted  EventType = "AUTHORIZATION_STARTED"
	EventCallbackAccepted      EventType = "CALLBACK_ACCEPTED"
	EventCallbackRejected      EventType = "CALLBACK_REJECTED"
	EventCodeExchanged         EventType = "CODE_EXCHANGED"
	EventProfileFetchFailed    EventType = "PROFILE_FETCH_FAILED"
	EventConnectionEstablished EventType = "CONNECTION_ESTABLISHED"

	// Token lifecycle events
	EventTokenRefreshed     EventType = "TOKEN_REFRESHED"
	EventTokenRefreshFailed EventType = "TOKEN_REFRESH_FAILED"
	EventConnectionRevoked  EventType = "CONNECTION_REVOKED"

	// Admin operations
	EventAppConfigured EventType = "APP_CONFIGURED"

	// Security events
	EventRateLimitExceeded EventType = "RATE_LIMIT_EXCEEDED"
	EventStateReplayed     EventType = "STATE_REPLAYED"
)

// EventSeverity represents the severity level of an audit event
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "INFO"
	SeverityWarning  EventSeverity = "WARNING"
	SeverityError    EventSeverity = "ERROR"
	SeverityCritical EventSeverity = "CRITICAL"
)

// AuditDetails stores additional event-specific information as JSON
type AuditDetails map[string]any

// Value implements the driver.Valuer interface for database storage
func (a AuditDetails) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil //nolint:nilnil // nil driver.Value represents SQL NULL, which is valid here
	}
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface for database retrieval
func (a *AuditDetails) Scan(value any) error {
	if value == nil {
		*a = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal AuditDetails value: %v", value)
	}

	result := make(AuditDetails)
	if err := json.Unmarshal(bytes, &result); err != nil {
		return err
	}

	*a = result
	return nil
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID string `gorm:"primaryKey;type:varchar(36)" json:"id"`

	// Event information
	EventType EventType     `gorm:"type:varchar(50);index;not null" json:"event_type"`
	EventTime time.Time     `gorm:"index;not null"                  json:"event_time"`
	Severity  EventSeverity `gorm:"type:varchar(20);not null"       json:"severity"`

	// Subject information
	TenantID string `gorm:"type:varchar(100);index" json:"tenant_id"`
	Provider string `gorm:"type:varchar(50);index"  json:"provider"`
	ActorIP  string `gorm:"type:varchar(45)"        json:"actor_ip"` // Support IPv6

	// Operation details
	Action       string       `gorm:"type:varchar(255);not null" json:"action"`
	Details      AuditDetails `gorm:"type:json"                  json:"details"`
	Success      bool         `gorm:"index;not null"             json:"success"`
	ErrorMessage string       `gorm:"type:text"                  json:"error_message,omitempty"`

	// Timestamps (no UpdatedAt - immutable logs)
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "audit_logs"
}
