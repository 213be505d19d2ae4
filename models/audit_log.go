package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of authentication event being recorded
type AuditAction string

const (
	AuditActionLoginSucceeded AuditAction = "login_succeeded"
	AuditActionLoginFailed    AuditAction = "login_failed"
	AuditActionUserRegistered AuditAction = "user_registered"
	AuditActionOAuthSignIn    AuditAction = "oauth_sign_in"
	AuditActionOAuthRejected  AuditAction = "oauth_rejected"
	AuditActionRolesUpdated   AuditAction = "roles_updated"
	AuditActionLogout         AuditAction = "logout"
)

// AuditLog represents an authentication audit trail entry
type AuditLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	UserID       *int64          `json:"userId,omitempty" db:"user_id"` // Acting user, when known
	Action       AuditAction     `json:"action" db:"action"`
	TargetUserID *int64          `json:"targetUserId,omitempty" db:"target_user_id"`
	Provider     *string         `json:"provider,omitempty" db:"provider"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress    string          `json:"ipAddress" db:"ip_address"`
	UserAgent    string          `json:"userAgent" db:"user_agent"`
	RequestID    string          `json:"requestId" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "auth_audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithUser sets the acting user ID
func (a *AuditLog) WithUser(userID int64) *AuditLog {
	a.UserID = &userID
	return a
}

// WithTarget sets the user the action was applied to
func (a *AuditLog) WithTarget(userID int64) *AuditLog {
	a.TargetUserID = &userID
	return a
}

// WithProvider sets the OAuth provider name
func (a *AuditLog) WithProvider(provider string) *AuditLog {
	a.Provider = &provider
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
