package models

import "time"

// Handshake is the server-held state of one pending OAuth sign-in.
// It is removed when the flow completes or expires.
type Handshake struct {
	Key        string    `json:"key" db:"key"`
	Provider   string    `json:"provider" db:"provider"`
	Nonce      string    `json:"nonce" db:"nonce"`
	LinkUserID *int64    `json:"linkUserId,omitempty" db:"link_user_id"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"`
	ExpiresAt  time.Time `json:"expiresAt" db:"expires_at"`
}

// TableName returns the table name for the Handshake model
func (Handshake) TableName() string {
	return "oauth_handshakes"
}

// IsExpired reports whether the handshake is past its deadline at now
func (h *Handshake) IsExpired(now time.Time) bool {
	return !now.Before(h.ExpiresAt)
}
