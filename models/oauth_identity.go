package models

import "time"

// OAuthIdentity links a third-party account to a local user
type OAuthIdentity struct {
	Provider       string    `json:"provider" db:"provider"`
	ProviderUserID string    `json:"providerUserId" db:"provider_user_id"`
	UserID         int64     `json:"userId" db:"user_id"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// TableName returns the table name for the OAuthIdentity model
func (OAuthIdentity) TableName() string {
	return "oauth_identities"
}

// OAuthProfile is what a provider tells us about the signed-in account
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	DisplayName    string

	// LinkUserID names the local user the flow was started for, if any.
	LinkUserID *int64
}

// ProviderResult is the outcome of a provider code exchange
type ProviderResult struct {
	Provider string
	Nonce    string // Echoed nonce from an ID token; empty for plain OAuth2 providers
	Profile  OAuthProfile

	// NonceExpected is set by providers that send a nonce in the
	// authorization request. An empty Nonce is then a failed check.
	NonceExpected bool
}
