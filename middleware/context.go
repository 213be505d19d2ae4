package middleware

import (
	"context"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the verified principal
	PrincipalKey contextKey = "principal"

	// TokenErrorKey is the context key for a presented token that failed verification
	TokenErrorKey contextKey = "token_error"

	// RawBodyKey is the context key for the buffered request body
	RawBodyKey contextKey = "raw_body"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetPrincipalFromContext retrieves the authenticated principal, or nil for
// an anonymous request
func GetPrincipalFromContext(ctx context.Context) *models.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if principal, ok := val.(*models.Principal); ok {
			return principal
		}
	}
	return nil
}

// WithPrincipal attaches a principal to the context
func WithPrincipal(ctx context.Context, principal *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

// GetTokenErrorFromContext returns why a presented token was rejected
func GetTokenErrorFromContext(ctx context.Context) error {
	if val := ctx.Value(TokenErrorKey); val != nil {
		if err, ok := val.(error); ok {
			return err
		}
	}
	return nil
}

// WithTokenError records a token verification failure
func WithTokenError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, TokenErrorKey, err)
}

// GetRawBody returns the request body as received, or nil when there was none
func GetRawBody(ctx context.Context) []byte {
	if val := ctx.Value(RawBodyKey); val != nil {
		if body, ok := val.([]byte); ok {
			return body
		}
	}
	return nil
}

// WithRawBody stores the buffered request body
func WithRawBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, RawBodyKey, body)
}
