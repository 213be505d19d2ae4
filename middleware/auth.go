package middleware

import (
	"net/http"
	"strings"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"go.uber.org/zap"
)

// AuthTokenCookie holds the token for browser clients. The Authorization
// header takes precedence when both are present.
const AuthTokenCookie = "auth_token"

// TokenVerifier turns a presented token into a principal
type TokenVerifier interface {
	Verify(token string) (*models.Principal, error)
}

// AttachPrincipal verifies a presented token and attaches its principal.
// It never rejects: an invalid token leaves the request anonymous and the
// failure is recorded for access enforcement to report.
func AttachPrincipal(verifier TokenVerifier, logger *zap.Logger) Stage {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		token := extractToken(r)
		if token == "" {
			return r, nil
		}

		ctx := r.Context()
		principal, err := verifier.Verify(token)
		if err != nil {
			logger.Debug("token verification failed",
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.Error(err))
			return r.WithContext(WithTokenError(ctx, err)), nil
		}

		return r.WithContext(WithPrincipal(ctx, principal)), nil
	}
}

func extractToken(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(AuthTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
