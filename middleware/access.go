package middleware

import (
	"net/http"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/access"
)

// RequireTier rejects callers below tier. An anonymous caller who presented
// a bad token gets the token failure rather than a bare unauthenticated.
func RequireTier(tier models.Tier) Stage {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		decision := access.Authorize(GetPrincipalFromContext(r.Context()), tier)
		if decision.Allowed {
			return r, nil
		}

		if decision.Reason == access.ReasonUnauthenticated {
			if tokenErr := GetTokenErrorFromContext(r.Context()); tokenErr != nil {
				return nil, tokenErr
			}
		}
		return nil, decision.Err()
	}
}
