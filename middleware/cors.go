package middleware

import (
	"net/http"
	"strings"

	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/go-chi/cors"
)

// CORS applies the origin allow-list. Preflight requests are answered here.
// A credentialed request from an origin outside the list is refused outright
// instead of merely lacking CORS headers.
func CORS(allowedOrigins []string) Stage {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = struct{}{}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		origin := r.Header.Get("Origin")
		if origin != "" && carriesCredentials(r) {
			if _, ok := allowed[origin]; !ok {
				return nil, services.NewDomainError(services.ErrorTypeInsufficientPrivilege, "Origin not allowed", nil)
			}
		}

		var next *http.Request
		c.Handler(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			next = r
		})).ServeHTTP(w, r)

		// nil when the preflight was answered
		return next, nil
	}
}

func carriesCredentials(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" || r.Header.Get("Cookie") != ""
}
