package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/ratelimit"
	"go.uber.org/zap"
)

// RateLimiter counts requests per caller
type RateLimiter interface {
	Allow(ctx context.Context, key string) (*ratelimit.Result, error)
}

// RateLimit enforces the per-caller quota. The caller is the client IP as
// resolved by the RealIP stage.
//
// A failing counter store lets the request through.
func RateLimit(limiter RateLimiter, logger *zap.Logger) Stage {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		key := ClientIP(r)

		result, err := limiter.Allow(r.Context(), key)
		if err != nil {
			logger.Error("rate limit check failed",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.Error(err))
			return r, nil
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			seconds := int(math.Ceil(result.RetryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			h.Set("Retry-After", strconv.Itoa(seconds))

			logger.Warn("rate limit exceeded",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("client_ip", key))
			return nil, services.NewDomainError(services.ErrorTypeTooManyRequests, retryMessage(seconds), nil)
		}

		return r, nil
	}
}

func retryMessage(seconds int) string {
	if seconds == 1 {
		return "Too many requests from this IP, please try again in 1 second"
	}
	if seconds < 60 {
		return fmt.Sprintf("Too many requests from this IP, please try again in %d seconds", seconds)
	}
	minutes := (seconds + 59) / 60
	if minutes == 1 {
		return "Too many requests from this IP, please try again in 1 minute"
	}
	return fmt.Sprintf("Too many requests from this IP, please try again in %d minutes", minutes)
}

// ClientIP returns the caller address without its port
func ClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
