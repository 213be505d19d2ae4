package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLength = 64

// RequestID tags the request with an ID, reusing a sane inbound one
func RequestID() Stage {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		return r.WithContext(WithRequestID(r.Context(), requestID)), nil
	}
}
