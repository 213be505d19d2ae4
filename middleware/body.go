package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
)

// DefaultMaxBodyBytes is the body ceiling when none is configured
const DefaultMaxBodyBytes = 10 << 20

// Body buffers the request body up to maxBytes so handlers can read it more
// than once. JSON bodies must parse.
func Body(maxBytes int64) Stage {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		if r.Body == nil || r.Body == http.NoBody {
			return r, nil
		}
		if r.ContentLength > maxBytes {
			return nil, payloadTooLarge(maxBytes)
		}

		data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
		_ = r.Body.Close()
		if err != nil {
			return nil, services.WrapError(services.ErrorTypeValidation, "Failed to read request body", err)
		}
		if int64(len(data)) > maxBytes {
			return nil, payloadTooLarge(maxBytes)
		}

		if isJSON(r) && len(bytes.TrimSpace(data)) > 0 && !json.Valid(data) {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "Malformed JSON body", nil)
		}

		next := r.WithContext(WithRawBody(r.Context(), data))
		next.Body = io.NopCloser(bytes.NewReader(data))
		next.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		}
		return next, nil
	}
}

func payloadTooLarge(maxBytes int64) error {
	return services.NewDomainError(services.ErrorTypePayloadTooLarge,
		fmt.Sprintf("Request body exceeds the %s limit", formatBytes(maxBytes)), nil)
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	case n == 1:
		return "1 byte"
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
