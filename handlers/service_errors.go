package handlers

import (
	"errors"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coinkrazygaming/coinkrazy2-sub002/middleware"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coinkrazygaming/coinkrazy2-sub002/utils"
	"go.uber.org/zap"
)

// Fixed client messages. Token and credential failures never say which
// check failed.
const (
	messageInvalidToken       = "Invalid or expired token"
	messageInvalidCredentials = "Invalid credentials"
	messageUnknownSession     = "Sign-in session expired or invalid"
	messageUnauthenticated    = "Authentication required"
	messageValidationFailed   = "Validation failed"
	messageInternal           = "Internal server error"
)

// ErrorMapper turns errors raised by stages and handlers into responses
type ErrorMapper struct {
	production bool
	logger     *zap.Logger
}

// NewErrorMapper creates the terminal error handler. Outside production the
// response also carries the underlying error text.
func NewErrorMapper(production bool, logger *zap.Logger) *ErrorMapper {
	return &ErrorMapper{
		production: production,
		logger:     logger,
	}
}

// Handle implements middleware.ErrorHandler
func (m *ErrorMapper) Handle(w http.ResponseWriter, r *http.Request, err error) {
	HandleServiceError(w, r, err, m.production, m.logger)
}

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, r *http.Request, err error, production bool, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, response := mapError(err)
	if !production {
		response.Error = err.Error()
	}

	fields := []zap.Field{
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Int("status", status),
		zap.String("error_type", string(services.GetErrorType(err))),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", fields...)
	} else {
		logger.Debug("request rejected", fields...)
	}

	if writeErr := utils.WriteJSON(w, status, response); writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

func mapError(err error) (int, utils.ErrorResponse) {
	if fields := utils.GetValidationFields(err); fields != nil {
		details := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			details[k] = v
		}
		return http.StatusBadRequest, utils.ErrorResponse{Message: messageValidationFailed, Details: details}
	}

	var validationErr *utils.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, utils.ErrorResponse{Message: validationErr.Message}
	}

	details := services.GetErrorDetails(err)
	if len(details) == 0 {
		details = nil
	}

	switch services.GetErrorType(err) {
	case services.ErrorTypeInvalidSignature, services.ErrorTypeExpired:
		return http.StatusUnauthorized, utils.ErrorResponse{Message: messageInvalidToken}
	case services.ErrorTypeBadCredentials:
		return http.StatusUnauthorized, utils.ErrorResponse{Message: messageInvalidCredentials}
	case services.ErrorTypeUnauthenticated:
		return http.StatusUnauthorized, utils.ErrorResponse{Message: domainMessage(err, messageUnauthenticated)}
	case services.ErrorTypeInsufficientPrivilege:
		return http.StatusForbidden, utils.ErrorResponse{Message: domainMessage(err, "Insufficient privileges")}
	case services.ErrorTypeNotFound:
		return http.StatusNotFound, utils.ErrorResponse{Message: domainMessage(err, "Resource not found")}
	case services.ErrorTypeProviderMismatch:
		return http.StatusConflict, utils.ErrorResponse{Message: domainMessage(err, "Provider account is linked to another user")}
	case services.ErrorTypeConflict:
		return http.StatusConflict, utils.ErrorResponse{Message: domainMessage(err, "Conflict"), Details: details}
	case services.ErrorTypeUnknownSession:
		return http.StatusBadRequest, utils.ErrorResponse{Message: messageUnknownSession}
	case services.ErrorTypeValidation:
		return http.StatusBadRequest, utils.ErrorResponse{Message: domainMessage(err, messageValidationFailed), Details: details}
	case services.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests, utils.ErrorResponse{Message: domainMessage(err, "Too many requests, please try again later")}
	case services.ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge, utils.ErrorResponse{Message: domainMessage(err, "Request body too large")}
	default:
		return http.StatusInternalServerError, utils.ErrorResponse{Message: messageInternal}
	}
}

// domainMessage returns the outermost domain error message as a sentence
func domainMessage(err error, fallback string) string {
	var domainErr *services.DomainError
	if !errors.As(err, &domainErr) || domainErr.Message == "" {
		return fallback
	}
	return sentence(domainErr.Message)
}

func sentence(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.TrimSuffix(s[size:], ".")
}
