package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/services/audit"
	"github.com/coinkrazygaming/coinkrazy2-sub002/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string            `json:"status"`
	Timestamp   string            `json:"timestamp"`
	Environment string            `json:"environment"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// AuditStatus reports the audit writer queue
type AuditStatus interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db          *sql.DB
	audit       AuditStatus
	environment string
	now         func() time.Time
	logger      *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db may be nil.
func NewHealthHandler(db *sql.DB, environment string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:          db,
		environment: environment,
		now:         time.Now,
		logger:      logger,
	}
}

// WithAudit adds the audit writer to the readiness checks
func (h *HealthHandler) WithAudit(status AuditStatus) *HealthHandler {
	h.audit = status
	return h
}

// HandleHealth handles GET /health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) error {
	return utils.WriteOK(w, HealthResponse{
		Status:      "ok",
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Environment: h.environment,
	})
}

// HandleReadiness handles GET /health/ready
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ok"
	httpStatus := http.StatusOK

	if err := h.checkDatabase(ctx); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		status = "unavailable"
		httpStatus = http.StatusServiceUnavailable
	} else if h.db != nil {
		checks["database"] = "healthy"
	}

	if h.audit != nil {
		stats := h.audit.GetStats()
		switch {
		case !stats.Started:
			h.logger.Warn("audit service not running")
			checks["audit"] = "stopped"
			status = "unavailable"
			httpStatus = http.StatusServiceUnavailable
		case stats.PendingEvents >= stats.BufferSize:
			// Still ready; new events are being dropped until the writers catch up
			h.logger.Warn("audit buffer full", zap.Int("pending_events", stats.PendingEvents))
			checks["audit"] = "backlogged"
		default:
			checks["audit"] = "healthy"
		}
	}

	return utils.WriteJSON(w, httpStatus, HealthResponse{
		Status:      status,
		Timestamp:   h.now().UTC().Format(time.RFC3339),
		Environment: h.environment,
		Checks:      checks,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if h.db == nil {
		return nil
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
