package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/coinkrazygaming/coinkrazy2-sub002/middleware"
	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/repositories"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/audit"
	"github.com/coinkrazygaming/coinkrazy2-sub002/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// RoleAuditor records privilege changes
type RoleAuditor interface {
	LogRolesUpdated(ctx context.Context, actorID int64, target *models.User, meta audit.RequestMeta) error
}

// UserHandler serves the staff and admin user-management routes
type UserHandler struct {
	users   repositories.UserRepository
	auditor RoleAuditor
	logger  *zap.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repositories.UserRepository, auditor RoleAuditor, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		users:   users,
		auditor: auditor,
		logger:  logger,
	}
}

// UpdateRolesRequest sets one or both privilege flags
type UpdateRolesRequest struct {
	IsAdmin *bool `json:"isAdmin"`
	IsStaff *bool `json:"isStaff"`
}

// HandleGet handles GET /api/staff/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) error {
	id, err := userIDParam(r)
	if err != nil {
		return err
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		return err
	}
	return utils.WriteOK(w, map[string]interface{}{"user": user})
}

// HandleList handles GET /api/admin/users
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) error {
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		return services.WrapInternal("failed to list users", err)
	}
	if users == nil {
		users = []*models.User{}
	}

	return utils.WriteOK(w, map[string]interface{}{
		"users":  users,
		"limit":  limit,
		"offset": offset,
	})
}

// HandleUpdateRoles handles PATCH /api/admin/users/{id}/roles
func (h *UserHandler) HandleUpdateRoles(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	actor := middleware.GetPrincipalFromContext(ctx)
	if actor == nil {
		return services.ErrUnauthenticated
	}

	id, err := userIDParam(r)
	if err != nil {
		return err
	}

	var req UpdateRolesRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		return err
	}
	if req.IsAdmin == nil && req.IsStaff == nil {
		return services.NewDomainError(services.ErrorTypeValidation, "isAdmin or isStaff is required", nil)
	}
	if id == actor.ID && req.IsAdmin != nil && !*req.IsAdmin {
		return services.NewDomainError(services.ErrorTypeValidation, "cannot revoke your own admin role", nil)
	}

	user, err := h.applyRoles(ctx, id, req)
	if err != nil {
		return err
	}

	h.logger.Info("user roles updated",
		zap.Int64("actor_id", actor.ID),
		zap.Int64("user_id", user.ID),
		zap.Bool("is_admin", user.IsAdmin),
		zap.Bool("is_staff", user.IsStaff))
	if err := h.auditor.LogRolesUpdated(ctx, actor.ID, user, RequestMeta(r)); err != nil {
		h.logger.Warn("failed to queue audit event", zap.Error(err))
	}

	return utils.WriteOK(w, map[string]interface{}{"user": user})
}

// applyRoles keeps the current value of any flag the request leaves out
func (h *UserHandler) applyRoles(ctx context.Context, id int64, req UpdateRolesRequest) (*models.User, error) {
	current, err := h.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	isAdmin, isStaff := current.IsAdmin, current.IsStaff
	if req.IsAdmin != nil {
		isAdmin = *req.IsAdmin
	}
	if req.IsStaff != nil {
		isStaff = *req.IsStaff
	}

	return h.users.UpdateRoles(ctx, id, isAdmin, isStaff)
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, services.NewDomainError(services.ErrorTypeValidation, "invalid user id", err)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, services.NewDomainError(services.ErrorTypeValidation, "invalid "+name, err)
	}
	return n, nil
}

// RequestMeta collects the request attributes recorded with audit events
func RequestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
