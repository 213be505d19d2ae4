package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coinkrazygaming/coinkrazy2-sub002/middleware"
	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/audit"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	args := m.Called(ctx, limit, offset)
	if users := args.Get(0); users != nil {
		return users.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockUserRepository) UpdateRoles(ctx context.Context, id int64, isAdmin, isStaff bool) (*models.User, error) {
	args := m.Called(ctx, id, isAdmin, isStaff)
	if user := args.Get(0); user != nil {
		return user.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockRoleAuditor is a mock implementation of RoleAuditor
type MockRoleAuditor struct {
	mock.Mock
}

func (m *MockRoleAuditor) LogRolesUpdated(ctx context.Context, actorID int64, target *models.User, meta audit.RequestMeta) error {
	args := m.Called(ctx, actorID, target, meta)
	return args.Error(0)
}

var adminPrincipal = &models.Principal{ID: 1, Username: "root", IsAdmin: true}

// newUserRequest builds a request carrying the chi id param and an optional principal
func newUserRequest(method, target, id, body string, principal *models.Principal) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	if id != "" {
		rctx.URLParams.Add("id", id)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	if principal != nil {
		ctx = middleware.WithPrincipal(ctx, principal)
	}
	return req.WithContext(ctx)
}

func TestUserHandler_HandleGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetByID", mock.Anything, int64(7)).Return(&models.User{ID: 7, Username: "alice"}, nil)
		handler := NewUserHandler(users, new(MockRoleAuditor), zap.NewNop())

		w := httptest.NewRecorder()
		require.NoError(t, handler.HandleGet(w, newUserRequest(http.MethodGet, "/api/staff/users/7", "7", "", nil)))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]models.User
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "alice", response["user"].Username)
	})

	t.Run("not found", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetByID", mock.Anything, int64(8)).Return(nil, services.ErrUserNotFound)
		handler := NewUserHandler(users, new(MockRoleAuditor), zap.NewNop())

		err := handler.HandleGet(httptest.NewRecorder(), newUserRequest(http.MethodGet, "/api/staff/users/8", "8", "", nil))
		assert.True(t, services.IsNotFoundError(err))
	})

	t.Run("invalid id", func(t *testing.T) {
		handler := NewUserHandler(new(MockUserRepository), new(MockRoleAuditor), zap.NewNop())

		err := handler.HandleGet(httptest.NewRecorder(), newUserRequest(http.MethodGet, "/api/staff/users/abc", "abc", "", nil))
		assert.True(t, services.IsValidationError(err))
	})
}

func TestUserHandler_HandleList(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedLimit  int
		expectedOffset int
	}{
		{name: "defaults", query: "", expectedLimit: 50, expectedOffset: 0},
		{name: "explicit", query: "?limit=10&offset=20", expectedLimit: 10, expectedOffset: 20},
		{name: "limit above max", query: "?limit=1000", expectedLimit: 50, expectedOffset: 0},
		{name: "negative offset", query: "?offset=-5", expectedLimit: 50, expectedOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(MockUserRepository)
			users.On("List", mock.Anything, tt.expectedLimit, tt.expectedOffset).Return([]*models.User{{ID: 1}}, nil)
			handler := NewUserHandler(users, new(MockRoleAuditor), zap.NewNop())

			w := httptest.NewRecorder()
			require.NoError(t, handler.HandleList(w, newUserRequest(http.MethodGet, "/api/admin/users"+tt.query, "", "", nil)))

			assert.Equal(t, http.StatusOK, w.Code)
			users.AssertExpectations(t)
		})
	}

	t.Run("non numeric limit", func(t *testing.T) {
		handler := NewUserHandler(new(MockUserRepository), new(MockRoleAuditor), zap.NewNop())

		err := handler.HandleList(httptest.NewRecorder(), newUserRequest(http.MethodGet, "/api/admin/users?limit=x", "", "", nil))
		assert.True(t, services.IsValidationError(err))
	})
}

func TestUserHandler_HandleUpdateRoles(t *testing.T) {
	t.Run("grants staff and keeps admin flag", func(t *testing.T) {
		users := new(MockUserRepository)
		auditor := new(MockRoleAuditor)
		target := &models.User{ID: 7, Username: "alice", IsAdmin: false, IsStaff: false}
		updated := &models.User{ID: 7, Username: "alice", IsAdmin: false, IsStaff: true}
		users.On("GetByID", mock.Anything, int64(7)).Return(target, nil)
		users.On("UpdateRoles", mock.Anything, int64(7), false, true).Return(updated, nil)
		auditor.On("LogRolesUpdated", mock.Anything, int64(1), updated, mock.Anything).Return(nil)
		handler := NewUserHandler(users, auditor, zap.NewNop())

		w := httptest.NewRecorder()
		req := newUserRequest(http.MethodPatch, "/api/admin/users/7/roles", "7", `{"isStaff":true}`, adminPrincipal)
		require.NoError(t, handler.HandleUpdateRoles(w, req))

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]models.User
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.True(t, response["user"].IsStaff)
		users.AssertExpectations(t)
		auditor.AssertExpectations(t)
	})

	t.Run("cannot revoke own admin", func(t *testing.T) {
		users := new(MockUserRepository)
		handler := NewUserHandler(users, new(MockRoleAuditor), zap.NewNop())

		req := newUserRequest(http.MethodPatch, "/api/admin/users/1/roles", "1", `{"isAdmin":false}`, adminPrincipal)
		err := handler.HandleUpdateRoles(httptest.NewRecorder(), req)

		assert.True(t, services.IsValidationError(err))
		users.AssertNotCalled(t, "UpdateRoles", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty change", func(t *testing.T) {
		handler := NewUserHandler(new(MockUserRepository), new(MockRoleAuditor), zap.NewNop())

		req := newUserRequest(http.MethodPatch, "/api/admin/users/7/roles", "7", `{}`, adminPrincipal)
		err := handler.HandleUpdateRoles(httptest.NewRecorder(), req)

		assert.True(t, services.IsValidationError(err))
	})

	t.Run("target missing", func(t *testing.T) {
		users := new(MockUserRepository)
		users.On("GetByID", mock.Anything, int64(9)).Return(nil, services.ErrUserNotFound)
		handler := NewUserHandler(users, new(MockRoleAuditor), zap.NewNop())

		req := newUserRequest(http.MethodPatch, "/api/admin/users/9/roles", "9", `{"isAdmin":true}`, adminPrincipal)
		err := handler.HandleUpdateRoles(httptest.NewRecorder(), req)

		assert.True(t, services.IsNotFoundError(err))
	})

	t.Run("no principal", func(t *testing.T) {
		handler := NewUserHandler(new(MockUserRepository), new(MockRoleAuditor), zap.NewNop())

		req := newUserRequest(http.MethodPatch, "/api/admin/users/7/roles", "7", `{"isAdmin":true}`, nil)
		err := handler.HandleUpdateRoles(httptest.NewRecorder(), req)

		assert.ErrorIs(t, err, services.ErrUnauthenticated)
	})
}
