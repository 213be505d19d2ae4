package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingErrorHandler captures the error handed to the terminal handler
type recordingErrorHandler struct {
	errs []error
}

func (h *recordingErrorHandler) handle(w http.ResponseWriter, r *http.Request, err error) {
	h.errs = append(h.errs, err)
	w.WriteHeader(http.StatusTeapot)
}

func passStage(calls *[]string, name string) Stage {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		*calls = append(*calls, name)
		return r, nil
	}
}

func okHandler(calls *[]string) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		*calls = append(*calls, "handler")
		w.WriteHeader(http.StatusOK)
		return nil
	}
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var calls []string
	onError := &recordingErrorHandler{}
	p := NewPipeline(onError.handle, zap.NewNop(), passStage(&calls, "first"), passStage(&calls, "second"))

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, okHandler(&calls)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"first", "second", "handler"}, calls)
	assert.Empty(t, onError.errs)
}

func TestPipeline_StageErrorStopsChain(t *testing.T) {
	var calls []string
	onError := &recordingErrorHandler{}
	rejecting := func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		calls = append(calls, "reject")
		return nil, services.ErrTooManyRequests
	}
	p := NewPipeline(onError.handle, zap.NewNop(), passStage(&calls, "first"), rejecting, passStage(&calls, "never"))

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, okHandler(&calls)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, []string{"first", "reject"}, calls)
	require.Len(t, onError.errs, 1)
	assert.ErrorIs(t, onError.errs[0], services.ErrTooManyRequests)
}

func TestPipeline_StageWritesResponse(t *testing.T) {
	var calls []string
	onError := &recordingErrorHandler{}
	answering := func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		w.WriteHeader(http.StatusNoContent)
		return nil, nil
	}
	p := NewPipeline(onError.handle, zap.NewNop(), answering)

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, okHandler(&calls)).ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, calls)
	assert.Empty(t, onError.errs)
}

func TestPipeline_HandlerError(t *testing.T) {
	onError := &recordingErrorHandler{}
	p := NewPipeline(onError.handle, zap.NewNop())
	handlerErr := errors.New("boom")

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, func(w http.ResponseWriter, r *http.Request) error {
		return handlerErr
	}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	require.Len(t, onError.errs, 1)
	assert.Equal(t, handlerErr, onError.errs[0])
}

func TestPipeline_HandlerPanic(t *testing.T) {
	onError := &recordingErrorHandler{}
	p := NewPipeline(onError.handle, zap.NewNop())

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, func(w http.ResponseWriter, r *http.Request) error {
		panic("unexpected")
	}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	require.Len(t, onError.errs, 1)
	assert.Contains(t, onError.errs[0].Error(), "unexpected")
}

func TestPipeline_ErrorAfterWriteIsNotReported(t *testing.T) {
	onError := &recordingErrorHandler{}
	p := NewPipeline(onError.handle, zap.NewNop())

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return errors.New("late failure")
	}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, onError.errs)
}

func TestPipeline_CancelledRequestStops(t *testing.T) {
	var calls []string
	onError := &recordingErrorHandler{}
	p := NewPipeline(onError.handle, zap.NewNop(), passStage(&calls, "first"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx)

	w := httptest.NewRecorder()
	p.Route(models.TierPublic, okHandler(&calls)).ServeHTTP(w, req)

	assert.Empty(t, calls)
	assert.Empty(t, onError.errs)
}

func TestPipeline_RouteEnforcesTier(t *testing.T) {
	tests := []struct {
		name      string
		principal *models.Principal
		tier      models.Tier
		wantErr   error
	}{
		{name: "anonymous on public", tier: models.TierPublic},
		{name: "anonymous on user", tier: models.TierUser, wantErr: services.ErrUnauthenticated},
		{name: "user on staff", principal: &models.Principal{ID: 1}, tier: models.TierStaff, wantErr: services.ErrInsufficientPrivilege},
		{name: "staff on staff", principal: &models.Principal{ID: 1, IsStaff: true}, tier: models.TierStaff},
		{name: "admin on staff", principal: &models.Principal{ID: 1, IsAdmin: true}, tier: models.TierStaff},
		{name: "staff on admin", principal: &models.Principal{ID: 1, IsStaff: true}, tier: models.TierAdmin, wantErr: services.ErrInsufficientPrivilege},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			onError := &recordingErrorHandler{}
			attach := func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
				if tt.principal == nil {
					return r, nil
				}
				return r.WithContext(WithPrincipal(r.Context(), tt.principal)), nil
			}
			p := NewPipeline(onError.handle, zap.NewNop(), attach)

			w := httptest.NewRecorder()
			p.Route(tt.tier, okHandler(&calls)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if tt.wantErr == nil {
				assert.Equal(t, []string{"handler"}, calls)
				assert.Empty(t, onError.errs)
				return
			}
			assert.Empty(t, calls)
			require.Len(t, onError.errs, 1)
			assert.ErrorIs(t, onError.errs[0], tt.wantErr)
		})
	}
}
