package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"go.uber.org/zap"
)

// Stage is one step of request processing.
//
// Returning a request continues with it. Returning (nil, nil) means the stage
// already wrote the response. Returning an error hands the request to the
// pipeline's error handler.
type Stage func(w http.ResponseWriter, r *http.Request) (*http.Request, error)

// HandlerFunc is a route handler that reports failures instead of writing them
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler writes the response for an error raised by a stage or handler
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Pipeline runs an ordered list of stages in front of every route
type Pipeline struct {
	stages  []Stage
	onError ErrorHandler
	logger  *zap.Logger
}

// NewPipeline creates a pipeline with the global stages in order
func NewPipeline(onError ErrorHandler, logger *zap.Logger, stages ...Stage) *Pipeline {
	return &Pipeline{
		stages:  stages,
		onError: onError,
		logger:  logger,
	}
}

// Route builds the handler for one route. Access enforcement for tier runs
// after the global stages.
func (p *Pipeline) Route(tier models.Tier, handler HandlerFunc) http.Handler {
	stages := make([]Stage, 0, len(p.stages)+1)
	stages = append(stages, p.stages...)
	stages = append(stages, RequireTier(tier))

	return p.handler(stages, handler)
}

func (p *Pipeline) handler(stages []Stage, handler HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := newResponseWriter(w)
		start := time.Now()

		defer func() {
			if rec := recover(); rec != nil {
				p.fail(rw, r, fmt.Errorf("panic: %v", rec))
			}
			p.logger.Info("request completed",
				zap.String("request_id", GetRequestIDFromContext(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr))
		}()

		for _, stage := range stages {
			if err := r.Context().Err(); err != nil {
				p.logger.Debug("request cancelled", zap.Error(err))
				return
			}

			next, err := stage(rw, r)
			if err != nil {
				p.fail(rw, r, err)
				return
			}
			if next == nil {
				return
			}
			r = next
		}

		err := handler(rw, r)
		if ctxErr := r.Context().Err(); ctxErr != nil {
			p.logger.Debug("request cancelled", zap.Error(ctxErr))
			return
		}
		if err != nil {
			p.fail(rw, r, err)
		}
	})
}

// fail hands err to the error handler unless a response was already started
func (p *Pipeline) fail(rw *responseWriter, r *http.Request, err error) {
	if rw.Written() {
		p.logger.Error("error after response was started",
			zap.String("request_id", GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		return
	}
	p.onError(rw, r, err)
}

// responseWriter records whether and with what status a response was started
type responseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(status int) {
	if rw.written {
		return
	}
	rw.status = status
	rw.written = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Written reports whether the status line has been sent
func (rw *responseWriter) Written() bool {
	return rw.written
}

// Status returns the status sent, or 200 when nothing was written
func (rw *responseWriter) Status() int {
	return rw.status
}

// Unwrap lets http.ResponseController reach the underlying writer
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
