package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"zako_server/metrics"
	"zako_server/utils"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs one line per request and records its metrics.
// It wraps the router from outside, since mux skips Use middlewares for
// unknown paths and wrong verbs; router only resolves the route label.
func RequestLogger(logger *zap.Logger, router *mux.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := metrics.RouteTemplate(router, r)
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start)

			metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", rec.status),
				zap.Duration("duration", elapsed),
				zap.String("remote", utils.ClientIP(r)))
		})
	}
}

// Recovery turns a panicking handler into a 500 failure body.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("Handler panicked",
						zap.Any("panic", v),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))
					utils.WriteFailure(w, http.StatusInternalServerError, "internal_error", "服务器内部错误.")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout bounds the request context; store transactions roll back when it expires.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
