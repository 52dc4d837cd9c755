package controlapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/observability"
)

// APIKeyHeader carries the control plane credential.
const APIKeyHeader = "X-API-Key"

// requestLogger puts a request scoped logger in the context and logs one
// line per request: Info below 400, Warn for 4xx, Error for 5xx.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())

		reqLogger := a.log.With(slog.String("request_id", reqID))
		r = r.WithContext(logger.WithContext(r.Context(), reqLogger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		reqLogger.Log(r.Context(), level, "http request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("remote_ip", r.RemoteAddr),
		)
	})
}

// metricsMiddleware labels by route pattern, not raw path, to bound
// cardinality. Unmatched requests are labelled "unmatched".
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		observability.ControlPlaneReqDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		observability.ControlPlaneReqTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
	})
}

// authenticateAPIKey compares the SHA-256 of X-API-Key against the
// configured hash in constant time.
func (a *API) authenticateAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(APIKeyHeader)
		if key == "" {
			unauthorized(w, r, "missing API key")
			return
		}

		sum := sha256.Sum256([]byte(key))
		got := hex.EncodeToString(sum[:])
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.apiKeyHash)) != 1 {
			logger.FromContext(r.Context()).Warn("invalid api key", slog.String("remote_ip", r.RemoteAddr))
			unauthorized(w, r, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, ErrorResponse{Code: "UNAUTHORIZED", Message: msg})
}
