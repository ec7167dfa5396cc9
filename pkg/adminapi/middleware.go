package adminapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dlogio/dlog/internal/logger"
)

type contextKey int

const claimsContextKey contextKey = iota

// GetClaimsFromContext returns the bearer-token claims attached to the
// request context by JWTAuth, or nil if the request was never authenticated.
func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// extractBearerToken pulls the token out of an "Authorization: Bearer <tok>"
// header, matching the scheme case-insensitively.
func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// JWTAuth guards mutating admin endpoints: requests without a valid bearer
// token are rejected with 401 before reaching the handler.
func JWTAuth(svc *JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				Unauthorized(w, "missing or malformed Authorization header")
				return
			}
			claims, err := svc.ValidateToken(token)
			if err != nil {
				Unauthorized(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestLogger logs every request at INFO, health and metrics probes at
// DEBUG to keep scrape traffic out of normal logs.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if isProbePath(r.URL.Path) {
			logger.Debug("admin API request completed", args...)
		} else {
			logger.Info("admin API request completed", args...)
		}
	})
}

func isProbePath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}
