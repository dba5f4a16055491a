package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"kidcheck/internal/models"
	"kidcheck/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	ActorContextKey     ContextKey = "actor"
	RequestIDContextKey ContextKey = "request_id"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	tokens  *security.TokenManager
	limiter *security.RateLimiter
	logger  *zap.Logger
}

// NewMiddleware creates a new middleware instance. A nil limiter disables
// rate limiting.
func NewMiddleware(tokens *security.TokenManager, limiter *security.RateLimiter, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, limiter: limiter, logger: logger}
}

// RequireActor rejects requests without a valid bearer token and puts the
// actor named by the token into the context
func (m *Middleware) RequireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := security.BearerToken(r)
		if token == "" {
			respondWithStatus(w, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized)
			return
		}
		claims, err := m.tokens.Parse(token)
		if err != nil {
			m.logger.Debug("rejected bearer token", zap.Error(err))
			respondWithStatus(w, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized)
			return
		}

		actor := models.Actor{ID: claims.Subject, Roles: claims.Roles}
		ctx := context.WithValue(r.Context(), ActorContextKey, actor)
		next(w, r.WithContext(ctx))
	}
}

// RequireRole allows only actors holding one of roles. It must run inside
// RequireActor.
func (m *Middleware) RequireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return m.RequireActor(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := ActorFromContext(r.Context())
			if !actor.HasAnyRole(roles...) {
				respondWithStatus(w, http.StatusForbidden, CodeForbidden, "Forbidden")
				return
			}
			next(w, r)
		})
	}
}

// RateLimit limits requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(security.GetClientIP(r)) {
			respondWithStatus(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging middleware logs HTTP requests with a request id
func Logging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = security.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
			zap.String("client_ip", security.GetClientIP(r)))
	})
}

// ActorFromContext retrieves the authenticated actor from the request context
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorContextKey).(models.Actor)
	return actor, ok
}
