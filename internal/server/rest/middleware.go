package rest

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/logging"
	"github.com/prashikshan/portal-auth/internal/server/models"
	"github.com/prashikshan/portal-auth/internal/server/ratelimit"
	"github.com/prashikshan/portal-auth/internal/server/services"
)

type ctxKey int

const (
	identityKey ctxKey = iota
	requestIDKey
)

const requestIDHeader = common.RequestIDHeaderName

// Authenticator resolves an access token into the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*services.Identity, error)
}

// IdentityFrom returns the identity attached by Authenticate or OptionalAuth.
func IdentityFrom(ctx context.Context) (*services.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*services.Identity)
	return id, ok && id != nil
}

func withIdentity(ctx context.Context, id *services.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// RequestIDFrom returns the request id assigned by RequestID.
func RequestIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// accessToken prefers the Authorization header and falls back to the
// access cookie.
func accessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(AccessCookie); err == nil {
		return c.Value
	}
	return ""
}

// Authenticate rejects requests without a valid access token for an active user.
func Authenticate(a Authenticator, l logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r.Context(), accessToken(r))
			if err != nil {
				writeError(w, r, l, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is present and
// otherwise lets the request through unchanged.
func OptionalAuth(a Authenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := accessToken(r); token != "" {
				if id, err := a.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(withIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole must run after Authenticate.
func RequireRole(l logging.Logger, roles ...models.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				writeError(w, r, l, common.ErrUnauthenticated)
				return
			}
			if !models.AnyRoleSatisfies(roles, id.Role) {
				writeError(w, r, l, common.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID propagates an incoming X-Request-ID or assigns a new one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RateLimit throttles per client address. Limiter failures let the request
// through.
func RateLimit(limiter ratelimit.Limiter, l logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				l.Warn(r.Context(), "rate limiter unavailable", "error", err.Error())
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if !res.Allowed {
				secs := int(math.Ceil(res.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, r, l, common.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
