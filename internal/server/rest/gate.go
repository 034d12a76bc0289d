package rest

import (
	"net/http"
	"strings"

	"github.com/prashikshan/portal-auth/internal/logging"
	"github.com/prashikshan/portal-auth/internal/server/auth"
	"github.com/prashikshan/portal-auth/internal/server/models"
)

const (
	LoginPath        = "/auth/login"
	UnauthorizedPath = "/unauthorized"
)

// TokenVerifier checks an access token without touching the store.
type TokenVerifier interface {
	VerifyAccess(token string) (*auth.AccessClaims, error)
}

// GateRule requires Role (or admin) for every path under Prefix.
type GateRule struct {
	Prefix string
	Role   models.Role
}

// DefaultGateRules protect the three role areas of the portal.
var DefaultGateRules = []GateRule{
	{Prefix: "/admin", Role: models.RoleAdmin},
	{Prefix: "/mentor", Role: models.RoleMentor},
	{Prefix: "/student", Role: models.RoleStudent},
}

var authPages = []string{"/auth/login", "/auth/signup", "/auth/forgot-password"}

// Gate guards page routes using the access cookie alone. It redirects with
// 303 and never reaches the store, so deactivation and token_version
// revocation are only enforced by the API middleware. secure sets the Secure
// flag on the access cookie it clears.
func Gate(v TokenVerifier, rules []GateRule, secure bool, l logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if underPrefix(path, "/api") {
				next.ServeHTTP(w, r)
				return
			}

			token := ""
			if c, err := r.Cookie(AccessCookie); err == nil {
				token = c.Value
			}

			if rule, ok := matchRule(rules, path); ok {
				if token == "" {
					redirect(w, r, LoginPath)
					return
				}
				claims, err := v.VerifyAccess(token)
				if err != nil {
					l.Debug(r.Context(), "gate rejected token", "path", path, "error", err.Error())
					expireCookie(w, AccessCookie, false, http.SameSiteLaxMode, secure)
					redirect(w, r, LoginPath)
					return
				}
				if !models.RoleSatisfies(rule.Role, claims.Role) {
					redirect(w, r, UnauthorizedPath)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if token != "" && r.Method == http.MethodGet && isAuthPage(path) {
				if claims, err := v.VerifyAccess(token); err == nil && claims.Role.Valid() {
					redirect(w, r, claims.Role.Dashboard())
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func matchRule(rules []GateRule, path string) (GateRule, bool) {
	for _, rule := range rules {
		if underPrefix(path, rule.Prefix) {
			return rule, true
		}
	}
	return GateRule{}, false
}

func isAuthPage(path string) bool {
	for _, p := range authPages {
		if underPrefix(path, p) {
			return true
		}
	}
	return false
}

// underPrefix matches whole path segments, so "/administrator" is not under
// "/admin".
func underPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
