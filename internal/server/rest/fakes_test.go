package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/server/auth"
	"github.com/prashikshan/portal-auth/internal/server/models"
	"github.com/prashikshan/portal-auth/internal/server/ratelimit"
	"github.com/prashikshan/portal-auth/internal/server/services"
)

// fakeService maps static token strings to identities and delegates every
// other call to an optional function field.
type fakeService struct {
	identities map[string]*services.Identity

	register    func(services.RegisterInput) (*services.AuthResult, error)
	login       func(email, password string) (*services.AuthResult, error)
	refresh     func(token string) (*services.TokenPair, error)
	currentUser func(id string) (*models.User, error)
	setActive   func(actorID, id string, active bool) (*models.User, error)
	logoutErr   error

	logoutToken  string
	logoutUserID string
	logoutCalls  int
}

func newFakeService() *fakeService {
	return &fakeService{identities: map[string]*services.Identity{}}
}

func (f *fakeService) withIdentity(token string, u *models.User) {
	f.identities[token] = &services.Identity{UserID: u.ID, Email: u.Email, Role: u.Role, User: u}
}

func (f *fakeService) Authenticate(_ context.Context, token string) (*services.Identity, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}
	id, ok := f.identities[token]
	if !ok {
		return nil, common.ErrInvalidToken
	}
	return id, nil
}

func (f *fakeService) Register(_ context.Context, in services.RegisterInput) (*services.AuthResult, error) {
	return f.register(in)
}

func (f *fakeService) Login(_ context.Context, email, password string) (*services.AuthResult, error) {
	return f.login(email, password)
}

func (f *fakeService) Refresh(_ context.Context, token string) (*services.TokenPair, error) {
	return f.refresh(token)
}

func (f *fakeService) Logout(_ context.Context, token, userID string) error {
	f.logoutCalls++
	f.logoutToken = token
	f.logoutUserID = userID
	return f.logoutErr
}

func (f *fakeService) CurrentUser(_ context.Context, id string) (*models.User, error) {
	return f.currentUser(id)
}

func (f *fakeService) SetActive(_ context.Context, actorID, id string, active bool) (*models.User, error) {
	return f.setActive(actorID, id, active)
}

type stubLimiter struct {
	res ratelimit.Result
	err error
}

func (s stubLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	return s.res, s.err
}

var (
	student = &models.User{ID: "u-student", Email: "s@x.com", Name: "S", Role: models.RoleStudent, Active: true}
	mentor  = &models.User{ID: "u-mentor", Email: "m@x.com", Name: "M", Role: models.RoleMentor, Active: true}
	admin   = &models.User{ID: "u-admin", Email: "a@x.com", Name: "A", Role: models.RoleAdmin, Active: true}
)

func newTokenService(t *testing.T, now func() time.Time) *auth.TokenService {
	t.Helper()
	opts := []auth.Option{}
	if now != nil {
		opts = append(opts, auth.WithTimeFunc(now))
	}
	ts, err := auth.NewTokenService(auth.Config{
		AccessSecret: []byte("test-secret"),
		AccessTTL:    time.Hour,
		RefreshTTL:   24 * time.Hour,
	}, opts...)
	require.NoError(t, err)
	return ts
}

func issue(t *testing.T, ts *auth.TokenService, u *models.User) string {
	t.Helper()
	tok, _, err := ts.IssueAccess(u)
	require.NoError(t, err)
	return tok
}

func newTestRouter(t *testing.T, svc *fakeService, limiter ratelimit.Limiter) http.Handler {
	t.Helper()
	return NewRouter(RouterConfig{
		Service:    svc,
		Tokens:     newTokenService(t, nil),
		Limiter:    limiter,
		CORSOrigin: "http://localhost:3000",
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, mods ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for _, m := range mods {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func cookie(name, value string) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
