// Package rest serves the authentication API under /api and, optionally, the
// portal's static pages behind the edge gate.
package rest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/prashikshan/portal-auth/internal/logging"
	"github.com/prashikshan/portal-auth/internal/server/models"
	"github.com/prashikshan/portal-auth/internal/server/ratelimit"
)

const shutdownTimeout = 15 * time.Second

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Service    AuthService
	Limiter    ratelimit.Limiter
	Logger     logging.Logger
	CORSOrigin string

	SecureCookies bool
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Tokens backs the edge gate in front of every non-API path.
	Tokens TokenVerifier

	// StaticDir, when set, is served for every non-API path.
	StaticDir string
}

// NewRouter builds the full handler chain: request id, panic recovery,
// access log, CORS, then the router itself.
func NewRouter(c RouterConfig) http.Handler {
	l := c.Logger
	if l == nil {
		l = logging.Nop{}
	}
	h := NewHandler(c.Service, c.SecureCookies, c.AccessTTL, c.RefreshTTL, l)

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(h.NotFound)
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	public := api.PathPrefix("/auth").Subrouter()
	limited := public.NewRoute().Subrouter()
	if c.Limiter != nil {
		limited.Use(RateLimit(c.Limiter, l))
	}
	limited.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	limited.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	public.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)

	optional := public.NewRoute().Subrouter()
	optional.Use(OptionalAuth(c.Service))
	optional.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)

	protected := public.NewRoute().Subrouter()
	protected.Use(Authenticate(c.Service, l))
	protected.HandleFunc("/me", h.Me).Methods(http.MethodGet)

	admin := api.PathPrefix("/users").Subrouter()
	admin.Use(Authenticate(c.Service, l), RequireRole(l, models.RoleAdmin))
	admin.HandleFunc("/{id}/status", h.SetStatus).Methods(http.MethodPatch)

	if c.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(c.StaticDir)))
	}

	// Role areas stay gated even when pages are served by another process
	// behind the same origin.
	var root http.Handler = r
	if c.Tokens != nil {
		root = Gate(c.Tokens, DefaultGateRules, c.SecureCookies, l)(r)
	}

	if c.CORSOrigin != "" {
		root = handlers.CORS(
			handlers.AllowedOrigins([]string{c.CORSOrigin}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}),
			handlers.AllowedHeaders([]string{"Authorization", "Content-Type", requestIDHeader}),
			handlers.ExposedHeaders([]string{requestIDHeader, "Retry-After"}),
			handlers.AllowCredentials(),
		)(root)
	}
	root = handlers.CombinedLoggingHandler(logging.Writer(l, "http access"), root)
	root = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{l}), handlers.PrintRecoveryStack(false))(root)
	return RequestID(root)
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "ok", nil)
}

type recoveryLogger struct {
	l logging.Logger
}

func (r recoveryLogger) Println(v ...any) {
	r.l.Error(context.Background(), "panic recovered", "detail", fmt.Sprint(v...))
}

// Server runs the HTTP API until its context is cancelled.
type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(address string, h http.Handler, l logging.Logger) *Server {
	return &Server{address: address, handler: h, logger: l.With("module", "http")}
}

func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "address", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info(ctx, "shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
