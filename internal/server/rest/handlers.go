package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/logging"
	"github.com/prashikshan/portal-auth/internal/server/models"
	"github.com/prashikshan/portal-auth/internal/server/services"
)

// AuthService is the subset of services.UserService used by the API.
type AuthService interface {
	Authenticator
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string) (*services.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, userID string) error
	CurrentUser(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, actorID, id string, active bool) (*models.User, error)
}

type Handler struct {
	svc     AuthService
	cookies cookieJar
	logger  logging.Logger
}

func NewHandler(svc AuthService, secureCookies bool, accessTTL, refreshTTL time.Duration, l logging.Logger) *Handler {
	return &Handler{
		svc:     svc,
		cookies: cookieJar{secure: secureCookies, accessTTL: accessTTL, refreshTTL: refreshTTL},
		logger:  l,
	}
}

type registerRequest struct {
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Name     string      `json:"name"`
	Role     models.Role `json:"role"`
	Phone    string      `json:"phone"`
	Bio      string      `json:"bio"`
	Skills   string      `json:"skills"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type statusRequest struct {
	Active *bool `json:"active"`
}

type authResponse struct {
	User         models.Profile `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type userResponse struct {
	User models.Profile `json:"user"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
		Phone:    req.Phone,
		Bio:      req.Bio,
		Skills:   req.Skills,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.setAccess(w, res.Tokens.AccessToken)
	h.cookies.setRefresh(w, res.Tokens.RefreshToken)
	writeJSON(w, http.StatusCreated, "User registered successfully", authResponse{
		User:         res.User.Profile(),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	})
}

// Login returns the access token in the body; the refresh token only travels
// in its HttpOnly cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.setRefresh(w, res.Tokens.RefreshToken)
	h.cookies.setAccess(w, res.Tokens.AccessToken)
	writeJSON(w, http.StatusOK, "Login successful", authResponse{
		User:        res.User.Profile(),
		AccessToken: res.Tokens.AccessToken,
	})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(RefreshCookie); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		writeEnvelope(w, envelope{StatusCode: http.StatusUnauthorized, Message: "Refresh token is required"})
		return
	}

	pair, err := h.svc.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.setAccess(w, pair.AccessToken)
	if pair.RefreshToken != "" {
		h.cookies.setRefresh(w, pair.RefreshToken)
	}
	writeJSON(w, http.StatusOK, "Token refreshed successfully", tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout always succeeds from the client's point of view; store failures are
// logged and the cookies are cleared regardless.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decodeOptionalJSON(w, r, &req)
	token := req.RefreshToken
	if token == "" {
		if c, err := r.Cookie(RefreshCookie); err == nil {
			token = c.Value
		}
	}

	userID := ""
	if id, ok := IdentityFrom(r.Context()); ok {
		userID = id.UserID
	}

	if err := h.svc.Logout(r.Context(), token, userID); err != nil {
		h.logger.Warn(r.Context(), "logout cleanup failed", "user_id", userID, "error", err.Error())
	}

	h.cookies.clear(w)
	writeJSON(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, r, h.logger, common.ErrUnauthenticated)
		return
	}

	user, err := h.svc.CurrentUser(r.Context(), id.UserID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "User retrieved successfully", userResponse{User: user.Profile()})
}

// SetStatus activates or deactivates the account named in the path.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Active == nil {
		ve := &common.ValidationError{}
		ve.Add("active", "active must be a boolean")
		writeError(w, r, h.logger, ve)
		return
	}

	actor, _ := IdentityFrom(r.Context())
	actorID := ""
	if actor != nil {
		actorID = actor.UserID
	}
	if actorID == mux.Vars(r)["id"] && !*req.Active {
		writeError(w, r, h.logger, errors.Join(common.ErrForbidden, errors.New("admins cannot deactivate themselves")))
		return
	}

	user, err := h.svc.SetActive(r.Context(), actorID, mux.Vars(r)["id"], *req.Active)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, "User status updated", userResponse{User: user.Profile()})
}

func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, envelope{StatusCode: http.StatusNotFound, Message: "Route " + r.URL.Path + " not found"})
}
