// Package services contains the server-side business logic. UserService owns
// the authentication flows: registration, login with lockout, session refresh,
// logout and per-request identity resolution.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/dbx"
	"github.com/prashikshan/portal-auth/internal/logging"
	"github.com/prashikshan/portal-auth/internal/server/audit"
	"github.com/prashikshan/portal-auth/internal/server/auth"
	"github.com/prashikshan/portal-auth/internal/server/lockout"
	"github.com/prashikshan/portal-auth/internal/server/models"
	"github.com/prashikshan/portal-auth/internal/server/password"
	"github.com/prashikshan/portal-auth/internal/server/repositories/repomanager"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit, in bytes
	maxNameLength     = 100
	maxEmailLength    = 254

	DefaultStoreTimeout = 5 * time.Second
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
// RefreshToken is empty when a refresh call does not rotate.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   *models.User
	Tokens TokenPair
}

// Identity is the resolved caller attached to a request after authentication.
type Identity struct {
	UserID string
	Email  string
	Role   models.Role
	User   *models.User
}

// RegisterInput is a self-registration request. Email is normalised and
// Password hashed by Register; Role must be student or mentor.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Role     models.Role
	Phone    string
	Bio      string
	Skills   string
}

// rehasher is implemented by hashers that can tell when a stored hash is
// outdated.
type rehasher interface {
	NeedsRehash(hash string) bool
}

// Options tune a UserService. Zero values select the defaults: no rotation,
// DefaultStoreTimeout, no auditing and the wall clock.
type Options struct {
	RotateRefreshTokens bool
	StoreTimeout        time.Duration
	Audit               audit.Sink
	Logger              logging.Logger
	Now                 func() time.Time
}

// UserService implements registration, login, token refresh, logout and
// account administration on top of the repositories.
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	tokens      *auth.TokenService
	hasher      password.Hasher
	policy      *lockout.Policy

	rotate       bool
	storeTimeout time.Duration
	audit        audit.Sink
	log          logging.Logger
	now          func() time.Time

	dummyOnce sync.Once
	dummy     string
}

// NewUserService builds a UserService. tokens, hasher and policy are required.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, tokens *auth.TokenService,
	hasher password.Hasher, policy *lockout.Policy, opts Options) *UserService {

	s := &UserService{
		db:           db,
		repomanager:  m,
		tokens:       tokens,
		hasher:       hasher,
		policy:       policy,
		rotate:       opts.RotateRefreshTokens,
		storeTimeout: opts.StoreTimeout,
		audit:        opts.Audit,
		log:          opts.Logger,
		now:          opts.Now,
	}
	if s.storeTimeout <= 0 {
		s.storeTimeout = DefaultStoreTimeout
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.log == nil {
		s.log = logging.Nop{}
	}
	s.log = s.log.With("module", "auth")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Register creates a student or mentor account and signs it in.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Email = models.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := validateRegister(in); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	_, err := s.repomanager.Users(s.db).GetUserByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, common.ErrEmailAlreadyExists
	case !errors.Is(err, common.ErrorNotFound):
		return nil, storeFailure(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	var result *AuthResult
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		user, err := s.repomanager.Users(tx).Create(ctx, &models.User{
			Email:        in.Email,
			PasswordHash: hash,
			Name:         in.Name,
			Role:         in.Role,
			Phone:        in.Phone,
			Bio:          in.Bio,
			Skills:       in.Skills,
		})
		if err != nil {
			return err
		}
		pair, err := s.issueTokens(ctx, tx, user)
		if err != nil {
			return err
		}
		result = &AuthResult{User: user, Tokens: *pair}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrEmailAlreadyExists
		}
		return nil, storeFailure(err)
	}

	s.log.Info(ctx, "user registered", "user_id", result.User.ID, "role", string(result.User.Role))
	s.emit(ctx, audit.Event{Type: audit.UserRegistered, UserID: result.User.ID, Email: result.User.Email,
		Meta: map[string]string{"role": string(result.User.Role)}})

	return result, nil
}

// Login verifies credentials under the lockout policy. Unknown emails and wrong
// passwords produce the same error.
func (s *UserService) Login(ctx context.Context, email, plain string) (*AuthResult, error) {
	email = models.NormalizeEmail(email)
	ve := &common.ValidationError{}
	if email == "" {
		ve.Add("email", "email is required")
	}
	if plain == "" {
		ve.Add("password", "password is required")
	}
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	users := s.repomanager.Users(s.db)

	user, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(plain, s.dummyHash())
			s.loginFailed(ctx, "", email, "unknown_email")
			return nil, common.ErrInvalidCredentials
		}
		return nil, storeFailure(err)
	}

	if err := s.policy.Check(user); err != nil {
		s.loginFailed(ctx, user.ID, email, "locked")
		return nil, err
	}
	if err := s.policy.ExpireIfElapsed(ctx, users, user); err != nil {
		return nil, storeFailure(err)
	}

	if !user.Active {
		s.loginFailed(ctx, user.ID, email, "deactivated")
		return nil, common.ErrAccountDeactivated
	}

	if !s.hasher.Verify(plain, user.PasswordHash) {
		err := s.policy.RegisterFailure(ctx, users, user)
		var locked *common.LockedError
		switch {
		case errors.As(err, &locked):
			s.log.Warn(ctx, "account locked", "user_id", user.ID, "attempts", user.FailedLoginCount)
			s.emit(ctx, audit.Event{Type: audit.AccountLocked, UserID: user.ID, Email: email})
			return nil, err
		case errors.Is(err, common.ErrInvalidCredentials):
			s.loginFailed(ctx, user.ID, email, "bad_password")
			return nil, err
		default:
			return nil, storeFailure(err)
		}
	}

	if err := s.policy.RegisterSuccess(ctx, users, user); err != nil {
		return nil, storeFailure(err)
	}
	s.rehashIfNeeded(ctx, user, plain)

	pair, err := s.issueTokens(ctx, s.db, user)
	if err != nil {
		return nil, storeFailure(err)
	}

	s.log.Info(ctx, "login succeeded", "user_id", user.ID)
	s.emit(ctx, audit.Event{Type: audit.LoginSucceeded, UserID: user.ID, Email: email})

	return &AuthResult{User: user, Tokens: *pair}, nil
}

// Refresh redeems a refresh token for a new access token. With rotation
// enabled the presented token is replaced in the same transaction.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, common.ErrRefreshTokenNotFound
	}
	if _, err := s.tokens.VerifyRefresh(refreshToken); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	repo := s.repomanager.RefreshTokens(s.db)

	stored, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRefreshTokenNotFound
		}
		return nil, storeFailure(err)
	}

	if stored.Expired(s.now()) {
		if err := repo.Delete(ctx, refreshToken); err != nil {
			s.log.Warn(ctx, "delete expired refresh token failed", "error", err)
		}
		return nil, common.ErrRefreshTokenExpired
	}

	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRefreshTokenNotFound
		}
		return nil, storeFailure(err)
	}
	if !user.Active {
		return nil, common.ErrAccountDeactivated
	}

	var pair *TokenPair
	if s.rotate {
		err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken); err != nil {
				return err
			}
			var genErr error
			pair, genErr = s.issueTokens(ctx, tx, user)
			return genErr
		})
		if err != nil {
			// A concurrent rotation already redeemed this token.
			if errors.Is(err, common.ErrorNotFound) {
				return nil, common.ErrRefreshTokenNotFound
			}
			return nil, storeFailure(err)
		}
	} else {
		access, exp, err := s.tokens.IssueAccess(user)
		if err != nil {
			return nil, fmt.Errorf("issue access token: %w", err)
		}
		pair = &TokenPair{AccessToken: access, AccessExpiresAt: exp}
	}

	s.emit(ctx, audit.Event{Type: audit.TokenRefreshed, UserID: user.ID,
		Meta: map[string]string{"rotated": fmt.Sprint(s.rotate)}})

	return pair, nil
}

// Logout deletes refreshToken when given. For an authenticated caller it also
// revokes every refresh token of the user and invalidates issued access tokens.
func (s *UserService) Logout(ctx context.Context, refreshToken string, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if refreshToken != "" {
		if err := s.repomanager.RefreshTokens(s.db).Delete(ctx, refreshToken); err != nil {
			return storeFailure(err)
		}
	}

	if userID != "" {
		if err := s.revokeAll(ctx, userID); err != nil {
			return err
		}
	}

	s.emit(ctx, audit.Event{Type: audit.UserLoggedOut, UserID: userID})
	return nil
}

// CurrentUser reloads the user; common.ErrorNotFound when it no longer exists.
func (s *UserService) CurrentUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.db).GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, storeFailure(err)
	}
	return user, nil
}

// Authenticate resolves an access token to the current identity. The user row
// is consulted so deactivated accounts and revoked token versions are refused
// before the token expires.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, common.ErrUnauthenticated
	}
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx, claims.UserID())
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, common.ErrAccountDeactivated
	}
	if claims.Version != user.TokenVersion {
		return nil, common.ErrTokenVersionRevoked
	}

	return &Identity{UserID: user.ID, Email: user.Email, Role: user.Role, User: user}, nil
}

// SetActive activates or deactivates an account. Deactivation revokes every
// session of the user.
func (s *UserService) SetActive(ctx context.Context, actorID, id string, active bool) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	users := s.repomanager.Users(s.db)
	if err := users.SetActive(ctx, id, active); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, storeFailure(err)
	}
	if !active {
		if err := s.revokeAll(ctx, id); err != nil {
			return nil, err
		}
	}

	user, err := users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, storeFailure(err)
	}

	s.log.Info(ctx, "user status changed", "user_id", id, "active", active, "actor_id", actorID)
	s.emit(ctx, audit.Event{Type: audit.UserStatusChanged, UserID: id,
		Meta: map[string]string{"active": fmt.Sprint(active), "actor": actorID}})

	return user, nil
}

// CleanupExpiredTokens purges refresh tokens past their expiry.
func (s *UserService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	n, err := s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storeFailure(err)
	}
	return n, nil
}

func (s *UserService) revokeAll(ctx context.Context, userID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.RefreshTokens(tx).DeleteByUser(ctx, userID); err != nil {
			return err
		}
		_, err := s.repomanager.Users(tx).IncrementTokenVersion(ctx, userID)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return storeFailure(err)
	}
	return nil
}

func (s *UserService) issueTokens(ctx context.Context, db dbx.DBTX, user *models.User) (*TokenPair, error) {
	access, accessExp, err := s.tokens.IssueAccess(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.repomanager.RefreshTokens(db).Create(ctx, user.ID, refresh, refreshExp); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *UserService) rehashIfNeeded(ctx context.Context, user *models.User, plain string) {
	r, ok := s.hasher.(rehasher)
	if !ok || !r.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		s.log.Warn(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.repomanager.Users(s.db).UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.log.Warn(ctx, "password rehash not stored", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
}

// dummyHash is verified against when the email is unknown so both failure
// paths cost one hash comparison.
func (s *UserService) dummyHash() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash("portal-auth-timing-equalizer")
		if err == nil {
			s.dummy = h
		}
	})
	return s.dummy
}

func (s *UserService) loginFailed(ctx context.Context, userID, email, reason string) {
	s.log.Info(ctx, "login failed", "user_id", userID, "reason", reason)
	s.emit(ctx, audit.Event{Type: audit.LoginFailed, UserID: userID, Email: email, Reason: reason})
}

func (s *UserService) emit(ctx context.Context, e audit.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	s.audit.Emit(ctx, e)
}

func storeFailure(err error) error {
	return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
}

func validateRegister(in RegisterInput) error {
	ve := &common.ValidationError{}

	switch {
	case in.Email == "":
		ve.Add("email", "email is required")
	case len(in.Email) > maxEmailLength:
		ve.Add("email", "email is too long")
	default:
		if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
			ve.Add("email", "email is invalid")
		}
	}

	switch {
	case in.Password == "":
		ve.Add("password", "password is required")
	case len(in.Password) < minPasswordLength:
		ve.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case len(in.Password) > maxPasswordLength:
		ve.Add("password", fmt.Sprintf("password must be at most %d bytes", maxPasswordLength))
	}

	switch {
	case in.Name == "":
		ve.Add("name", "name is required")
	case len(in.Name) > maxNameLength:
		ve.Add("name", "name is too long")
	}

	if !in.Role.SelfRegistrable() {
		ve.Add("role", "invalid role, must be either student or mentor")
	}

	return ve.OrNil()
}
