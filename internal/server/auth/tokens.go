// Package auth issues and verifies the signed access and refresh tokens.
// Verification is pure: it never touches the credential store.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/prashikshan/portal-auth/internal/common"
	"github.com/prashikshan/portal-auth/internal/server/models"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Config holds the signing material and lifetimes. RefreshSecret falls back
// to AccessSecret when empty.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// AccessClaims is the payload of an access token. Subject carries the user id.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email   string      `json:"email"`
	Role    models.Role `json:"role"`
	Type    string      `json:"typ"`
	Version int64       `json:"ver"`
}

// UserID returns the subject.
func (c *AccessClaims) UserID() string { return c.Subject }

// RefreshClaims is the payload of a refresh token. It carries no role; the
// user is reloaded from the store on refresh.
type RefreshClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenService signs and verifies HS256 access and refresh tokens.
type TokenService struct {
	cfg Config
	now func() time.Time
}

type Option func(*TokenService)

// WithTimeFunc replaces the clock used for issuing and validating tokens.
func WithTimeFunc(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService validates cfg. The refresh secret falls back to the access
// secret when unset.
func NewTokenService(cfg Config, opts ...Option) (*TokenService, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access token secret is empty")
	}
	if len(cfg.RefreshSecret) == 0 {
		cfg.RefreshSecret = cfg.AccessSecret
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	s := &TokenService{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *TokenService) AccessTTL() time.Duration  { return s.cfg.AccessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// IssueAccess signs an access token for user and returns it with its expiry.
func (s *TokenService) IssueAccess(user *models.User) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.AccessTTL)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email:   user.Email,
		Role:    user.Role,
		Type:    TypeAccess,
		Version: user.TokenVersion,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *TokenService) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(token, claims, s.cfg.AccessSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess || claims.Subject == "" || !claims.Role.Valid() {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// IssueRefresh signs a refresh token. Every token carries a random jti, so two
// tokens issued in the same second for the same user still differ.
func (s *TokenService) IssueRefresh(userID string) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.cfg.RefreshTTL)

	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Type: TypeRefresh,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *TokenService) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(token, claims, s.cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (s *TokenService) parse(token string, claims jwt.Claims, secret []byte) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithLeeway(s.cfg.Leeway),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return mapJWTError(err)
	}
	if !parsed.Valid {
		return common.ErrInvalidToken
	}
	return nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return common.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrTokenSignature
	default:
		return common.ErrInvalidToken
	}
}
