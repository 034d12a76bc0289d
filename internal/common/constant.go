package common

const (
	// AccessTokenCookieName carries the access token. It is readable by client
	// script, which the frontend uses for redirect decisions.
	AccessTokenCookieName = "auth-token"

	// RefreshTokenCookieName carries the refresh token. Always HttpOnly.
	RefreshTokenCookieName = "refreshToken"

	// RequestIDHeaderName is echoed back on every API response.
	RequestIDHeaderName = "X-Request-ID"
)
