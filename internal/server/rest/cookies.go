package rest

import (
	"net/http"
	"time"

	"github.com/prashikshan/portal-auth/internal/common"
)

const (
	// AccessCookie holds the access token. Page scripts and the edge gate read it.
	AccessCookie = common.AccessTokenCookieName
	// RefreshCookie holds the refresh token and is never exposed to scripts.
	RefreshCookie = common.RefreshTokenCookieName
)

type cookieJar struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (j cookieJar) setAccess(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     AccessCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(j.accessTTL.Seconds()),
		Secure:   j.secure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
}

func (j cookieJar) setRefresh(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(j.refreshTTL.Seconds()),
		Secure:   j.secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (j cookieJar) clear(w http.ResponseWriter) {
	expireCookie(w, AccessCookie, false, http.SameSiteLaxMode, j.secure)
	expireCookie(w, RefreshCookie, true, http.SameSiteStrictMode, j.secure)
}

func expireCookie(w http.ResponseWriter, name string, httpOnly bool, sameSite http.SameSite, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   secure,
		HttpOnly: httpOnly,
		SameSite: sameSite,
	})
}
