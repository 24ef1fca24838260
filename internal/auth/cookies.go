package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	GuestIDCookie      = "guest_id"
)

// ShouldUseCookies reports whether the caller is a browser. Non-browser
// clients (the CLI) get tokens in the response body instead.
func ShouldUseCookies(r *http.Request) bool {
	if r.Header.Get("X-Client") != "" {
		return false
	}
	if r.Header.Get("Origin") != "" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func SetAuthCookies(w http.ResponseWriter, accessToken, refreshToken string, isProduction bool, accessDuration, refreshDuration time.Duration) {
	http.SetCookie(w, newCookie(AccessTokenCookie, accessToken, "/", isProduction, accessDuration))
	http.SetCookie(w, newCookie(RefreshTokenCookie, refreshToken, "/auth", isProduction, refreshDuration))
}

func ClearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, expiredCookie(AccessTokenCookie, "/"))
	http.SetCookie(w, expiredCookie(RefreshTokenCookie, "/auth"))
}

func GetAccessTokenFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, AccessTokenCookie)
}

func GetRefreshTokenFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, RefreshTokenCookie)
}

// SetGuestCookie identifies a browser's server-hosted guest cache
func SetGuestCookie(w http.ResponseWriter, guestID string, isProduction bool, ttl time.Duration) {
	http.SetCookie(w, newCookie(GuestIDCookie, guestID, "/", isProduction, ttl))
}

func ClearGuestCookie(w http.ResponseWriter) {
	http.SetCookie(w, expiredCookie(GuestIDCookie, "/"))
}

func GetGuestIDFromCookie(r *http.Request) (string, error) {
	return cookieValue(r, GuestIDCookie)
}

func newCookie(name, value, path string, secure bool, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredCookie(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	}
}

func cookieValue(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	if c.Value == "" {
		return "", errors.New("empty " + name + " cookie")
	}
	return c.Value, nil
}
