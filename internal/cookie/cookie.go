package cookie

import (
	"net/http"
	"time"

	"github.com/domudall/3rd-party-oauth/internal/envutil"
)

// Cookie names used by the filter
const (
	// SessionCookie holds the encrypted access token.
	SessionCookie = "oauth_session"
	// UserInfoCookie caches the identity record as base64 JSON.
	UserInfoCookie = "oauth_userinfo"
	// RedirectCookie remembers the originally requested path across the
	// round-trip to the authorization server.
	RedirectCookie = "oauth_redirect"
)

// RedirectMaxAge bounds the redirect-back cookie to the few seconds the
// provider round-trip should take.
const RedirectMaxAge = 120 * time.Second

// NewSession builds the session token cookie with appropriate security settings
func NewSession(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
}

// NewUserInfo builds the identity cache cookie. Its MaxAge is the only
// revalidation mechanism: while it lives, the provider is not re-queried.
func NewUserInfo(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     UserInfoCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	}
}

// NewRedirect builds the short-lived redirect-back cookie
func NewRedirect(target string) *http.Cookie {
	return &http.Cookie{
		Name:     RedirectCookie,
		Value:    target,
		Path:     "/",
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(RedirectMaxAge.Seconds()),
	}
}

// Clear builds a cookie that removes name by setting MaxAge to -1
func Clear(name string) *http.Cookie {
	return &http.Cookie{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}
