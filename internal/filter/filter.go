package filter

import (
	"net/http"

	"github.com/domudall/3rd-party-oauth/internal/config"
	"github.com/domudall/3rd-party-oauth/internal/cookie"
	"github.com/domudall/3rd-party-oauth/internal/crypto"
	"github.com/domudall/3rd-party-oauth/internal/idp"
)

// Headers exchanged with the client and the upstream
const (
	// HeaderSessionToken is an inbound fallback for clients that cannot
	// carry cookies.
	HeaderSessionToken = "X-Session-Token"
	// HeaderAccessToken carries the raw decrypted access token upstream.
	HeaderAccessToken = "X-Access-Token"
	// HeaderUserInfo carries the combined identity record upstream as
	// base64 JSON.
	HeaderUserInfo = "X-Userinfo"

	// claimHeaderPrefix is prepended to each propagated claim key.
	claimHeaderPrefix = "X-Auth-"
)

// Filter enforces authorization-code login in front of the upstream. It is
// stateless: all session state round-trips through client-held cookies, so
// a single instance serves concurrent requests without locking.
type Filter struct {
	auth      config.AuthConfig
	provider  *idp.Provider
	encryptor crypto.Encryptor
}

// New creates a filter from its collaborators
func New(auth config.AuthConfig, provider *idp.Provider, encryptor crypto.Encryptor) *Filter {
	return &Filter{
		auth:      auth,
		provider:  provider,
		encryptor: encryptor,
	}
}

// Handle classifies the request and returns exactly one outcome
func (f *Filter) Handle(r *http.Request) Outcome {
	switch r.URL.Path {
	case f.callbackPath():
		return f.handleCallback(r)
	case f.logoutPath():
		return Redirect(f.auth.DefaultLandingPath,
			cookie.Clear(cookie.SessionCookie),
			cookie.Clear(cookie.UserInfoCookie),
		)
	default:
		return f.resolveSession(r)
	}
}

// Middleware wraps next so that only authenticated requests reach it
func (f *Filter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		outcome := f.Handle(r)
		if !outcome.IsContinue() {
			outcome.Apply(w, r)
			return
		}

		outcome.SetCookies(w)
		for key, values := range outcome.UpstreamHeaders() {
			r.Header.Del(key)
			for _, value := range values {
				r.Header.Add(key, value)
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (f *Filter) callbackPath() string {
	return f.auth.PathPrefix + "/oauth2/callback"
}

func (f *Filter) logoutPath() string {
	return f.auth.PathPrefix + "/oauth2/logout"
}
