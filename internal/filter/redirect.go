package filter

import (
	"net/http"
	"strings"

	"github.com/domudall/3rd-party-oauth/internal/cookie"
	"github.com/domudall/3rd-party-oauth/internal/log"
	"github.com/domudall/3rd-party-oauth/internal/urlutil"
)

// callbackURL reconstructs the externally visible callback address. When
// the filter runs behind another proxy the forwarded headers describe the
// client-facing origin; otherwise the request's own scheme and host do.
// The result must match the redirect URI registered with the provider
// byte for byte, or the token exchange fails.
func (f *Filter) callbackURL(r *http.Request) string {
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}

	if port := r.Header.Get("X-Forwarded-Port"); port != "" && !strings.Contains(host, ":") && !isDefaultPort(scheme, port) {
		host = host + ":" + port
	}

	return urlutil.MustJoinPath(scheme+"://"+host, f.callbackPath())
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// redirectToProvider starts a fresh login: remember where the user was
// going, then send the browser to the authorize endpoint.
func (f *Filter) redirectToProvider(r *http.Request) Outcome {
	authURL := f.provider.AuthCodeURL(f.callbackURL(r))

	log.LogDebugWithFields("filter", "Redirecting to authorization server", map[string]any{
		"path": r.URL.Path,
	})

	return Redirect(authURL, cookie.NewRedirect(r.URL.RequestURI()))
}
