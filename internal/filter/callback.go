package filter

import (
	"errors"
	"net/http"

	"github.com/domudall/3rd-party-oauth/internal/cookie"
	"github.com/domudall/3rd-party-oauth/internal/idp"
	"github.com/domudall/3rd-party-oauth/internal/log"
)

// handleCallback completes the flow when the provider redirects the
// browser back. No cookies are set unless the exchange succeeds.
func (f *Filter) handleCallback(r *http.Request) Outcome {
	query := r.URL.Query()

	code := query.Get("code")
	if code == "" {
		// User declined consent, or the provider reported an error with
		// nothing to exchange
		log.LogWarnWithFields("filter", "Callback without authorization code", map[string]any{
			"error": query.Get("error"),
		})
		return Respond(http.StatusUnauthorized, "access denied")
	}

	accessToken, err := f.provider.ExchangeCode(r.Context(), code, f.callbackURL(r))
	if err != nil {
		var exchangeErr *idp.ExchangeError
		if errors.As(err, &exchangeErr) {
			log.LogWarnWithFields("filter", "Token exchange rejected", map[string]any{
				"description": exchangeErr.Description,
			})
			return Respond(http.StatusBadRequest, exchangeErr.Description)
		}

		log.LogErrorWithFields("filter", "Token exchange failed", map[string]any{
			"error": err.Error(),
		})
		return Respond(http.StatusInternalServerError, err.Error())
	}

	sealed, err := f.encryptor.Encrypt(accessToken)
	if err != nil {
		log.LogError("Failed to encrypt access token: %v", err)
		return Respond(http.StatusInternalServerError, "failed to establish session")
	}

	// The redirect-back cookie is consumed once and left to expire by its
	// own Max-Age
	target := f.auth.DefaultLandingPath
	if back, err := cookie.Get(r, cookie.RedirectCookie); err == nil && back != "" {
		target = back
	}

	return Redirect(target, cookie.NewSession(sealed, f.auth.SessionTTL))
}
