package filter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/domudall/3rd-party-oauth/internal/cookie"
	"github.com/domudall/3rd-party-oauth/internal/idp"
	"github.com/domudall/3rd-party-oauth/internal/log"
)

// resolveSession classifies the request's authentication state and decides
// the next action: continue with identity headers, or restart the login.
func (f *Filter) resolveSession(r *http.Request) Outcome {
	sealed := sessionToken(r)
	if sealed == "" {
		return f.redirectToProvider(r)
	}

	accessToken, err := f.encryptor.Decrypt(sealed)
	if err != nil {
		// Undecryptable is indistinguishable from absent: a fresh login
		// replaces the cookie, no need to surface anything to the user
		log.LogDebugWithFields("filter", "Session cookie failed decryption", map[string]any{
			"error": err.Error(),
		})
		return f.redirectToProvider(r)
	}

	headers := http.Header{}
	headers.Set(HeaderAccessToken, accessToken)
	cookies := []*http.Cookie{cookie.NewSession(sealed, f.auth.SessionTTL)}

	identity := f.cachedIdentity(r)
	if identity == nil {
		claims, err := f.provider.FetchUserInfo(r.Context(), accessToken)
		if err != nil {
			// Stale or revoked token: restart the login rather than
			// bouncing a broken session against the upstream
			log.LogDebugWithFields("filter", "User info fetch failed, re-authenticating", map[string]any{
				"error": err.Error(),
			})
			return f.redirectToProvider(r)
		}

		if err := f.provider.ValidateHostedDomain(claims); err != nil {
			if errors.Is(err, idp.ErrDomainMismatch) {
				return Respond(http.StatusUnauthorized, err.Error())
			}
			return Respond(http.StatusInternalServerError, err.Error())
		}

		identity = f.identityRecord(claims)

		blob, err := encodeIdentity(identity)
		if err != nil {
			return Respond(http.StatusInternalServerError, "failed to encode identity")
		}
		cookies = append(cookies, cookie.NewUserInfo(blob, f.auth.UserInfoTTL))

		log.LogInfoWithFields("filter", "User authenticated", map[string]any{
			"subject": identity["id"],
		})
	}

	f.identityHeaders(headers, identity)
	return Continue(headers, cookies...)
}

// sessionToken returns the sealed token from the session cookie, falling
// back to the X-Session-Token header for cookie-less clients
func sessionToken(r *http.Request) string {
	if value, err := cookie.Get(r, cookie.SessionCookie); err == nil && value != "" {
		return value
	}
	return r.Header.Get(HeaderSessionToken)
}

// cachedIdentity decodes the user-info cookie if a usable one is present.
// Its presence alone skips the provider call; expiry is enforced by the
// cookie's own Max-Age.
func (f *Filter) cachedIdentity(r *http.Request) map[string]any {
	blob, err := cookie.Get(r, cookie.UserInfoCookie)
	if err != nil || blob == "" {
		return nil
	}

	identity, err := decodeIdentity(blob)
	if err != nil {
		log.LogDebugWithFields("filter", "Discarding unreadable user info cookie", map[string]any{
			"error": err.Error(),
		})
		return nil
	}
	return identity
}

// identityRecord selects the claims that travel to the upstream: the
// mandatory subject id (as "id"), the identifier claim, and the configured
// extra keys.
func (f *Filter) identityRecord(claims idp.Claims) map[string]any {
	record := map[string]any{
		"id": claims.Subject(),
	}

	if identifier := claims.String(f.auth.IdentifierClaim); identifier != "" {
		record[f.auth.IdentifierClaim] = identifier
	}

	for _, key := range f.auth.PropagateClaims {
		if value, ok := claims[key]; ok {
			record[key] = value
		}
	}

	return record
}

// identityHeaders writes the combined identity blob plus one header per
// propagated claim key
func (f *Filter) identityHeaders(headers http.Header, identity map[string]any) {
	if blob, err := encodeIdentity(identity); err == nil {
		headers.Set(HeaderUserInfo, blob)
	}

	for _, key := range f.auth.PropagateClaims {
		value, ok := identity[key]
		if !ok || value == nil {
			continue
		}
		headers.Set(claimHeaderKey(key), idp.Claims(identity).String(key))
	}
}

func claimHeaderKey(claim string) string {
	return http.CanonicalHeaderKey(claimHeaderPrefix + claim)
}

func encodeIdentity(identity map[string]any) (string, error) {
	data, err := json.Marshal(identity)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeIdentity(blob string) (map[string]any, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, err
	}

	var identity map[string]any
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, err
	}
	return identity, nil
}
