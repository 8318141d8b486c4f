package filter

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/domudall/3rd-party-oauth/internal/config"
	"github.com/domudall/3rd-party-oauth/internal/cookie"
	"github.com/domudall/3rd-party-oauth/internal/crypto"
	"github.com/domudall/3rd-party-oauth/internal/idp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientSecret = "test-client-secret"

type testBackend struct {
	tokenServer    *httptest.Server
	userInfoServer *httptest.Server
	userInfoCalls  atomic.Int64
}

// newTestBackend runs mock token and user-info endpoints
func newTestBackend(t *testing.T, accessToken string, claims map[string]any) *testBackend {
	t.Helper()
	b := &testBackend{}

	b.tokenServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
		})
	}))
	t.Cleanup(b.tokenServer.Close)

	b.userInfoServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.userInfoCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(claims)
	}))
	t.Cleanup(b.userInfoServer.Close)

	return b
}

func newTestFilter(t *testing.T, b *testBackend, mutate func(*config.AuthConfig)) *Filter {
	t.Helper()

	auth := config.AuthConfig{
		AuthorizeURL:       "https://idp.example.com/authorize",
		TokenURL:           "https://idp.example.com/token",
		UserInfoURL:        "https://idp.example.com/userinfo",
		ClientID:           "test-client-id",
		ClientSecret:       config.Secret(testClientSecret),
		PathPrefix:         "/auth",
		Scope:              "openid email",
		IdentifierClaim:    "email",
		PropagateClaims:    []string{"sub", "email"},
		UserInfoTTL:        10 * time.Minute,
		SessionTTL:         24 * time.Hour,
		ProviderTimeout:    5 * time.Second,
		DefaultLandingPath: "/",
	}
	if b != nil {
		auth.TokenURL = b.tokenServer.URL
		auth.UserInfoURL = b.userInfoServer.URL
	}
	if mutate != nil {
		mutate(&auth)
	}

	encryptor, err := crypto.NewEncryptor([]byte(auth.ClientSecret))
	require.NoError(t, err)

	return New(auth, idp.NewProvider(auth), encryptor)
}

func testEncryptor(t *testing.T) crypto.Encryptor {
	t.Helper()
	encryptor, err := crypto.NewEncryptor([]byte(testClientSecret))
	require.NoError(t, err)
	return encryptor
}

// serve runs a request through the middleware and reports whether the
// upstream was reached, along with the headers it saw
func serve(f *Filter, r *http.Request) (*http.Response, http.Header, bool) {
	var reached bool
	var seen http.Header

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		seen = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	f.Middleware(next).ServeHTTP(rec, r)
	return rec.Result(), seen, reached
}

func findCookie(t *testing.T, resp *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestUnauthenticatedRedirectsToProvider(t *testing.T) {
	f := newTestFilter(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports?week=12", nil)
	resp, _, reached := serve(f, r)

	assert.False(t, reached)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.com", location.Host)
	assert.Equal(t, "/authorize", location.Path)

	q := location.Query()
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "https://app.example.com/auth/oauth2/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid email", q.Get("scope"))

	back := findCookie(t, resp, cookie.RedirectCookie)
	require.NotNil(t, back)
	assert.Equal(t, "/reports?week=12", back.Value)
	assert.Equal(t, 120, back.MaxAge)
}

func TestCorruptSessionRedirectsLikeNoSession(t *testing.T) {
	f := newTestFilter(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	r.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: "garbage-not-a-token"})

	resp, _, reached := serve(f, r)

	assert.False(t, reached)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", location.Path)
}

func TestCallbackURLFromForwardedHeaders(t *testing.T) {
	f := newTestFilter(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "http://internal:8080/page", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "public.example.com")
	r.Header.Set("X-Forwarded-Port", "443")

	resp, _, _ := serve(f, r)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://public.example.com/auth/oauth2/callback", location.Query().Get("redirect_uri"))
}

func TestCallbackURLNonDefaultPort(t *testing.T) {
	f := newTestFilter(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "http://internal/page", nil)
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "public.example.com")
	r.Header.Set("X-Forwarded-Port", "8443")

	resp, _, _ := serve(f, r)
	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https://public.example.com:8443/auth/oauth2/callback", location.Query().Get("redirect_uri"))
}

func TestCallbackEstablishesSession(t *testing.T) {
	b := newTestBackend(t, "tok1", nil)

	t.Run("with redirect-back cookie", func(t *testing.T) {
		f := newTestFilter(t, b, nil)

		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/oauth2/callback?code=abc123", nil)
		r.AddCookie(&http.Cookie{Name: cookie.RedirectCookie, Value: "/reports?week=12"})

		resp, _, reached := serve(f, r)

		assert.False(t, reached)
		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/reports?week=12", resp.Header.Get("Location"))

		session := findCookie(t, resp, cookie.SessionCookie)
		require.NotNil(t, session)
		assert.True(t, session.HttpOnly)
		assert.Equal(t, "/", session.Path)
		assert.Equal(t, int((24 * time.Hour).Seconds()), session.MaxAge)

		decrypted, err := testEncryptor(t).Decrypt(session.Value)
		require.NoError(t, err)
		assert.Equal(t, "tok1", decrypted)
	})

	t.Run("without redirect-back cookie", func(t *testing.T) {
		f := newTestFilter(t, b, nil)

		r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/oauth2/callback?code=abc123", nil)
		resp, _, _ := serve(f, r)

		require.Equal(t, http.StatusFound, resp.StatusCode)
		assert.Equal(t, "/", resp.Header.Get("Location"))
	})
}

func TestCallbackWithoutCode(t *testing.T) {
	f := newTestFilter(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/oauth2/callback?error=access_denied", nil)
	resp, _, reached := serve(f, r)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestCallbackProviderRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "authorization code already used",
		})
	}))
	defer server.Close()

	f := newTestFilter(t, nil, func(a *config.AuthConfig) {
		a.TokenURL = server.URL
	})

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/oauth2/callback?code=reused", nil)
	resp, _, _ := serve(f, r)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Cookies())

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["message"], "authorization code already used")
}

func TestCallbackTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	tokenURL := server.URL
	server.Close()

	f := newTestFilter(t, nil, func(a *config.AuthConfig) {
		a.TokenURL = tokenURL
	})

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/oauth2/callback?code=abc123", nil)
	resp, _, _ := serve(f, r)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestAuthenticatedRequestReachesUpstream(t *testing.T) {
	b := newTestBackend(t, "tok1", map[string]any{"sub": "u1", "email": "a@b.com"})
	f := newTestFilter(t, b, nil)

	sealed, err := testEncryptor(t).Encrypt("tok1")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	r.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: sealed})

	resp, seen, reached := serve(f, r)

	require.True(t, reached)
	assert.Equal(t, "tok1", seen.Get(HeaderAccessToken))
	assert.Equal(t, "u1", seen.Get("X-Auth-Sub"))
	assert.Equal(t, "a@b.com", seen.Get("X-Auth-Email"))

	// Combined identity blob decodes to a record keyed on "id"
	blob, err := base64.StdEncoding.DecodeString(seen.Get(HeaderUserInfo))
	require.NoError(t, err)
	var identity map[string]any
	require.NoError(t, json.Unmarshal(blob, &identity))
	assert.Equal(t, "u1", identity["id"])
	assert.Equal(t, "a@b.com", identity["email"])

	// Session cookie re-asserted, user info cached
	assert.NotNil(t, findCookie(t, resp, cookie.SessionCookie))
	userInfo := findCookie(t, resp, cookie.UserInfoCookie)
	require.NotNil(t, userInfo)
	assert.Equal(t, int((10 * time.Minute).Seconds()), userInfo.MaxAge)
}

func TestUserInfoCookieSkipsProviderCall(t *testing.T) {
	b := newTestBackend(t, "tok1", map[string]any{"sub": "u1", "email": "a@b.com"})
	f := newTestFilter(t, b, nil)

	sealed, err := testEncryptor(t).Encrypt("tok1")
	require.NoError(t, err)

	first := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	first.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: sealed})
	resp, _, reached := serve(f, first)
	require.True(t, reached)
	require.Equal(t, int64(1), b.userInfoCalls.Load())

	userInfo := findCookie(t, resp, cookie.UserInfoCookie)
	require.NotNil(t, userInfo)

	second := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	second.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: sealed})
	second.AddCookie(&http.Cookie{Name: cookie.UserInfoCookie, Value: userInfo.Value})

	_, seen, reached := serve(f, second)

	require.True(t, reached)
	assert.Equal(t, int64(1), b.userInfoCalls.Load(), "cached identity must not trigger a second fetch")
	assert.Equal(t, "u1", seen.Get("X-Auth-Sub"))
}

func TestHostedDomainRejection(t *testing.T) {
	b := newTestBackend(t, "tok1", map[string]any{"sub": "u1", "email": "a@x.com"})
	f := newTestFilter(t, b, func(a *config.AuthConfig) {
		a.HostedDomain = "b.com"
	})

	sealed, err := testEncryptor(t).Encrypt("tok1")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	r.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: sealed})

	resp, _, reached := serve(f, r)

	assert.False(t, reached)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, findCookie(t, resp, cookie.UserInfoCookie))
}

func TestStaleTokenRedirectsToProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	f := newTestFilter(t, nil, func(a *config.AuthConfig) {
		a.UserInfoURL = server.URL
	})

	sealed, err := testEncryptor(t).Encrypt("revoked-token")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	r.AddCookie(&http.Cookie{Name: cookie.SessionCookie, Value: sealed})

	resp, _, reached := serve(f, r)

	assert.False(t, reached)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", location.Path)
}

func TestSessionTokenFallbackHeader(t *testing.T) {
	b := newTestBackend(t, "tok1", map[string]any{"sub": "u1", "email": "a@b.com"})
	f := newTestFilter(t, b, nil)

	sealed, err := testEncryptor(t).Encrypt("tok1")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/reports", nil)
	r.Header.Set(HeaderSessionToken, sealed)

	_, seen, reached := serve(f, r)

	require.True(t, reached)
	assert.Equal(t, "tok1", seen.Get(HeaderAccessToken))
}

func TestLogoutClearsSession(t *testing.T) {
	f := newTestFilter(t, nil, nil)

	r := httptest.NewRequest(http.MethodGet, "https://app.example.com/auth/oauth2/logout", nil)
	resp, _, reached := serve(f, r)

	assert.False(t, reached)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	session := findCookie(t, resp, cookie.SessionCookie)
	require.NotNil(t, session)
	assert.Equal(t, -1, session.MaxAge)

	userInfo := findCookie(t, resp, cookie.UserInfoCookie)
	require.NotNil(t, userInfo)
	assert.Equal(t, -1, userInfo.MaxAge)
}
