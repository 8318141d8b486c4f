package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProxyForwardsRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reports", r.URL.Path)
		assert.Equal(t, "tok1", r.Header.Get("X-Access-Token"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("upstream says hi"))
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	handler := New(target)

	r := httptest.NewRequest(http.MethodGet, "http://filter.local/reports", nil)
	r.Header.Set("X-Access-Token", "tok1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Equal(t, "upstream says hi", string(body))
}

func TestProxyJoinsBasePath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reports", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	target, err := url.Parse(upstream.URL + "/api/v1")
	require.NoError(t, err)

	handler := New(target)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://filter.local/reports", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProxyUnreachableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target, err := url.Parse(upstream.URL)
	require.NoError(t, err)
	upstream.Close()

	handler := New(target)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://filter.local/reports", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "bad_gateway", body["error"])
}

func TestSingleJoin(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"", "/x", "/x"},
		{"/base", "/x", "/base/x"},
		{"/base/", "/x", "/base/x"},
		{"/base", "x", "/base/x"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, singleJoin(tt.a, tt.b))
	}
}
