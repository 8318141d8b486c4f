package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	jsonwriter "github.com/domudall/3rd-party-oauth/internal/json"
	"github.com/domudall/3rd-party-oauth/internal/log"
)

// Handler forwards traffic to the protected upstream. Authentication has
// already happened by the time a request reaches it.
type Handler struct {
	target *url.URL
	proxy  *httputil.ReverseProxy
}

// New builds a reverse proxy for the provided upstream URL
func New(target *url.URL) *Handler {
	reverseProxy := httputil.NewSingleHostReverseProxy(target)
	reverseProxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.URL.Path = singleJoin(target.Path, req.URL.Path)
		req.Host = target.Host
		if req.Header.Get("X-Forwarded-Host") == "" {
			req.Header.Set("X-Forwarded-Host", req.Host)
		}
		if req.Header.Get("X-Forwarded-Proto") == "" {
			req.Header.Set("X-Forwarded-Proto", req.URL.Scheme)
		}
	}
	reverseProxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.LogErrorWithFields("proxy", "Upstream request failed", map[string]any{
			"upstream": target.Host,
			"path":     r.URL.Path,
			"error":    err.Error(),
		})
		jsonwriter.WriteBadGateway(w, "upstream unavailable")
	}

	return &Handler{
		target: target,
		proxy:  reverseProxy,
	}
}

// ServeHTTP forwards the request to the upstream
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.proxy.ServeHTTP(w, r)
}

func singleJoin(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	default:
		return a + b
	}
}
