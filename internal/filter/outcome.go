package filter

import (
	"net/http"

	jsonwriter "github.com/domudall/3rd-party-oauth/internal/json"
)

type outcomeKind int

const (
	outcomeContinue outcomeKind = iota
	outcomeRespond
	outcomeRedirect
)

// Outcome is the single result of a filtering stage. Every request gets
// exactly one: either it continues toward the upstream with identity
// headers attached, or a response/redirect terminates it here.
type Outcome struct {
	kind     outcomeKind
	headers  http.Header
	status   int
	body     string
	location string
	cookies  []*http.Cookie
}

// Continue lets the request proceed to the upstream with the given headers
// added; cookies are set on the response on the way through.
func Continue(headers http.Header, cookies ...*http.Cookie) Outcome {
	return Outcome{kind: outcomeContinue, headers: headers, cookies: cookies}
}

// Respond terminates the request with a status and message
func Respond(status int, body string, cookies ...*http.Cookie) Outcome {
	return Outcome{kind: outcomeRespond, status: status, body: body, cookies: cookies}
}

// Redirect terminates the request with a 302 to location
func Redirect(location string, cookies ...*http.Cookie) Outcome {
	return Outcome{kind: outcomeRedirect, location: location, cookies: cookies}
}

// IsContinue reports whether the request may reach the upstream
func (o Outcome) IsContinue() bool {
	return o.kind == outcomeContinue
}

// SetCookies adds the outcome's cookies to the response
func (o Outcome) SetCookies(w http.ResponseWriter) {
	for _, c := range o.cookies {
		http.SetCookie(w, c)
	}
}

// UpstreamHeaders returns the headers to inject into the proxied request
func (o Outcome) UpstreamHeaders() http.Header {
	return o.headers
}

// Apply writes a terminal outcome to the response. It must not be called
// for Continue outcomes.
func (o Outcome) Apply(w http.ResponseWriter, r *http.Request) {
	o.SetCookies(w)

	switch o.kind {
	case outcomeRedirect:
		http.Redirect(w, r, o.location, http.StatusFound)
	case outcomeRespond:
		jsonwriter.WriteError(w, o.status, errorCode(o.status), o.body)
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "internal_server_error"
	}
}
