package bridge

import (
	"errors"
	"net/http"
	"strings"
)

// Wire headers.
const (
	HeaderSetCookie = "X-Set-Cookie"
	HeaderTraceID   = "X-Trace-ID"
	HeaderWidgetID  = "X-Widget-ID"
)

// Error strings of the proxy's failure body.
const (
	ErrInvalidURL     = "Invalid URL"
	ErrInvalidRequest = "Invalid request body"
	ErrProxyFailed    = "Proxy request failed"
	CauseCircuitOpen  = "circuit open"
)

var (
	// ErrUnavailable means the proxy endpoint itself could not be reached.
	ErrUnavailable = errors.New("network bridge unavailable")
)

// Request is what the client half posts to the proxy.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
}

// NormalizedMethod returns the upper-cased method, GET when empty.
func (r Request) NormalizedMethod() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Response is what proxyFetch resolves with. Header names are lower-cased.
type Response struct {
	OK         bool              `json:"ok"`
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers"`
	BodyText   string            `json:"body"`
	SetCookie  string            `json:"set_cookie,omitempty"`
}

// Header looks a header up case-insensitively. set-cookie reads the value
// the proxy echoed in X-Set-Cookie.
func (r *Response) Header(name string) (string, bool) {
	name = strings.ToLower(name)
	if name == "set-cookie" {
		return r.SetCookie, r.SetCookie != ""
	}
	v, ok := r.Headers[name]
	return v, ok
}

// ErrorBody is the proxy's failure payload.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Cause   string `json:"cause,omitempty"`
}
