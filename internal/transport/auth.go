package transport

import (
	"net/http"
)

// Authenticator applies an API key to outgoing requests.
type Authenticator interface {
	Apply(req *http.Request, apiKey string)
}

// NoAuth implements no authentication.
type NoAuth struct{}

// Apply implements the Authenticator interface for NoAuth.
func (a *NoAuth) Apply(_ *http.Request, _ string) {}

// BearerAuth sends the key as a Bearer token.
type BearerAuth struct{}

// Apply implements the Authenticator interface for BearerAuth.
func (a *BearerAuth) Apply(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
}

// HeaderAuth sends the key in a custom header such as X-API-Key.
type HeaderAuth struct {
	Header string
}

// Apply implements the Authenticator interface for HeaderAuth.
func (a *HeaderAuth) Apply(req *http.Request, apiKey string) {
	req.Header.Set(a.Header, apiKey)
}

// QueryAuth sends the key as a query parameter.
type QueryAuth struct {
	Param string
}

// Apply implements the Authenticator interface for QueryAuth.
func (a *QueryAuth) Apply(req *http.Request, apiKey string) {
	if req.URL == nil {
		return
	}
	query := req.URL.Query()
	query.Set(a.Param, apiKey)
	req.URL.RawQuery = query.Encode()
}

// authHeader returns the headers an authenticator would set, for
// transports such as the websocket dialer that do not take a Request.
func authHeader(auth Authenticator, apiKey string) http.Header {
	if auth == nil || apiKey == "" {
		return http.Header{}
	}
	req, _ := http.NewRequest(http.MethodGet, "http://localhost/", nil)
	auth.Apply(req, apiKey)
	return req.Header
}
