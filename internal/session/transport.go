package session

import (
	"net/http"
)

// BearerTransport attaches the session token to every outgoing request. When
// the session has no token the request goes out unauthenticated.
type BearerTransport struct {
	Base    http.RoundTripper
	Session *Session
}

func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if token := t.Session.Token(); token != "" && req.Header.Get("Authorization") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return base.RoundTrip(req)
}

// NewHTTPClient returns a client that authenticates as s. Deadlines are set
// per call by the caller's context, so the client has no global timeout.
func NewHTTPClient(s *Session) *http.Client {
	return &http.Client{Transport: &BearerTransport{Session: s}}
}
