package chainclient

import "net/http"

// AuthTransport is an http.RoundTripper that adds a bearer token to each request.
type AuthTransport struct {
	Transport http.RoundTripper
	Token     string
}

func (c *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// never mutate the caller's request
	clonedReq := req.Clone(req.Context())
	clonedReq.Header.Set("Authorization", "Bearer "+c.Token)
	return c.Transport.RoundTrip(clonedReq)
}
