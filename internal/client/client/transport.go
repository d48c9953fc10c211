package client

import (
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedTransport delays each request until the limiter admits it.
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func newRateLimitedTransport(base http.RoundTripper, rps float64, burst int) *rateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &rateLimitedTransport{
		transport: base,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}
