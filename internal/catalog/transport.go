package catalog

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/metrics"
)

// Transport paces catalog calls and consults the RateGate before and after each
// one. A closed gate or a 429 becomes a CatalogRateLimited error carrying the
// remaining wait.
type Transport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
	Gate    *RateGate
	Now     func() time.Time
}

func (t *Transport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if blocked, wait := t.Gate.ShouldBlock(t.now()); blocked {
		return nil, rateLimited(wait)
	}
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")

	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}
	metrics.CatalogResponses.WithLabelValues(strconv.Itoa(resp.StatusCode/100) + "xx").Inc()

	wait := t.Gate.RecordResponse(req.Method+" "+req.URL.Path, resp.StatusCode, resp.Header, t.now())
	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if wait == 0 {
			wait = parseRetryAfter(resp.Header.Get("Retry-After"), t.now())
		}
		return nil, rateLimited(wait)
	}
	return resp, nil
}

func rateLimited(wait time.Duration) error {
	return &apperr.Error{
		Kind:       apperr.CatalogRateLimited,
		Message:    "catalog rate limit reached, retry in " + wait.Round(time.Second).String(),
		RetryAfter: wait,
	}
}
