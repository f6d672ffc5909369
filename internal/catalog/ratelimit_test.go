package catalog

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newGate() *RateGate {
	return NewRateGate(GateConfig{RetryAfterBuffer: 5 * time.Second, MaxAttempts: 2, Cooldown: 2 * time.Minute})
}

func retryAfter(v string) http.Header {
	h := http.Header{}
	if v != "" {
		h.Set("Retry-After", v)
	}
	return h
}

func TestGateOpenByDefault(t *testing.T) {
	blocked, wait := newGate().ShouldBlock(t0)
	assert.False(t, blocked)
	assert.Zero(t, wait)
}

func TestTooManyRequestsClosesGate(t *testing.T) {
	g := newGate()
	wait := g.RecordResponse("GET /v1/search", http.StatusTooManyRequests, retryAfter("10"), t0)
	assert.Equal(t, 15*time.Second, wait)

	blocked, remaining := g.ShouldBlock(t0.Add(5 * time.Second))
	assert.True(t, blocked)
	assert.Equal(t, 10*time.Second, remaining)

	blocked, _ = g.ShouldBlock(t0.Add(15 * time.Second))
	assert.False(t, blocked)
}

func TestMissingRetryAfterUsesDefault(t *testing.T) {
	g := newGate()
	wait := g.RecordResponse("GET /v1/search", http.StatusTooManyRequests, retryAfter(""), t0)
	assert.Equal(t, DefaultRetryAfter+5*time.Second, wait)
}

func TestRetryAfterHTTPDate(t *testing.T) {
	g := newGate()
	wait := g.RecordResponse("GET /v1/search", http.StatusTooManyRequests, retryAfter(t0.Add(20*time.Second).Format(http.TimeFormat)), t0)
	assert.Equal(t, 25*time.Second, wait)
}

func TestRepeatedFailuresTriggerCooldown(t *testing.T) {
	g := newGate()
	assert.Zero(t, g.RecordResponse("GET /v1/me/tracks", http.StatusBadGateway, nil, t0))
	assert.False(t, g.State().Limited)
	assert.Equal(t, 1, g.State().Attempts["GET /v1/me/tracks"])

	wait := g.RecordResponse("GET /v1/me/tracks", http.StatusServiceUnavailable, nil, t0)
	assert.Equal(t, 2*time.Minute, wait)
	assert.Empty(t, g.State().Attempts)

	blocked, _ := g.ShouldBlock(t0.Add(time.Minute))
	assert.True(t, blocked)
}

func TestSuccessResetsEndpointAttempts(t *testing.T) {
	g := newGate()
	g.RecordResponse("GET /v1/search", http.StatusInternalServerError, nil, t0)
	g.RecordResponse("GET /v1/search", http.StatusOK, nil, t0)
	assert.Zero(t, g.RecordResponse("GET /v1/search", http.StatusInternalServerError, nil, t0))
	assert.False(t, g.State().Limited)

	// Attempts are tracked per endpoint.
	g.RecordResponse("GET /v1/me", http.StatusInternalServerError, nil, t0)
	assert.Equal(t, 1, g.State().Attempts["GET /v1/me"])
	assert.Equal(t, 1, g.State().Attempts["GET /v1/search"])
}

func TestLaterDeadlineWins(t *testing.T) {
	g := newGate()
	g.RecordResponse("GET /v1/search", http.StatusTooManyRequests, retryAfter("60"), t0)
	wait := g.RecordResponse("GET /v1/me", http.StatusTooManyRequests, retryAfter("1"), t0)
	assert.Equal(t, 65*time.Second, wait)
}
