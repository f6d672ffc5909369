package catalog

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultRetryAfter = 30 * time.Second

type GateConfig struct {
	RetryAfterBuffer time.Duration
	MaxAttempts      int
	Cooldown         time.Duration
}

// RateGate is the single place that remembers catalog throttling. A 429 closes
// the gate until Retry-After (plus a buffer) has passed; an endpoint failing
// MaxAttempts times in a row closes it for the cooldown period.
type RateGate struct {
	cfg GateConfig

	mu         sync.Mutex
	limited    bool
	retryUntil time.Time
	attempts   map[string]int
}

func NewRateGate(cfg GateConfig) *RateGate {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RateGate{cfg: cfg, attempts: map[string]int{}}
}

// ShouldBlock reports whether a call made at now must be refused, and for how long.
func (g *RateGate) ShouldBlock(now time.Time) (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.limited || !now.Before(g.retryUntil) {
		return false, 0
	}
	return true, g.retryUntil.Sub(now)
}

// RecordResponse updates the gate from one response and returns the wait it
// imposed, zero if the gate stays open.
func (g *RateGate) RecordResponse(endpoint string, status int, header http.Header, now time.Time) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.limited && !now.Before(g.retryUntil) {
		g.limited = false
	}

	failed := status == http.StatusTooManyRequests || status >= 500
	if !failed {
		if status < 400 {
			delete(g.attempts, endpoint)
		}
		return 0
	}

	g.attempts[endpoint]++
	var until time.Time
	if status == http.StatusTooManyRequests {
		until = now.Add(parseRetryAfter(header.Get("Retry-After"), now) + g.cfg.RetryAfterBuffer)
	}
	if g.attempts[endpoint] >= g.cfg.MaxAttempts {
		if cool := now.Add(g.cfg.Cooldown); cool.After(until) {
			until = cool
		}
		delete(g.attempts, endpoint)
	}
	if until.IsZero() || !until.After(now) {
		return 0
	}

	if !g.limited || until.After(g.retryUntil) {
		g.retryUntil = until
	}
	g.limited = true
	return g.retryUntil.Sub(now)
}

type GateState struct {
	Limited    bool
	RetryUntil time.Time
	Attempts   map[string]int
}

func (g *RateGate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	attempts := make(map[string]int, len(g.attempts))
	for k, v := range g.attempts {
		attempts[k] = v
	}
	return GateState{Limited: g.limited, RetryUntil: g.retryUntil, Attempts: attempts}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return DefaultRetryAfter
}
