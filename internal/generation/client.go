// Package generation calls an Ollama-compatible text generation endpoint.
package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"pushd-go-srv/internal/apperr"
	"pushd-go-srv/internal/config"
	"pushd-go-srv/internal/logging"
	"pushd-go-srv/internal/metrics"
)

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type Client struct {
	httpClient *http.Client
	url        string
	model      string
	breaker    *gobreaker.CircuitBreaker[string]
}

func NewClient(cfg config.GenerationConfig) *Client {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "generation",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up says nothing about the model's health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("generation breaker state change")
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		url:        strings.TrimRight(cfg.URL, "/") + "/api/generate",
		model:      cfg.Model,
		breaker:    breaker,
	}
}

// Generate sends one prompt and returns the model's full text response as is,
// even when empty. Any failure to obtain a response is GenerationUnavailable;
// there is no retry.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	text, err := c.breaker.Execute(func() (string, error) {
		return c.call(ctx, prompt)
	})
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", apperr.Wrap(apperr.GenerationUnavailable, err, "generation service is temporarily disabled")
		}
		return "", apperr.Wrap(apperr.GenerationUnavailable, err, "generation request failed")
	}
	logging.Ctx(ctx).Debug().Int("chars", len(text)).Dur("took", time.Since(start)).Msg("model response received")
	return text, nil
}

func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("model endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode model response: %w", err)
	}
	return out.Response, nil
}
