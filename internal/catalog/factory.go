package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"pushd-go-srv/internal/config"
	"pushd-go-srv/internal/lazy"
	"pushd-go-srv/internal/logging"
)

// Factory builds catalog clients that share one pacing limiter and one RateGate,
// so throttling seen by any listener's call holds back every other call.
type Factory struct {
	transport *Transport
	baseURL   string
	app       *lazy.Value[*Client]
}

func NewFactory(cfg config.SpotifyConfig) *Factory {
	f := &Factory{
		transport: &Transport{
			Base:    &http.Transport{Proxy: http.ProxyFromEnvironment, MaxIdleConnsPerHost: 10, IdleConnTimeout: 90 * time.Second},
			Limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
			Gate: NewRateGate(GateConfig{
				RetryAfterBuffer: cfg.RetryAfterBuffer,
				MaxAttempts:      cfg.MaxAttempts,
				Cooldown:         cfg.Cooldown,
			}),
		},
		baseURL: cfg.BaseURL,
	}

	if cfg.HasAppCredentials() {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
		}
		f.app = lazy.New(func(ctx context.Context) (*Client, error) {
			src := cc.TokenSource(ctx)
			if _, err := src.Token(); err != nil {
				return nil, fmt.Errorf("client credentials token: %w", err)
			}
			logging.Info().Msg("catalog app client ready")
			return f.newClient(src), nil
		})
	}
	return f
}

// Gate exposes the shared rate gate, mostly for health reporting.
func (f *Factory) Gate() *RateGate {
	return f.transport.Gate
}

// ForToken returns a client acting as the listener who owns the bearer token.
func (f *Factory) ForToken(token string) *Client {
	return f.newClient(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
}

// Searcher prefers the app-level client for searches and falls back to the
// listener's own client when no app credentials are configured or they fail.
func (f *Factory) Searcher(ctx context.Context, token string) *Client {
	if f.app != nil {
		c, err := f.app.Get(ctx)
		if err == nil {
			return c
		}
		logging.Ctx(ctx).Warn().Err(err).Str("state", f.app.State().String()).Msg("app catalog client unavailable, searching as listener")
	}
	return f.ForToken(token)
}

func (f *Factory) newClient(src oauth2.TokenSource) *Client {
	httpClient := &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: f.transport},
		Timeout:   30 * time.Second,
	}
	var opts []spotify.ClientOption
	if f.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(strings.TrimRight(f.baseURL, "/")+"/"))
	}
	return NewClient(spotify.New(httpClient, opts...))
}
