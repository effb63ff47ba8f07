// Package prospect delivers outbound events to the external prospection API.
// It does not retry; retry scheduling belongs to the outbox dispatcher.
package prospect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/clearstack/config"
	"github.com/d60-Lab/clearstack/internal/model"
)

var (
	ErrMissingCredential    = errors.New("prospect api key is not configured")
	ErrUnsupportedEventType = errors.New("unsupported event type")
	ErrRemoteStatus         = errors.New("prospect api returned a non-success status")
)

// Sink is what the dispatcher needs from a delivery target.
type Sink interface {
	Post(ctx context.Context, eventType model.EventType, payload []byte) error
}

// Endpoint maps an event type to its remote path.
func Endpoint(t model.EventType) (string, error) {
	switch t {
	case model.EventReviewCreated:
		return "/v1/events/review-created", nil
	case model.EventRequestCreated:
		return "/v1/events/request-created", nil
	case model.EventRequestAccepted:
		return "/v1/events/request-accepted", nil
	case model.EventSoftwareUsage:
		return "/v1/events/software-usage", nil
	case model.EventContractRenewal:
		return "/v1/events/contract-renewal", nil
	case model.EventEconomyOpportunity:
		return "/v1/events/economy-opportunity", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedEventType, t)
}

type Client struct {
	enabled bool
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var _ Sink = (*Client)(nil)

func NewClient(cfg config.ProspectConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		enabled: cfg.Enabled,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "prospect",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Post sends one event. A globally disabled integration succeeds without any
// network call; a missing api key is an error.
func (c *Client) Post(ctx context.Context, eventType model.EventType, payload []byte) error {
	if !c.enabled {
		return nil
	}
	if c.apiKey == "" {
		return ErrMissingCredential
	}
	path, err := Endpoint(eventType)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("prospect rate limit: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, path, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("prospect api unavailable: %w", err)
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build prospect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: post %s: %d %s", ErrRemoteStatus, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
