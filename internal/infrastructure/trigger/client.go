// Package trigger dispatches conversion work to the remote compute tier.
package trigger

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"toolhub/services/conversion-api/internal/config"
	"toolhub/services/conversion-api/internal/domain/retry"
	"toolhub/services/conversion-api/internal/infrastructure/metrics"
)

// Request is the payload posted to the compute tier. BlobPaths is set only
// for merge-style executions that hand off several inputs at once.
type Request struct {
	ExecutionID string            `json:"execution_id"`
	BlobPath    string            `json:"blob_path,omitempty"`
	BlobPaths   []string          `json:"blob_paths,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
}

// PermanentError marks a trigger failure the retry loop must not repeat:
// the compute tier rejected the request itself, so sending it again can
// only produce the same rejection.
type PermanentError struct {
	StatusCode int
	Body       string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("compute tier rejected trigger (status %d): %s", e.StatusCode, e.Body)
}

// IsPermanent reports whether err is a non-retryable trigger rejection.
func IsPermanent(err error) bool {
	_, ok := err.(*PermanentError)
	return ok
}

// Client posts trigger requests to the compute tier with bounded retries
// and a circuit breaker in front of the whole attempt sequence.
type Client struct {
	http         *resty.Client
	baseURL      string
	callbackBase string
	policy       retry.Policy
	breaker      *gobreaker.CircuitBreaker
	log          zerolog.Logger
}

// NewClient builds a trigger client from service configuration.
func NewClient(cfg *config.Config, log zerolog.Logger) *Client {
	httpClient := resty.New().
		SetHeader("User-Agent", "toolhub-conversion-api/1.0").
		SetTimeout(cfg.TriggerTimeout).
		SetRetryCount(0)

	policy := retry.Policy{
		MaxAttempts:  cfg.TriggerMaxAttempts,
		InitialDelay: cfg.TriggerInitialDelay,
		MaxDelay:     cfg.TriggerMaxDelay,
		JitterFactor: 0.1,
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "compute-trigger",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("trigger circuit breaker state changed")
		},
	})

	return &Client{
		http:         httpClient,
		baseURL:      cfg.ComputeBaseURL,
		callbackBase: cfg.PublicBaseURL,
		policy:       policy,
		breaker:      breaker,
		log:          log.With().Str("component", "trigger-client").Logger(),
	}
}

// Trigger asks the compute tier to start working on an execution. The
// request is retried on transport errors and 5xx responses; a 4xx response
// stops the sequence immediately. The error returned after exhaustion is
// the last attempt's error.
func (c *Client) Trigger(ctx context.Context, category, action string, req Request) error {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, category, action)

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.policy.Execute(ctx, func(ctx context.Context, attempt int) (bool, error) {
			return c.attempt(ctx, endpoint, category, attempt, req)
		})
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		c.log.Warn().
			Str("execution_id", req.ExecutionID).
			Str("category", category).
			Msg("trigger skipped: circuit breaker open")
		return fmt.Errorf("compute tier unavailable: %w", err)
	}
	return err
}

func (c *Client) attempt(ctx context.Context, endpoint, category string, attempt int, req Request) (bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(endpoint)

	if err != nil {
		metrics.RecordTriggerAttempt(category, "retryable")
		c.log.Warn().
			Err(err).
			Str("execution_id", req.ExecutionID).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("trigger transport error")
		return true, fmt.Errorf("trigger request failed: %w", err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 200 && status < 300:
		metrics.RecordTriggerAttempt(category, "success")
		c.log.Info().
			Str("execution_id", req.ExecutionID).
			Str("endpoint", endpoint).
			Int("attempt", attempt).
			Msg("compute tier accepted trigger")
		return false, nil

	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		metrics.RecordTriggerAttempt(category, "permanent")
		c.log.Error().
			Str("execution_id", req.ExecutionID).
			Str("endpoint", endpoint).
			Int("status", status).
			Msg("compute tier rejected trigger")
		return false, &PermanentError{StatusCode: status, Body: resp.String()}

	default:
		metrics.RecordTriggerAttempt(category, "retryable")
		c.log.Warn().
			Str("execution_id", req.ExecutionID).
			Str("endpoint", endpoint).
			Int("status", status).
			Int("attempt", attempt).
			Msg("compute tier trigger failed, will retry")
		return true, fmt.Errorf("compute tier returned status %d", status)
	}
}
