// Package sync keeps the local alarm envelope reconciled with a remote
// coordination endpoint. Reconciliation is whole-envelope last-writer-wins:
// the side with the higher revision counter wins, and the loser adopts the
// winner's schedules wholesale.
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	domain "rouse/internal/domain/alarm"
)

// ErrRemoteStatus means the endpoint answered with a non-2xx status.
var ErrRemoteStatus = errors.New("remote returned error status")

// deviceIDHeader identifies the pushing device to the endpoint.
const deviceIDHeader = "X-Device-ID"

// ClientConfig tunes the HTTP client talking to the coordination endpoint.
type ClientConfig struct {
	// Endpoint is the base URL of the coordination service.
	Endpoint string
	// Token is an optional bearer token sent with every request.
	Token string
	// DeviceID identifies this device in the X-Device-ID header.
	DeviceID string
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// RetryCount is the number of retries per request on transport errors.
	RetryCount int
	// RetryWait is the initial backoff between retries.
	RetryWait time.Duration
	// RetryMaxWait caps the exponential backoff.
	RetryMaxWait time.Duration
}

// Client exchanges sync envelopes with the coordination endpoint.
type Client struct {
	http *resty.Client
}

// NewClient builds a Client for the given endpoint.
func NewClient(cfg ClientConfig) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Endpoint).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader(deviceIDHeader, cfg.DeviceID).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})

	if cfg.Token != "" {
		httpClient.SetAuthToken(cfg.Token)
	}

	return &Client{http: httpClient}
}

// Pull fetches the remote envelope.
func (c *Client) Pull(ctx context.Context) (*domain.SyncEnvelope, error) {
	var envelope domain.SyncEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get("/v1/sync")
	if err != nil {
		return nil, fmt.Errorf("pull envelope: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: pull: %s", ErrRemoteStatus, resp.Status())
	}

	return &envelope, nil
}

// Push uploads the local envelope and returns the envelope the endpoint
// settled on, which may be newer than what was pushed.
func (c *Client) Push(ctx context.Context, envelope *domain.SyncEnvelope) (*domain.SyncEnvelope, error) {
	var winner domain.SyncEnvelope

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(envelope).
		SetResult(&winner).
		Post("/v1/sync")
	if err != nil {
		return nil, fmt.Errorf("push envelope: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: push: %s", ErrRemoteStatus, resp.Status())
	}

	return &winner, nil
}
