// Package remote is the client side of the daemon's HTTP API, used by the
// companion CLI.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	domain "rouse/internal/domain/alarm"
)

var (
	// ErrAddressRequired is returned when no daemon address is given.
	ErrAddressRequired = errors.New("daemon address must be provided")
	// ErrDaemon wraps error responses from the daemon.
	ErrDaemon = errors.New("daemon error")
)

// DefaultCallTimeout bounds a single API call.
const DefaultCallTimeout = 10 * time.Second

// Client talks to a running daemon over its HTTP API.
type Client struct {
	// http is the underlying resty client.
	http *resty.Client
}

// Option configures client behaviour.
type Option func(*resty.Client)

// WithCallTimeout sets a default timeout for API calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *resty.Client) {
		if timeout > 0 {
			c.SetTimeout(timeout)
		}
	}
}

// New builds a client for the daemon at the given address. A bare host:port
// is promoted to an http:// base URL.
func New(address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, ErrAddressRequired
	}

	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	httpClient := resty.New().
		SetBaseURL(address).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(DefaultCallTimeout)

	for _, opt := range opts {
		opt(httpClient)
	}

	return &Client{http: httpClient}, nil
}

// Status fetches the daemon's current status.
func (c *Client) Status(ctx context.Context) (*domain.Status, error) {
	var status domain.Status

	if err := c.call(ctx, http.MethodGet, "/v1/status", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// Schedules lists all schedules.
func (c *Client) Schedules(ctx context.Context) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule

	if err := c.call(ctx, http.MethodGet, "/v1/schedules", nil, &schedules); err != nil {
		return nil, err
	}

	return schedules, nil
}

// CreateSchedule adds a schedule and returns the stored copy.
func (c *Client) CreateSchedule(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	var created domain.Schedule

	if err := c.call(ctx, http.MethodPost, "/v1/schedules", schedule, &created); err != nil {
		return nil, err
	}

	return &created, nil
}

// UpdateSchedule replaces a schedule and returns the stored copy.
func (c *Client) UpdateSchedule(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	var updated domain.Schedule

	path := fmt.Sprintf("/v1/schedules/%d", schedule.ID)
	if err := c.call(ctx, http.MethodPut, path, schedule, &updated); err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteSchedule removes a schedule.
func (c *Client) DeleteSchedule(ctx context.Context, id uint64) error {
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("/v1/schedules/%d", id), nil, nil)
}

// Snooze snoozes the active ring and returns the resulting status.
func (c *Client) Snooze(ctx context.Context) (*domain.Status, error) {
	var status domain.Status

	if err := c.call(ctx, http.MethodPost, "/v1/snooze", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// Dismiss dismisses the active ring and returns the resulting status.
func (c *Client) Dismiss(ctx context.Context) (*domain.Status, error) {
	var status domain.Status

	if err := c.call(ctx, http.MethodPost, "/v1/dismiss", nil, &status); err != nil {
		return nil, err
	}

	return &status, nil
}

// call performs one API request, decoding either the reply or the daemon's
// error body.
func (c *Client) call(ctx context.Context, method, path string, body, reply any) error {
	request := c.http.R().SetContext(ctx)

	if body != nil {
		request.SetBody(body)
	}

	resp, err := request.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.IsError() {
		return fmt.Errorf("%w: %s %s: %s", ErrDaemon, method, path, daemonErrorText(resp))
	}

	if reply != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), reply); err != nil {
			return fmt.Errorf("decode %s %s reply: %w", method, path, err)
		}
	}

	return nil
}

// daemonErrorText extracts the error message from an API error body, falling
// back to the HTTP status line.
func daemonErrorText(resp *resty.Response) string {
	var body struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		return body.Error
	}

	return resp.Status()
}
