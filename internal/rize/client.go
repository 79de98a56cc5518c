// Package rize reads daily time-tracking metrics from the Rize GraphQL API.
package rize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/verte-zerg/rizexist/internal/clock"
	"github.com/verte-zerg/rizexist/internal/model"
)

// DefaultEndpoint is the public Rize GraphQL endpoint.
const DefaultEndpoint = "https://api.rize.io/api/v1/graphql"

const maxErrorBody = 4 << 10

const dailyMetricsQuery = `
query DailyMetrics($startDate: ISO8601Date!, $endDate: ISO8601Date!, $startTime: ISO8601DateTime!, $endTime: ISO8601DateTime!) {
	summaries(startDate: $startDate, endDate: $endDate, bucketSize: "day") {
		focusTime
		trackedTime
		breakTime
		meetingTime
	}
	categories(startTime: $startTime, endTime: $endTime) {
		name
		key
		timeSpent
		focus
	}
	sessions(startTime: $startTime, endTime: $endTime) {
		type
		startTime
		endTime
	}
}
`

// ErrUpstream matches every failure reported by the Rize API.
var ErrUpstream = errors.New("rize upstream error")

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("rize returned status %d: %s", e.Status, e.Body)
}

// Is reports ErrUpstream equivalence.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUpstream
}

// GraphQLError is returned when the response carries an errors payload.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "rize API error: " + strings.Join(e.Messages, "; ")
}

// Is reports ErrUpstream equivalence.
func (e *GraphQLError) Is(target error) bool {
	return target == ErrUpstream
}

// Client fetches per-day data from Rize.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		if endpoint != "" {
			c.endpoint = endpoint
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock sets the clock used to decide which sessions have started.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient builds a Rize client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		clock:      clock.System{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DailyMetrics fetches and derives the metric set for the calendar day of date.
func (c *Client) DailyMetrics(ctx context.Context, date time.Time) (model.DailyMetrics, error) {
	data, err := c.FetchDay(ctx, date)
	if err != nil {
		return model.DailyMetrics{}, err
	}
	values := Derive(data, c.clock.Now())
	c.logger.Debug("rize metrics derived",
		"date", date.Format(model.DateLayout),
		"categories", len(data.Categories),
		"sessions", len(data.Sessions),
	)
	return model.DailyMetrics{Date: date, Values: values}, nil
}

// FetchDay runs the daily query and returns the raw payload.
func (c *Client) FetchDay(ctx context.Context, date time.Time) (DayData, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)
	day := start.Format(model.DateLayout)

	body, err := json.Marshal(graphQLRequest{
		Query: dailyMetricsQuery,
		Variables: map[string]any{
			"startDate": day,
			"endDate":   day,
			"startTime": start.Format(time.RFC3339),
			"endTime":   end.Format(time.RFC3339),
		},
	})
	if err != nil {
		return DayData{}, fmt.Errorf("failed to encode rize query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return DayData{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return DayData{}, fmt.Errorf("rize request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return DayData{}, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var payload graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return DayData{}, fmt.Errorf("failed to decode rize response: %w", err)
	}
	if len(payload.Errors) > 0 {
		msgs := make([]string, 0, len(payload.Errors))
		for _, e := range payload.Errors {
			msgs = append(msgs, e.Message)
		}
		return DayData{}, &GraphQLError{Messages: msgs}
	}
	return payload.Data.toDayData(), nil
}
