package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Alvinotuya84/parliament-voting-booth/internal/metrics"
)

// Client provides HTTP access to the parliament API
type Client struct {
	config  Config
	http    *http.Client
	slots   chan struct{} // bounds concurrent requests
	stats   requestStats
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Config contains API client configuration
type Config struct {
	BaseURL       string
	Token         string // bearer token, optional
	Timeout       time.Duration
	MaxRetries    int           // retries for idempotent reads
	RetryDelay    time.Duration // first backoff step, doubled per attempt
	MaxRetryDelay time.Duration
	MaxConcurrent int
	UserAgent     string
}

// ClientStats is a snapshot of the client's request counters
type ClientStats struct {
	Requests    uint64        `json:"requests"`
	Succeeded   uint64        `json:"succeeded"`
	Failed      uint64        `json:"failed"`
	Retries     uint64        `json:"retries"`
	SuccessRate float64       `json:"success_rate"`
	AvgLatency  time.Duration `json:"avg_latency"`
	InFlight    int           `json:"in_flight"`
}

// NewClient creates a new parliament API client
func NewClient(config Config, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}

	if config.MaxRetryDelay <= 0 {
		config.MaxRetryDelay = 30 * time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.UserAgent == "" {
		config.UserAgent = "Parliament-Voting-Booth/1.0"
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config: config,
		http: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: config.MaxConcurrent,
				IdleConnTimeout:     60 * time.Second,
			},
		},
		slots:   make(chan struct{}, config.MaxConcurrent),
		metrics: m,
		logger:  logger,
	}, nil
}

// request describes one API call. route is the templated path used as
// the metrics label.
type request struct {
	method string
	path   string
	route  string
	body   any
	retry  bool
}

// do performs req, decoding a successful response into out when non-nil.
// Only requests marked retry are repeated.
func (c *Client) do(ctx context.Context, req request, out any) error {
	select {
	case c.slots <- struct{}{}:
		defer func() { <-c.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	began := time.Now()
	c.stats.begin()

	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			c.stats.fail()
			return fmt.Errorf("encode %s %s body: %w", req.method, req.path, err)
		}
	}

	attempts := 1
	if req.retry {
		attempts += c.config.MaxRetries
	}

	var err error
	sent := 0
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			wait := c.backoff(attempt)
			c.stats.retry()
			c.metrics.RecordAPIRetry()
			c.logger.Debug("Retrying API request",
				slog.String("method", req.method),
				slog.String("path", req.path),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)

			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				c.stats.fail()
				return ctx.Err()
			}
		}

		sent++
		if err = c.roundTrip(ctx, req, payload, out); err == nil {
			c.stats.succeed(time.Since(began))
			return nil
		}
		if !req.retry || ctx.Err() != nil || !isRetryableError(err) {
			break
		}
	}

	c.stats.fail()
	if sent > 1 {
		return fmt.Errorf("%s %s failed after %d attempts: %w", req.method, req.path, sent, err)
	}
	return fmt.Errorf("%s %s: %w", req.method, req.path, err)
}

// backoff returns the delay before attempt, doubling from RetryDelay
func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt-1))) * c.config.RetryDelay
	if d > c.config.MaxRetryDelay || d <= 0 {
		d = c.config.MaxRetryDelay
	}
	return d
}

// roundTrip sends one HTTP request and decodes the reply
func (c *Client) roundTrip(ctx context.Context, req request, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.config.BaseURL+req.path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	requestID := uuid.NewString()
	header := httpReq.Header
	header.Set("Accept", "application/json")
	header.Set("User-Agent", c.config.UserAgent)
	header.Set("X-Request-ID", requestID)
	if payload != nil {
		header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	sent := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordAPIRequest(req.method, req.route, "error", time.Since(sent).Seconds())
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.RecordAPIRequest(req.method, req.route, strconv.Itoa(resp.StatusCode), time.Since(sent).Seconds())
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return newAPIError(resp.StatusCode, raw, requestID)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// requestStats counts request outcomes
type requestStats struct {
	mu        sync.RWMutex
	requests  uint64
	succeeded uint64
	failed    uint64
	retries   uint64
	latency   time.Duration // running average over successful requests
}

func (s *requestStats) begin() {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()
}

func (s *requestStats) retry() {
	s.mu.Lock()
	s.retries++
	s.mu.Unlock()
}

func (s *requestStats) fail() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

func (s *requestStats) succeed(took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.succeeded++
	if s.latency == 0 {
		s.latency = took
		return
	}
	s.latency = (s.latency + took) / 2
}

// GetStats returns a snapshot of the request counters
func (c *Client) GetStats() ClientStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()

	stats := ClientStats{
		Requests:   c.stats.requests,
		Succeeded:  c.stats.succeeded,
		Failed:     c.stats.failed,
		Retries:    c.stats.retries,
		AvgLatency: c.stats.latency,
		InFlight:   len(c.slots),
	}
	if stats.Requests > 0 {
		stats.SuccessRate = float64(stats.Succeeded) / float64(stats.Requests) * 100
	}
	return stats
}

// Close waits for in-flight requests and releases idle connections
func (c *Client) Close() error {
	for i := 0; i < cap(c.slots); i++ {
		c.slots <- struct{}{}
	}
	c.http.CloseIdleConnections()
	return nil
}
