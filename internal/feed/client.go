// Package feed is the HTTP client for the upstream weather feed: active
// alerts, zone geometries, and storm-report bulletins.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-alert-triage/internal/config"
	"github.com/couchcryptid/storm-alert-triage/internal/domain"
)

const (
	maxRetries     = 3
	initialBackoff = time.Second
)

// statusError is a non-2xx feed response. Rate limits and server errors are
// retryable; other client errors fail immediately.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("feed returned %d for %s", e.code, e.url)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Client fetches from the weather feed. All requests carry the configured
// client identifier and a per-request timeout; calls pass through a circuit
// breaker so a hard upstream outage fails fast instead of burning retries.
type Client struct {
	baseURL          string
	userAgent        string
	httpClient       *http.Client
	breaker          *gobreaker.CircuitBreaker
	chunkSize        int
	lookback         time.Duration
	fetchConcurrency int
	logger           *slog.Logger
}

// NewClient creates a feed client from config.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL:   cfg.FeedBaseURL,
		userAgent: cfg.FeedUserAgent,
		httpClient: &http.Client{
			Timeout: cfg.FeedTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "weather-feed",
			Timeout: 30 * time.Second,
		}),
		chunkSize:        cfg.FeedChunkSize,
		lookback:         time.Duration(cfg.ReportLookbackHours) * time.Hour,
		fetchConcurrency: cfg.ReportFetchConcurrency,
		logger:           logger,
	}
}

// FetchActive fetches active alerts for the given regions. Regions are
// partitioned into fixed-size chunks to respect URL-length limits; chunks are
// fetched concurrently, each with its own retry budget. Results are merged and
// deduplicated by alert id, first occurrence winning. Any chunk exhausting its
// retries fails the whole fetch; partial success is the orchestrator's problem.
func (c *Client) FetchActive(ctx context.Context, regions []string) ([]domain.Feature, error) {
	if len(regions) == 0 {
		return nil, errors.New("no regions configured")
	}

	chunks := chunkRegions(regions, c.chunkSize)
	results := make([][]domain.Feature, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			features, err := c.fetchAlertChunk(gctx, chunk)
			if err != nil {
				return fmt.Errorf("fetch chunk %s: %w", strings.Join(chunk, ","), err)
			}
			results[i] = features
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []domain.Feature
	for _, features := range results {
		for _, f := range features {
			id := featureID(f)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			merged = append(merged, f)
		}
	}
	return merged, nil
}

func featureID(f domain.Feature) string {
	if f.Properties.ID != "" {
		return f.Properties.ID
	}
	if f.Properties.AtID != "" {
		return f.Properties.AtID
	}
	return f.ID
}

func (c *Client) fetchAlertChunk(ctx context.Context, regions []string) ([]domain.Feature, error) {
	u := fmt.Sprintf("%s/alerts/active?status=actual&area=%s",
		c.baseURL, url.QueryEscape(strings.Join(regions, ",")))

	body, err := c.getWithRetry(ctx, u, "application/geo+json")
	if err != nil {
		return nil, err
	}

	var fc domain.FeatureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("decode alert collection: %w", err)
	}
	return fc.Features, nil
}

// getWithRetry performs a GET with exponential backoff. Only rate-limit and
// server-error responses (and transport failures, which include timeouts) are
// retried; other client errors return immediately.
func (c *Client) getWithRetry(ctx context.Context, fullURL, accept string) ([]byte, error) {
	backoff := initialBackoff
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		body, err := c.get(ctx, fullURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
		if attempt < maxRetries {
			c.logger.Warn("feed request failed, backing off",
				"url", fullURL, "attempt", attempt, "error", err)
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff *= 2
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}

// get performs one GET through the circuit breaker.
func (c *Client) get(ctx context.Context, fullURL, accept string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", accept)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
			return nil, &statusError{code: resp.StatusCode, url: fullURL}
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// chunkRegions partitions regions into groups of at most size.
func chunkRegions(regions []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for start := 0; start < len(regions); start += size {
		end := start + size
		if end > len(regions) {
			end = len(regions)
		}
		chunks = append(chunks, regions[start:end])
	}
	return chunks
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
