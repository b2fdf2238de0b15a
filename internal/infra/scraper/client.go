// Package scraper implements the provider fetchers of the scrape jobs: GitHub,
// GitLab, ROR, Crossref, OpenAlex and the package managers.
package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"rsd-scraper/internal/observability/logging"
	"rsd-scraper/internal/observability/metrics"
	"rsd-scraper/internal/resilience/circuitbreaker"
	"rsd-scraper/internal/resilience/retry"
	"rsd-scraper/internal/usecase/scrape"
)

const (
	maxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultUserAgent identifies the scraper to providers.
	DefaultUserAgent = "rsd-scraper/1.0 (+https://research-software-directory.org)"
)

// Provider request results reported to metrics.
const (
	resultSuccess     = "success"
	resultNoData      = "no_data"
	resultUnavailable = "unavailable"
	resultError       = "error"
	resultRejected    = "rejected"
)

// response is a fully read 2xx response.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// apiClient performs GET requests against one provider. Every request waits
// for the provider's rate limiter and runs through the provider's circuit
// breaker. Failures are classified into the scrape error taxonomy:
//
//	404, 410            -> scrape.ErrNoData
//	408, 429, 5xx       -> scrape.ErrProviderUnavailable
//	other 4xx, bad body -> scrape.ErrProvider
type apiClient struct {
	name    string
	client  *http.Client
	limiter *RateLimiter
	breaker *circuitbreaker.Breaker
	header  http.Header
}

func newAPIClient(name string, client *http.Client, limiter *RateLimiter, header http.Header) *apiClient {
	if header == nil {
		header = http.Header{}
	}
	if header.Get("User-Agent") == "" {
		header.Set("User-Agent", DefaultUserAgent)
	}
	return &apiClient{
		name:    name,
		client:  client,
		limiter: limiter,
		breaker: circuitbreaker.New(circuitbreaker.ProviderConfig(name, breakerSuccess)),
		header:  header,
	}
}

// breakerSuccess treats answers that say nothing about provider health as
// successes.
func breakerSuccess(err error) bool {
	switch {
	case err == nil, errors.Is(err, scrape.ErrNoData), errors.Is(err, scrape.ErrInvalidReference):
		return true
	case errors.Is(err, scrape.ErrProviderUnavailable), errors.Is(err, scrape.ErrProvider):
		return false
	default:
		// cancelled by the caller
		return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
	}
}

// getJSON fetches url and decodes the JSON body into v.
func (c *apiClient) getJSON(ctx context.Context, url string, v any) (*response, error) {
	resp, err := c.get(ctx, url, "application/json")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty body", scrape.ErrNoData, c.name)
	}
	if err := decodeBody(c.name, resp.Body, v); err != nil {
		return nil, err
	}
	return resp, nil
}

// get fetches url and returns the response if its status is 2xx.
func (c *apiClient) get(ctx context.Context, url, accept string) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: wait for rate limiter: %w", c.name, err)
	}

	resp, err := circuitbreaker.Run(c.breaker, func() (*response, error) {
		return c.do(ctx, url, accept)
	})
	if err != nil {
		if circuitbreaker.IsOpenError(err) {
			metrics.RecordProviderRequest(c.name, resultRejected)
			logging.FromContext(ctx).Warn("provider circuit breaker open, request rejected",
				slog.String("provider", c.name),
				slog.String("state", c.breaker.State().String()))
			return nil, fmt.Errorf("%w: %s: %w", scrape.ErrProviderUnavailable, c.name, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *apiClient) do(ctx context.Context, url, accept string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: create request: %w", scrape.ErrInvalidReference, c.name, err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: request: %w", c.name, ctx.Err())
		}
		metrics.RecordProviderRequest(c.name, resultUnavailable)
		return nil, fmt.Errorf("%w: %s: request: %w", scrape.ErrProviderUnavailable, c.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		metrics.RecordProviderRequest(c.name, resultUnavailable)
		return nil, fmt.Errorf("%w: %s: read body: %w", scrape.ErrProviderUnavailable, c.name, err)
	}

	if err := c.classify(resp, body); err != nil {
		return nil, err
	}
	metrics.RecordProviderRequest(c.name, resultSuccess)
	return &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// classify maps a non-2xx status to the scrape error taxonomy.
func (c *apiClient) classify(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	httpErr := &retry.HTTPError{
		StatusCode: code,
		Message:    logging.Truncate(fmt.Sprintf("%s: %s", http.StatusText(code), string(body)), 300),
	}

	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		metrics.RecordProviderRequest(c.name, resultNoData)
		return fmt.Errorf("%w: %s: %w", scrape.ErrNoData, c.name, httpErr)
	case retry.IsTransientStatus(code), isRateLimited(resp):
		metrics.RecordProviderRequest(c.name, resultUnavailable)
		return fmt.Errorf("%w: %s: %w", scrape.ErrProviderUnavailable, c.name, httpErr)
	default:
		metrics.RecordProviderRequest(c.name, resultError)
		return fmt.Errorf("%w: %s: %w", scrape.ErrProvider, c.name, httpErr)
	}
}

// isRateLimited recognises a 403 caused by an exhausted quota, as GitHub
// reports it.
func isRateLimited(resp *http.Response) bool {
	if resp.StatusCode != http.StatusForbidden {
		return false
	}
	remaining, err := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining"))
	return err == nil && remaining == 0
}

// decodeBody decodes a JSON body, classifying failures as provider errors.
func decodeBody(provider string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: decode response: %w", scrape.ErrProvider, provider, err)
	}
	return nil
}
