package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"weatherweb/internal/models"
	"weatherweb/internal/observability"
)

// Geocoder resolves a free-text place name to coordinates and a display name.
type Geocoder interface {
	Resolve(ctx context.Context, cityName string) (models.Location, error)
}

var (
	// ErrNotFound means the geocoder returned no results for the query.
	ErrNotFound = errors.New("location not found")
	// ErrUpstreamFailure covers transport errors, non-2xx responses, and
	// malformed bodies. Callers collapse it with ErrNotFound into a single
	// user-facing "city not found" outcome.
	ErrUpstreamFailure = errors.New("geocoding upstream failure")
)

// Client calls the geocoding search endpoint. One attempt per Resolve,
// no retries.
type Client struct {
	apiURL string
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a geocoding client for the given search endpoint URL.
func NewClient(apiURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("geocode: API URL is required")
	}
	return &Client{
		apiURL: apiURL,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Admin1    string  `json:"admin1"`
	Country   string  `json:"country"`
}

// Resolve issues one geocoding call restricted to the top English-labeled
// match. Every failure path logs the original query and the underlying
// error and returns a sentinel the handler maps to "city not found".
func (c *Client) Resolve(ctx context.Context, cityName string) (models.Location, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, cityName)
	if err != nil {
		observability.GeocodeCallsTotal.WithLabelValues("error").Inc()
		c.logFailure(cityName, err)
		return models.Location{}, fmt.Errorf("%w: build request: %v", ErrUpstreamFailure, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.GeocodeCallsTotal.WithLabelValues("error").Inc()
		observability.GeocodeDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		c.logFailure(cityName, err)
		return models.Location{}, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.GeocodeCallsTotal.WithLabelValues(status).Inc()
	observability.GeocodeDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
		c.logFailure(cityName, err)
		return models.Location{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logFailure(cityName, err)
		return models.Location{}, fmt.Errorf("%w: read response body: %v", ErrUpstreamFailure, err)
	}

	var apiResp searchResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		c.logFailure(cityName, err)
		return models.Location{}, fmt.Errorf("%w: parse response: %v", ErrUpstreamFailure, err)
	}

	if len(apiResp.Results) == 0 {
		c.logFailure(cityName, ErrNotFound)
		return models.Location{}, ErrNotFound
	}

	return mapResult(apiResp.Results[0]), nil
}

// buildRequest constructs the search request: top match only, English labels.
func (c *Client) buildRequest(ctx context.Context, cityName string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("name", cityName)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

// mapResult builds the display name as "<name>, <admin1>", falling back to
// the country when the administrative region is absent.
func mapResult(r searchResult) models.Location {
	region := r.Admin1
	if region == "" {
		region = r.Country
	}
	return models.Location{
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		DisplayName: fmt.Sprintf("%s, %s", r.Name, region),
	}
}

func (c *Client) logFailure(query string, err error) {
	if c.logger != nil {
		c.logger.Warn("geocoding failed", zap.String("query", query), zap.Error(err))
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
