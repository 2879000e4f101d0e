package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"weatherweb/internal/models"
	"weatherweb/internal/observability"
)

// Fetcher retrieves a forecast for coordinates and a unit preference.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lon float64, units string) (models.Forecast, error)
}

// ErrUpstreamFailure covers transport errors, non-2xx responses, and
// malformed bodies from the forecast API.
var ErrUpstreamFailure = errors.New("forecast upstream failure")

// Field selections requested from the forecast API.
const (
	hourlyFields = "temperature_2m,apparent_temperature,weathercode,precipitation_probability"
	dailyFields  = "weathercode,temperature_2m_max,temperature_2m_min,sunrise,sunset,precipitation_probability_max,relative_humidity_2m_max"
)

// Client calls the forecast endpoint. One attempt per Fetch, no retries.
// Timezone resolution is delegated to the API ("auto").
type Client struct {
	apiURL string
	client *http.Client
	logger *zap.Logger
}

// NewClient creates a forecast client for the given endpoint URL.
func NewClient(apiURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(apiURL) == "" {
		return nil, fmt.Errorf("forecast: API URL is required")
	}
	return &Client{
		apiURL: apiURL,
		logger: logger,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Fetch requests current conditions plus the hourly and daily series for the
// coordinates. units is forwarded verbatim as the temperature_unit parameter;
// no whitelist is enforced here.
func (c *Client) Fetch(ctx context.Context, lat, lon float64, units string) (models.Forecast, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, lat, lon, units)
	if err != nil {
		observability.ForecastCallsTotal.WithLabelValues("error").Inc()
		c.logFailure(lat, lon, err)
		return models.Forecast{}, fmt.Errorf("%w: build request: %v", ErrUpstreamFailure, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ForecastCallsTotal.WithLabelValues("error").Inc()
		observability.ForecastDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		c.logFailure(lat, lon, err)
		return models.Forecast{}, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ForecastCallsTotal.WithLabelValues(status).Inc()
	observability.ForecastDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
		c.logFailure(lat, lon, err)
		return models.Forecast{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logFailure(lat, lon, err)
		return models.Forecast{}, fmt.Errorf("%w: read response body: %v", ErrUpstreamFailure, err)
	}

	var fc models.Forecast
	if err := json.Unmarshal(body, &fc); err != nil {
		c.logFailure(lat, lon, err)
		return models.Forecast{}, fmt.Errorf("%w: parse response: %v", ErrUpstreamFailure, err)
	}
	return fc, nil
}

func (c *Client) buildRequest(ctx context.Context, lat, lon float64, units string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("current_weather", "true")
	params.Set("hourly", hourlyFields)
	params.Set("daily", dailyFields)
	params.Set("timezone", "auto")
	params.Set("temperature_unit", units)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) logFailure(lat, lon float64, err error) {
	if c.logger != nil {
		c.logger.Warn("forecast fetch failed",
			zap.Float64("latitude", lat),
			zap.Float64("longitude", lon),
			zap.Error(err))
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
