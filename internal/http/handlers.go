package http

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"weatherweb/internal/geocode"
	"weatherweb/internal/lifecycle"
	"weatherweb/internal/models"
	"weatherweb/internal/observability"
	"weatherweb/internal/view"
)

//go:embed templates/index.html
var templatesFS embed.FS

// ForecastProvider is the caching service layer as seen by the page handler.
type ForecastProvider interface {
	Forecast(ctx context.Context, lat, lon float64, units string) (models.Forecast, error)
}

// PageData is the complete render context for the weather page. Every field
// is always present; WeatherData, Current, and Daily are nil when no
// forecast was obtained.
type PageData struct {
	WeatherData   *models.Forecast
	Error         string
	LocationQuery string
	Units         string
	Now           time.Time
	Current       *models.CurrentWeather
	Daily         *models.Daily
}

// HealthConfig holds dependencies for the health handler.
type HealthConfig struct {
	// CachePing, when set, is called to check cache reachability. Used when backend is memcached.
	CachePing func() error
	StartTime time.Time
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	geocoder         geocode.Geocoder
	forecasts        ForecastProvider
	tmpl             *template.Template
	healthConfig     *HealthConfig
	logger           *zap.Logger
	defaultUnits     string
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. The helper bundle is installed into the
// template FuncMap here, explicitly, so the render context and tests share
// one definition.
func NewHandler(
	geocoder geocode.Geocoder,
	forecasts ForecastProvider,
	helpers view.Helpers,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	defaultUnits string,
) (*Handler, error) {
	tmpl, err := template.New("index.html").Funcs(template.FuncMap{
		"format_date":   helpers.FormatDate,
		"slice_time":    helpers.SliceTime,
		"c_to_f":        helpers.CToF,
		"describe_code": helpers.DescribeCode,
		"format_temp":   helpers.FormatTemp,
	}).ParseFS(templatesFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	if defaultUnits == "" {
		defaultUnits = "metric"
	}
	return &Handler{
		geocoder:     geocoder,
		forecasts:    forecasts,
		tmpl:         tmpl,
		healthConfig: healthConfig,
		logger:       logger,
		defaultUnits: defaultUnits,
	}, nil
}

// GetIndex handles GET /. Resolves the optional location query to
// coordinates, fetches the forecast through the caching service, and renders
// the page. Every failure path still renders: upstream errors become a
// user-facing message, never a 5xx.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("location"))
	units := r.URL.Query().Get("units")
	if units == "" {
		units = h.defaultUnits
	}

	data := PageData{
		LocationQuery: query,
		Units:         units,
	}
	outcome := "no_query"

	if query != "" {
		loc, err := h.geocoder.Resolve(r.Context(), query)
		if err != nil {
			// Not-found and transport failures collapse into one user-facing outcome.
			data.Error = fmt.Sprintf("Could not find '%s'. Try another city.", query)
			outcome = "not_found"
		} else {
			fc, err := h.forecasts.Forecast(r.Context(), loc.Latitude, loc.Longitude, units)
			if err != nil {
				data.Error = fmt.Sprintf("Could not fetch weather for '%s'.", loc.DisplayName)
				outcome = "fetch_failed"
			} else {
				fc.LocationName = loc.DisplayName
				data.WeatherData = &fc
				data.Current = &fc.CurrentWeather
				data.Daily = &fc.Daily
				outcome = "ok"
			}
		}
	}

	data.Now = displayNow(data.WeatherData, h.logger)

	observability.PageRendersTotal.WithLabelValues(outcome).Inc()
	h.renderPage(w, r, data)
}

// displayNow computes "now" in the forecast's timezone when one is present,
// falling back to server-local time.
func displayNow(fc *models.Forecast, logger *zap.Logger) time.Time {
	now := time.Now()
	if fc == nil || fc.Timezone == "" {
		return now
	}
	tz, err := time.LoadLocation(fc.Timezone)
	if err != nil {
		if logger != nil {
			logger.Warn("unknown forecast timezone", zap.String("timezone", fc.Timezone), zap.Error(err))
		}
		return now
	}
	return now.In(tz)
}

// renderPage executes the template into a buffer first so a render failure
// produces a clean 500 instead of a half-written page.
func (h *Handler) renderPage(w http.ResponseWriter, r *http.Request, data PageData) {
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, data); err != nil {
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("render page", zap.Error(err))
		} else if h.logger != nil {
			h.logger.Error("render page", zap.Error(err))
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weatherweb",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > cache unreachable > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if err := h.healthConfig.CachePing(); err != nil {
			return healthResult{"degraded", http.StatusServiceUnavailable, "cache_unreachable"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}
