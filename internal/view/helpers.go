package view

import (
	"fmt"
	"strings"
	"time"
)

// WeatherCodes maps the forecast API's integer weather codes to
// human-readable descriptions.
var WeatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Fog",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Snow",
	73: "Moderate snow",
	75: "Heavy snow",
	80: "Showers",
	81: "Heavy showers",
	95: "Thunderstorm",
	99: "Severe thunderstorm",
}

// Helpers is the bundle of formatting functions handed to the template
// at construction time. Explicit rather than registered globally so tests
// and the renderer share one definition.
type Helpers struct{}

// CToF converts Celsius to Fahrenheit. Exact, no rounding.
func (Helpers) CToF(c float64) float64 {
	return c*9/5 + 32
}

// FormatDate renders a "2006-01-02" date as "Mon, Jan 02"
// (e.g. "2024-03-05" -> "Tue, Mar 05"). Unparseable input is returned unchanged.
func (Helpers) FormatDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("Mon, Jan 02")
}

// SliceTime returns the time-of-day portion of an ISO datetime string,
// i.e. everything after the first "T". Input without a "T" is returned unchanged.
func (Helpers) SliceTime(s string) string {
	if _, after, ok := strings.Cut(s, "T"); ok {
		return after
	}
	return s
}

// DescribeCode looks up a weather code description, falling back to "Unknown".
func (Helpers) DescribeCode(code int) string {
	if desc, ok := WeatherCodes[code]; ok {
		return desc
	}
	return "Unknown"
}

// FormatTemp renders a temperature with one decimal place and unit suffix.
func (Helpers) FormatTemp(v float64, units string) string {
	suffix := "°C"
	if strings.EqualFold(units, "fahrenheit") || strings.EqualFold(units, "imperial") {
		suffix = "°F"
	}
	return fmt.Sprintf("%.1f%s", v, suffix)
}
