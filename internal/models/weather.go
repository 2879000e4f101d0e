package models

// Location is a geocoded place: coordinates plus a human-readable label.
// Ephemeral, produced per request by the geocoding client.
type Location struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	DisplayName string  `json:"displayName"`
}

// Forecast is the structured payload returned by the forecast API.
// LocationName is not part of the wire format; the page handler attaches
// the geocoded display name after a successful fetch.
type Forecast struct {
	LocationName   string         `json:"locationName,omitempty"`
	Latitude       float64        `json:"latitude"`
	Longitude      float64        `json:"longitude"`
	Timezone       string         `json:"timezone"`
	CurrentWeather CurrentWeather `json:"current_weather"`
	Hourly         Hourly         `json:"hourly"`
	Daily          Daily          `json:"daily"`
}

// CurrentWeather holds the current-conditions sub-record.
type CurrentWeather struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
}

// Hourly holds the hourly series as parallel arrays, one entry per timestamp.
type Hourly struct {
	Time                     []string  `json:"time"`
	Temperature              []float64 `json:"temperature_2m"`
	ApparentTemperature      []float64 `json:"apparent_temperature"`
	WeatherCode              []int     `json:"weathercode"`
	PrecipitationProbability []int     `json:"precipitation_probability"`
}

// Daily holds the daily series as parallel arrays, one entry per date.
type Daily struct {
	Time                        []string  `json:"time"`
	WeatherCode                 []int     `json:"weathercode"`
	TemperatureMax              []float64 `json:"temperature_2m_max"`
	TemperatureMin              []float64 `json:"temperature_2m_min"`
	Sunrise                     []string  `json:"sunrise"`
	Sunset                      []string  `json:"sunset"`
	PrecipitationProbabilityMax []int     `json:"precipitation_probability_max"`
	RelativeHumidityMax         []int     `json:"relative_humidity_2m_max"`
}
