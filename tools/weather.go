// Package tools holds the built-in agent tools: live weather lookup and
// streaming document generation.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/skosovsky/agentstream"
)

// TopicWeather is the data-event topic weather cards are published under.
const TopicWeather = "weather"

const (
	defaultGeocodeURL  = "https://geocoding-api.open-meteo.com/v1/search"
	defaultForecastURL = "https://api.open-meteo.com/v1/forecast"
)

// WeatherArgs is the input schema for the weather tool.
type WeatherArgs struct {
	Location string `json:"location" description:"The location to get the weather for"`
}

// WeatherResult holds current conditions for a resolved location.
type WeatherResult struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feelsLike"`
	Humidity    float64 `json:"humidity"`
	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	Conditions  string  `json:"conditions"`
}

// WeatherCard is the data-event payload rendered as a weather card.
type WeatherCard struct {
	WeatherResult
	Status string `json:"status"`
}

// WeatherConfig tunes the weather tool. The zero value uses the public
// Open-Meteo endpoints and http.DefaultClient.
type WeatherConfig struct {
	GeocodeURL  string
	ForecastURL string
	HTTPClient  *http.Client

	// CardID pins the data-event id for every lookup. When empty each call
	// publishes under a fresh random id, so multiple lookups in one exchange
	// each get their own card.
	CardID string
}

func (c *WeatherConfig) applyDefaults() {
	if c.GeocodeURL == "" {
		c.GeocodeURL = defaultGeocodeURL
	}
	if c.ForecastURL == "" {
		c.ForecastURL = defaultForecastURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// NewWeatherTool builds the weather tool. It geocodes the location, fetches
// current conditions, and publishes a weather card as a data event alongside
// the structured result.
func NewWeatherTool(cfg WeatherConfig, opts ...agentstream.ToolOption) (agentstream.Tool, error) {
	cfg.applyDefaults()
	defaults := []agentstream.ToolOption{
		agentstream.WithTimeout(15 * time.Second),
		agentstream.WithTags("weather", "live-data"),
	}
	return agentstream.NewStreamTool(
		"weather",
		"Get the current weather for a location",
		func(ctx context.Context, args WeatherArgs, emit agentstream.EmitFunc) (WeatherResult, error) {
			result, err := fetchWeather(ctx, cfg, args.Location)
			if err != nil {
				return WeatherResult{}, err
			}
			cardID := cfg.CardID
			if cardID == "" {
				cardID = uuid.NewString()
			}
			card := WeatherCard{WeatherResult: result, Status: "success"}
			if err := emit(TopicWeather, cardID, card); err != nil {
				return WeatherResult{}, err
			}
			return result, nil
		},
		append(defaults, opts...)...,
	)
}

type geocodeResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature         float64 `json:"temperature_2m"`
		ApparentTemperature float64 `json:"apparent_temperature"`
		RelativeHumidity    float64 `json:"relative_humidity_2m"`
		WindSpeed           float64 `json:"wind_speed_10m"`
		WindGusts           float64 `json:"wind_gusts_10m"`
		WeatherCode         int     `json:"weather_code"`
	} `json:"current"`
}

func fetchWeather(ctx context.Context, cfg WeatherConfig, location string) (WeatherResult, error) {
	geoURL := fmt.Sprintf("%s?name=%s&count=1", cfg.GeocodeURL, url.QueryEscape(location))
	var geo geocodeResponse
	if err := getJSON(ctx, cfg.HTTPClient, geoURL, &geo); err != nil {
		return WeatherResult{}, fmt.Errorf("geocoding %q: %w: %v", location, agentstream.ErrUpstream, err)
	}
	if len(geo.Results) == 0 {
		return WeatherResult{}, fmt.Errorf("location %q: %w", location, agentstream.ErrNotFound)
	}
	place := geo.Results[0]

	fcURL := fmt.Sprintf(
		"%s?latitude=%.4f&longitude=%.4f&current=temperature_2m,apparent_temperature,relative_humidity_2m,wind_speed_10m,wind_gusts_10m,weather_code",
		cfg.ForecastURL, place.Latitude, place.Longitude,
	)
	var fc forecastResponse
	if err := getJSON(ctx, cfg.HTTPClient, fcURL, &fc); err != nil {
		return WeatherResult{}, fmt.Errorf("forecast for %q: %w: %v", place.Name, agentstream.ErrUpstream, err)
	}

	return WeatherResult{
		Location:    place.Name,
		Temperature: fc.Current.Temperature,
		FeelsLike:   fc.Current.ApparentTemperature,
		Humidity:    fc.Current.RelativeHumidity,
		WindSpeed:   fc.Current.WindSpeed,
		WindGust:    fc.Current.WindGusts,
		Conditions:  weatherCodeLabel(fc.Current.WeatherCode),
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// WMO weather interpretation codes.
var weatherCodes = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Depositing rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	56: "Light freezing drizzle",
	57: "Dense freezing drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	66: "Light freezing rain",
	67: "Heavy freezing rain",
	71: "Slight snow fall",
	73: "Moderate snow fall",
	75: "Heavy snow fall",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	85: "Slight snow showers",
	86: "Heavy snow showers",
	95: "Thunderstorm",
	96: "Thunderstorm with slight hail",
	99: "Thunderstorm with heavy hail",
}

func weatherCodeLabel(code int) string {
	if label, ok := weatherCodes[code]; ok {
		return label
	}
	return "Unknown"
}
