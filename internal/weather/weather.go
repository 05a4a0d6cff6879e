// Package weather reads current conditions from the open-meteo forecast API.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public open-meteo forecast endpoint.
const DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

// ErrInvalidCoordinates is returned for a latitude or longitude out of range.
var ErrInvalidCoordinates = errors.New("invalid coordinates")

// Current is the current-conditions block of a forecast.
type Current struct {
	Time             string  `json:"time"`
	TemperatureC     float64 `json:"temperatureC"`
	RelativeHumidity float64 `json:"relativeHumidity"`
	IsDay            bool    `json:"isDay"`
	PrecipitationMM  float64 `json:"precipitationMm"`
	Timezone         string  `json:"timezone"`
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time             string  `json:"time"`
		Temperature      float64 `json:"temperature_2m"`
		RelativeHumidity float64 `json:"relative_humidity_2m"`
		IsDay            int     `json:"is_day"`
		Precipitation    float64 `json:"precipitation"`
	} `json:"current"`
}

// Client calls the forecast API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// Current returns the current conditions at lat, lon.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Current, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, ErrInvalidCoordinates
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,is_day,precipitation")
	q.Set("timezone", "auto")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch weather: unexpected status %d", resp.StatusCode)
	}
	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("decode weather: %w", err)
	}
	return &Current{
		Time:             fr.Current.Time,
		TemperatureC:     fr.Current.Temperature,
		RelativeHumidity: fr.Current.RelativeHumidity,
		IsDay:            fr.Current.IsDay == 1,
		PrecipitationMM:  fr.Current.Precipitation,
		Timezone:         fr.Timezone,
	}, nil
}
