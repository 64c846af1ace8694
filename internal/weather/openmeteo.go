// Package weather fetches forecast snapshots from Open-Meteo and aggregates
// them into the WeatherSlice consumed by the recommendation engine.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"example.com/recommender/internal/domain"
)

// DefaultBaseURL is the public Open-Meteo forecast endpoint (no API key).
const DefaultBaseURL = "https://api.open-meteo.com"

// hourlyTimeLayout matches Open-Meteo's ISO timestamps, which carry no zone
// suffix; the request pins timezone=UTC so they are interpreted as UTC.
const hourlyTimeLayout = "2006-01-02T15:04"

// ErrBadResponse indicates the provider answered with an unusable payload.
var ErrBadResponse = errors.New("unexpected open-meteo response")

// Client talks to the Open-Meteo forecast API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures optional client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient constructs a Client. An empty baseURL selects the public API.
func NewClient(baseURL string, logger zerolog.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "weather").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type hourlySeries struct {
	Time          []string   `json:"time"`
	Temperature2m []float64  `json:"temperature_2m"`
	PrecipProb    []*float64 `json:"precipitation_probability"`
	WindSpeed10m  []float64  `json:"windspeed_10m"`
	IsDay         []float64  `json:"is_day"`
}

type forecastResponse struct {
	Hourly hourlySeries `json:"hourly"`
}

// Slice fetches the hourly forecast and averages it over
// [now, now+horizon). When the window selects no hours the first forecast
// hour is used instead, so a short horizon never fails the request.
func (c *Client) Slice(ctx context.Context, lat, lon float64, horizon time.Duration) (domain.WeatherSlice, error) {
	if horizon <= 0 {
		return domain.WeatherSlice{}, fmt.Errorf("horizon must be positive, got %s", horizon)
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("hourly", "temperature_2m,precipitation_probability,windspeed_10m,is_day")
	params.Set("timezone", "UTC")
	params.Set("forecast_days", "2")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+params.Encode(), nil)
	if err != nil {
		return domain.WeatherSlice{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WeatherSlice{}, fmt.Errorf("fetch forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.WeatherSlice{}, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var payload forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.WeatherSlice{}, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	h := payload.Hourly
	n := len(h.Time)
	if n == 0 || len(h.Temperature2m) != n || len(h.PrecipProb) != n || len(h.WindSpeed10m) != n || len(h.IsDay) != n {
		return domain.WeatherSlice{}, fmt.Errorf("%w: mismatched hourly arrays", ErrBadResponse)
	}

	start := c.now().UTC()
	end := start.Add(horizon)

	var slice domain.WeatherSlice
	count := 0.0
	for i, raw := range h.Time {
		ts, err := time.ParseInLocation(hourlyTimeLayout, raw, time.UTC)
		if err != nil {
			return domain.WeatherSlice{}, fmt.Errorf("%w: bad timestamp %q", ErrBadResponse, raw)
		}
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		accumulate(&slice, h, i)
		count++
	}

	// Rare, but possible when the horizon falls between hourly points.
	if count == 0 {
		c.logger.Debug().Time("start", start).Dur("horizon", horizon).Msg("empty forecast window, using first hour")
		accumulate(&slice, h, 0)
		count = 1
	}

	slice.TempC /= count
	slice.PrecipProb /= count
	slice.WindKmh /= count
	slice.IsDay /= count
	return slice, nil
}

func accumulate(slice *domain.WeatherSlice, h hourlySeries, i int) {
	slice.TempC += h.Temperature2m[i]
	// precipitation_probability can be null; treat as 0.
	if h.PrecipProb[i] != nil {
		slice.PrecipProb += *h.PrecipProb[i]
	}
	slice.WindKmh += h.WindSpeed10m[i]
	slice.IsDay += h.IsDay[i]
}
