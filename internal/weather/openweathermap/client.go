package openweathermap

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

	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/provider/resilience"
	"github.com/weatherflows/weatherflows/internal/secrets"
	"github.com/weatherflows/weatherflows/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "openweathermap"

	// DefaultBaseURL is the OpenWeatherMap API base URL.
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

	// maxErrorBody caps how much of an error response is kept for diagnosis.
	maxErrorBody = 512
)

var errMissingList = errors.New(`response has no "list" array`)

// ClientConfig holds configuration for the OpenWeatherMap client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to OpenWeatherMap API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with retries disabled.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger

	// Now is the clock used for FetchedAt (optional).
	Now func() time.Time
}

// Client fetches 5-day / 3-hour forecasts by city name.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new OpenWeatherMap client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		rc := resilience.DefaultClientConfig(ProviderName)
		rc.MaxRetries = 0
		httpClient = resilience.NewClient(rc)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
		now:        now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch issues one GET {base}/forecast?appid=..&q=.. request.
func (c *Client) Fetch(ctx context.Context, location string, apiKey secrets.Secret) (*weather.Forecast, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, weather.ErrEmptyLocation
	}
	if apiKey.IsZero() {
		return nil, weather.ErrEmptyAPIKey
	}

	query := url.Values{}
	query.Set("appid", apiKey.Reveal())
	query.Set("q", location)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/forecast?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &weather.FetchError{Err: redactKey(err, apiKey)}
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("city", location).
		Int("status", resp.StatusCode).
		Dur("duration", c.now().Sub(start)).
		Msg("forecast response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &weather.FetchError{
			StatusCode: resp.StatusCode,
			Body:       errorMessage(body),
		}
	}

	var owmResp forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&owmResp); err != nil {
		return nil, &weather.ParseError{Err: err}
	}
	if owmResp.List == nil {
		return nil, &weather.ParseError{Err: errMissingList}
	}

	return c.toForecast(&owmResp), nil
}

// toForecast converts the OpenWeatherMap response to the domain model.
func (c *Client) toForecast(resp *forecastResponse) *weather.Forecast {
	f := &weather.Forecast{
		City: weather.City{
			ID:       resp.City.ID,
			Name:     resp.City.Name,
			Country:  resp.City.Country,
			Timezone: resp.City.Timezone,
		},
		Intervals: make([]weather.Interval, 0, len(resp.List)),
		FetchedAt: c.now(),
	}

	for _, item := range resp.List {
		interval := weather.Interval{
			Dt:      item.Dt,
			DtTxt:   item.DtTxt,
			Snow:    toPrecipitation(item.Snow),
			Rain:    toPrecipitation(item.Rain),
			Weather: make([]weather.ConditionTag, 0, len(item.Weather)),
		}
		for _, w := range item.Weather {
			interval.Weather = append(interval.Weather, weather.ConditionTag{
				ID:          w.ID,
				Main:        w.Main,
				Description: w.Description,
			})
		}
		f.Intervals = append(f.Intervals, interval)
	}

	return f
}

func toPrecipitation(p *precipitation) *weather.Precipitation {
	if p == nil {
		return nil
	}
	return &weather.Precipitation{ThreeHour: p.ThreeHour}
}

// errorMessage extracts the "message" field OpenWeatherMap puts in error
// bodies, falling back to the raw text.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

// redactKey strips the key from transport errors, which embed the request URL.
func redactKey(err error, apiKey secrets.Secret) error {
	msg := err.Error()
	key := url.QueryEscape(apiKey.Reveal())
	if !strings.Contains(msg, key) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, key, apiKey.String()))
}

// OpenWeatherMap API response structures.

type forecastResponse struct {
	Cnt  int `json:"cnt"`
	List []struct {
		Dt      int64          `json:"dt"`
		DtTxt   string         `json:"dt_txt"`
		Snow    *precipitation `json:"snow"`
		Rain    *precipitation `json:"rain"`
		Weather []struct {
			ID          int    `json:"id"`
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
	} `json:"list"`
	City struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Country  string `json:"country"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

type precipitation struct {
	ThreeHour *float64 `json:"3h"`
}
