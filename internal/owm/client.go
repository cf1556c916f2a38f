package owm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
)

const DefaultBaseURL = "https://api.openweathermap.org"

const (
	MsgEmptyCity = apperr.MsgEmptyCity
	MsgRemote    = apperr.MsgWeatherRemote
)

type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchForecast loads the 5 day / 3 hour forecast for city in metric units.
func (c *Client) FetchForecast(ctx context.Context, city string) (models.ForecastResult, error) {
	q := models.ForecastQuery{City: strings.TrimSpace(city), Credential: c.apiKey}
	if q.City == "" {
		return models.ForecastResult{}, apperr.Validation(MsgEmptyCity)
	}

	var body forecastResponse
	if err := c.fetchJSON(ctx, c.forecastURL(q), &body); err != nil {
		return models.ForecastResult{}, err
	}
	return body.result()
}

func (c *Client) forecastURL(q models.ForecastQuery) string {
	v := url.Values{}
	v.Set("q", q.City)
	v.Set("appid", q.Credential)
	v.Set("units", "metric")
	return c.baseURL + "/data/2.5/forecast?" + v.Encode()
}

func (c *Client) fetchJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.RemoteError{Provider: apperr.ProviderWeather, Message: MsgRemote, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return apperr.RemoteError{Provider: apperr.ProviderWeather, Message: MsgRemote, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.MalformedResponseError{Provider: apperr.ProviderWeather, Cause: err}
	}
	return nil
}

// forecastResponse mirrors the fields of /data/2.5/forecast this service reads.
// Pointers distinguish a missing value from a zero reading.
type forecastResponse struct {
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	List []struct {
		Dt   int64 `json:"dt"`
		Main *struct {
			Temp     *float64 `json:"temp"`
			Humidity *float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description *string `json:"description"`
		} `json:"weather"`
		Wind *struct {
			Speed *float64 `json:"speed"`
		} `json:"wind"`
	} `json:"list"`
}

func (r forecastResponse) result() (models.ForecastResult, error) {
	if r.City.Name == "" {
		return models.ForecastResult{}, apperr.Malformed(apperr.ProviderWeather, "missing city name")
	}
	if len(r.List) == 0 {
		return models.ForecastResult{}, apperr.Malformed(apperr.ProviderWeather, "empty forecast list")
	}

	entries := make([]models.ForecastEntry, 0, len(r.List))
	for i, item := range r.List {
		switch {
		case len(item.Weather) == 0 || item.Weather[0].Description == nil:
			return models.ForecastResult{}, apperr.Malformed(apperr.ProviderWeather, "entry %d: missing weather description", i)
		case item.Main == nil || item.Main.Temp == nil || item.Main.Humidity == nil:
			return models.ForecastResult{}, apperr.Malformed(apperr.ProviderWeather, "entry %d: missing temperature or humidity", i)
		case item.Wind == nil || item.Wind.Speed == nil:
			return models.ForecastResult{}, apperr.Malformed(apperr.ProviderWeather, "entry %d: missing wind speed", i)
		}

		var ts time.Time
		if item.Dt > 0 {
			ts = time.Unix(item.Dt, 0).UTC()
		}
		entries = append(entries, models.ForecastEntry{
			Time:        ts,
			Description: *item.Weather[0].Description,
			TempC:       *item.Main.Temp,
			WindSpeed:   *item.Wind.Speed,
			Humidity:    *item.Main.Humidity,
		})
	}

	return models.ForecastResult{Location: r.City.Name, Entries: entries}, nil
}
