// Package weather looks up current conditions and daily forecasts from
// OpenWeather and exposes that as the get_weather tool.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// MaxDays is the longest forecast One Call returns.
const MaxDays = 7

// ErrCityNotFound is returned when geocoding finds no match.
var ErrCityNotFound = errors.New("weather: city not found")

// Config locates the OpenWeather API.
type Config struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Country is an ISO 3166 code appended to geocoding queries ("CN").
	Country string `mapstructure:"country" yaml:"country"`
	// Units is standard, metric or imperial.
	Units   string        `mapstructure:"units" yaml:"units"`
	Lang    string        `mapstructure:"lang" yaml:"lang"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Conditions are the observed conditions at one point in time.
type Conditions struct {
	Time        time.Time
	Description string
	Temp        float64
	FeelsLike   float64
	Humidity    int
	WindSpeed   float64
}

// Day is one daily forecast entry.
type Day struct {
	Date        time.Time
	Description string
	Max, Min    float64
	Humidity    int
}

// Forecast is the answer for one place.
type Forecast struct {
	City    string
	Units   string
	Current Conditions
	Daily   []Day
}

// APIError is a non-2xx answer from OpenWeather.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openweather returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Forecaster resolves a city to its weather.
type Forecaster interface {
	Forecast(ctx context.Context, city string) (Forecast, error)
}

// Client talks to the geocoding and One Call 3.0 APIs.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ Forecaster = (*Client)(nil)

// NewClient validates cfg. A nil httpClient uses one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("weather: api_key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openweathermap.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Units == "" {
		cfg.Units = "metric"
	}
	if cfg.Lang == "" {
		cfg.Lang = "en"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Forecast geocodes city and fetches current and daily weather for it.
func (c *Client) Forecast(ctx context.Context, city string) (Forecast, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Forecast{}, errors.New("weather: city is required")
	}

	q := city
	if c.cfg.Country != "" {
		q += "," + c.cfg.Country
	}
	geo, err := c.get(ctx, "/geo/1.0/direct", url.Values{"q": {q}, "limit": {"1"}})
	if err != nil {
		return Forecast{}, err
	}
	place := geo.Get("0")
	if !place.Exists() {
		return Forecast{}, fmt.Errorf("%w: %s", ErrCityNotFound, city)
	}

	data, err := c.get(ctx, "/data/3.0/onecall", url.Values{
		"lat":     {strconv.FormatFloat(place.Get("lat").Float(), 'f', -1, 64)},
		"lon":     {strconv.FormatFloat(place.Get("lon").Float(), 'f', -1, 64)},
		"units":   {c.cfg.Units},
		"lang":    {c.cfg.Lang},
		"exclude": {"minutely,hourly,alerts"},
	})
	if err != nil {
		return Forecast{}, err
	}
	return parseOneCall(city, c.cfg.Units, data), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (gjson.Result, error) {
	params.Set("appid", c.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("openweather request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("openweather response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gjson.Result{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("openweather returned invalid JSON: %.200s", body)
	}
	return gjson.ParseBytes(body), nil
}

func parseOneCall(city, units string, data gjson.Result) Forecast {
	loc := time.FixedZone("", int(data.Get("timezone_offset").Int()))
	at := func(r gjson.Result) time.Time { return time.Unix(r.Get("dt").Int(), 0).In(loc) }

	cur := data.Get("current")
	f := Forecast{
		City:  city,
		Units: units,
		Current: Conditions{
			Time:        at(cur),
			Description: cur.Get("weather.0.description").String(),
			Temp:        cur.Get("temp").Float(),
			FeelsLike:   cur.Get("feels_like").Float(),
			Humidity:    int(cur.Get("humidity").Int()),
			WindSpeed:   cur.Get("wind_speed").Float(),
		},
	}
	data.Get("daily").ForEach(func(_, d gjson.Result) bool {
		f.Daily = append(f.Daily, Day{
			Date:        at(d),
			Description: d.Get("weather.0.description").String(),
			Max:         d.Get("temp.max").Float(),
			Min:         d.Get("temp.min").Float(),
			Humidity:    int(d.Get("humidity").Int()),
		})
		return len(f.Daily) < MaxDays
	})
	return f
}

func unitSymbols(units string) (temp, speed string) {
	switch units {
	case "imperial":
		return "°F", "mph"
	case "standard":
		return "K", "m/s"
	default:
		return "°C", "m/s"
	}
}

// Format renders f as markdown: the current conditions when days is zero,
// otherwise a table of the next days (at most MaxDays).
func Format(f Forecast, days int) string {
	temp, speed := unitSymbols(f.Units)
	var b strings.Builder
	fmt.Fprintf(&b, "## Weather for %s\n\n", f.City)

	if days <= 0 {
		c := f.Current
		fmt.Fprintf(&b, "### Today (%s)\n\n", c.Time.Format("2006-01-02"))
		b.WriteString("| Metric | Value |\n|----|----|\n")
		fmt.Fprintf(&b, "| Conditions | %s |\n", capitalize(c.Description))
		fmt.Fprintf(&b, "| Temperature | %.1f%s (feels like %.1f%s) |\n", c.Temp, temp, c.FeelsLike, temp)
		fmt.Fprintf(&b, "| Humidity | %d%% |\n", c.Humidity)
		fmt.Fprintf(&b, "| Wind | %.1f %s |\n", c.WindSpeed, speed)
	} else {
		days = min(days, MaxDays, len(f.Daily))
		fmt.Fprintf(&b, "### Next %d days\n\n", days)
		fmt.Fprintf(&b, "| Date | Conditions | High/Low (%s) | Humidity |\n|----|----|----|----|\n", temp)
		for _, d := range f.Daily[:days] {
			fmt.Fprintf(&b, "| %s | %s | %.1f/%.1f | %d%% |\n", d.Date.Format("01-02"), capitalize(d.Description), d.Max, d.Min, d.Humidity)
		}
	}

	b.WriteString("\n*Source: [OpenWeather](https://openweathermap.org/)*")
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
