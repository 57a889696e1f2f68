package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const oneCallBody = `{
  "timezone_offset": 3600,
  "current": {"dt": 1718013600, "temp": 21.4, "feels_like": 20.9, "humidity": 56, "wind_speed": 3.2,
              "weather": [{"description": "scattered clouds"}]},
  "daily": [
    {"dt": 1718013600, "temp": {"max": 24.1, "min": 13.0}, "humidity": 50, "weather": [{"description": "light rain"}]},
    {"dt": 1718100000, "temp": {"max": 26.5, "min": 14.2}, "humidity": 44, "weather": [{"description": "clear sky"}]}
  ]
}`

func fakeOpenWeather(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("appid") != "key" {
			http.Error(w, `{"cod":401,"message":"Invalid API key"}`, http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/geo/1.0/direct":
			if r.URL.Query().Get("q") != "Berlin,DE" {
				_, _ = w.Write([]byte(`[]`))
				return
			}
			_, _ = w.Write([]byte(`[{"name":"Berlin","lat":52.52,"lon":13.405}]`))
		case "/data/3.0/onecall":
			assert.Equal(t, "52.52", r.URL.Query().Get("lat"))
			assert.Equal(t, "13.405", r.URL.Query().Get("lon"))
			assert.Equal(t, "metric", r.URL.Query().Get("units"))
			_, _ = w.Write([]byte(oneCallBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, url, key string) *Client {
	t.Helper()
	c, err := NewClient(Config{APIKey: key, BaseURL: url + "/", Country: "DE"}, nil)
	require.NoError(t, err)
	return c
}

func TestForecast(t *testing.T) {
	srv := fakeOpenWeather(t)
	c := newClient(t, srv.URL, "key")

	f, err := c.Forecast(context.Background(), "Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", f.City)
	assert.Equal(t, "scattered clouds", f.Current.Description)
	assert.InDelta(t, 21.4, f.Current.Temp, 0.001)
	assert.Equal(t, 56, f.Current.Humidity)
	require.Len(t, f.Daily, 2)
	assert.Equal(t, "06-11", f.Daily[1].Date.Format("01-02"))
	assert.InDelta(t, 14.2, f.Daily[1].Min, 0.001)

	_, err = c.Forecast(context.Background(), "Atlantis")
	assert.ErrorIs(t, err, ErrCityNotFound)

	_, err = newClient(t, srv.URL, "wrong").Forecast(context.Background(), "Berlin")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	f := parseOneCall("Berlin", "metric", gjson.Parse(oneCallBody))

	today := Format(f, 0)
	assert.Contains(t, today, "## Weather for Berlin")
	assert.Contains(t, today, "### Today (2024-06-10)")
	assert.Contains(t, today, "| Conditions | Scattered clouds |")
	assert.Contains(t, today, "| Temperature | 21.4°C (feels like 20.9°C) |")

	week := Format(f, 7)
	assert.Contains(t, week, "### Next 2 days")
	assert.Contains(t, week, "| 06-10 | Light rain | 24.1/13.0 | 50% |")
	assert.Contains(t, week, "| 06-11 | Clear sky | 26.5/14.2 | 44% |")
}

func TestTool(t *testing.T) {
	srv := fakeOpenWeather(t)
	wt := NewTool(newClient(t, srv.URL, "key"), nil)

	out, err := wt.Call(context.Background(), map[string]any{"city": "Berlin", "days": float64(1)})
	require.NoError(t, err)
	assert.Contains(t, out, "### Next 1 days")
	assert.Contains(t, out, "Light rain")

	out, err = wt.Call(context.Background(), map[string]any{"city": "Atlantis"})
	require.NoError(t, err)
	assert.Equal(t, `No coordinates found for "Atlantis"; the weather could not be looked up.`, out)

	_, err = wt.Call(context.Background(), map[string]any{"city": "Berlin", "days": float64(30)})
	assert.Error(t, err, "days above the forecast range")
}

func TestToolWithoutKey(t *testing.T) {
	out, err := NewTool(nil, nil).Call(context.Background(), map[string]any{"city": "Berlin"})
	require.NoError(t, err)
	assert.Equal(t, NotConfiguredText, out)
}
