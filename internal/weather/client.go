package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultBaseURL is the MET Norway location forecast API.
	DefaultBaseURL = "https://api.met.no/weatherapi/locationforecast/2.0"

	// CacheDuration throttles forecast queries.
	CacheDuration = 30 * time.Minute

	// MaxForecastDays is how far ahead the remote forecast is trusted.
	MaxForecastDays = 13
)

// Location is a point on earth.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point is one forecast temperature.
type Point struct {
	Time        time.Time
	Temperature float64
}

type forecastResponse struct {
	Properties struct {
		Timeseries []struct {
			Time time.Time `json:"time"`
			Data struct {
				Instant struct {
					Details struct {
						AirTemperature *float64 `json:"air_temperature"`
					} `json:"details"`
				} `json:"instant"`
			} `json:"data"`
		} `json:"timeseries"`
	} `json:"properties"`
}

// Client fetches temperature forecasts and answers point queries, falling
// back to History for times outside the forecast or when the API fails.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	location   Location
	history    *History
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	points    []Point
	fetchedAt time.Time
}

func NewClient(userAgent string, loc Location, history *History, logger *slog.Logger) *Client {
	if history == nil {
		history = DefaultHistory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		userAgent:  userAgent,
		location:   loc,
		history:    history,
		logger:     logger.With(slog.String("component", "weather")),
		now:        time.Now,
	}
}

// SetBaseURL sets the base URL for the API (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// AverageOutsideTemperature implements Provider.
func (c *Client) AverageOutsideTemperature(t time.Time) float64 {
	return c.Estimate(context.Background(), t)
}

// Estimate returns the most accurate temperature available for t: the
// interpolated remote forecast within MaxForecastDays, history otherwise.
func (c *Client) Estimate(ctx context.Context, t time.Time) float64 {
	fallback := c.history.AverageOutsideTemperature(t)
	days := t.Sub(c.now()).Hours() / 24
	if days < 0 || days > MaxForecastDays {
		return fallback
	}

	points, err := c.Forecast(ctx)
	if err != nil {
		return fallback
	}
	if v, ok := interpolate(points, t); ok {
		return v
	}
	return fallback
}

// Forecast returns the cached forecast, refreshing it once CacheDuration
// has passed since the last query.
func (c *Client) Forecast(ctx context.Context) ([]Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < CacheDuration {
		if len(c.points) == 0 {
			return nil, fmt.Errorf("no forecast data since %s", c.fetchedAt.Format(time.RFC3339))
		}
		return c.points, nil
	}

	// failed queries are throttled as well
	c.fetchedAt = now
	points, err := c.fetch(ctx)
	if err != nil {
		c.points = nil
		c.logger.Warn("forecast unavailable, using history", slog.Any("err", err))
		return nil, err
	}
	c.points = points
	c.logger.Info("fetched temperature forecast", slog.Int("points", len(points)))
	return points, nil
}

func (c *Client) fetch(ctx context.Context) ([]Point, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	u.Path += "/compact"
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(c.location.Latitude, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(c.location.Longitude, 'f', 4, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var fr forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	points := make([]Point, 0, len(fr.Properties.Timeseries))
	for _, ts := range fr.Properties.Timeseries {
		temp := ts.Data.Instant.Details.AirTemperature
		if temp == nil {
			continue
		}
		points = append(points, Point{Time: ts.Time.UTC(), Temperature: *temp})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("forecast contains no temperatures")
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return points, nil
}

// interpolate mixes the two forecast points surrounding t linearly.
func interpolate(points []Point, t time.Time) (float64, bool) {
	if len(points) == 0 || t.Before(points[0].Time) {
		if len(points) > 0 && points[0].Time.Sub(t) < time.Hour {
			return points[0].Temperature, true
		}
		return 0, false
	}
	idx := sort.Search(len(points), func(i int) bool {
		return points[i].Time.After(t)
	})
	if idx == len(points) {
		last := points[len(points)-1]
		if t.Equal(last.Time) {
			return last.Temperature, true
		}
		return 0, false
	}
	a, b := points[idx-1], points[idx]
	w := t.Sub(a.Time).Seconds() / b.Time.Sub(a.Time).Seconds()
	return a.Temperature*(1-w) + b.Temperature*w, true
}
