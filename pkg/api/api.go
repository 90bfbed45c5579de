// Package api provides types and functions to interact with the gaswatch
// backend: nearby station search, station details, price history, the fuel
// catalog and the favorites endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout = 30 * time.Second
	DefaultBaseURL = "http://127.0.0.1:8080"

	requestIDHeader = "X-Request-Id"
	maxErrorBody    = 512
)

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status code: %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status code: %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Client talks to the gaswatch backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
	limiter    *rate.Limiter
	log        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the upper bound of every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithToken sends token as a bearer credential.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithRateLimit throttles the client to perSecond requests per second,
// allowing bursts of up to burst requests.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a new Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NearbyStations fetches one page of stations around the given coordinates.
func (c *Client) NearbyStations(ctx context.Context, p NearbyParams) (*NearbyPage, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	q.Set("radius", strconv.FormatFloat(p.Radius, 'f', -1, 64))
	if p.Sort != "" {
		q.Set("sort", string(p.Sort))
	}
	if p.Product != "" {
		q.Set("product", p.Product)
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	q.Set("offset", strconv.Itoa(p.Offset))

	var page NearbyPage
	if err := c.do(ctx, http.MethodGet, "/v1/stations/nearby", q, nil, &page); err != nil {
		return nil, fmt.Errorf("error fetching nearby stations: %w", err)
	}
	return &page, nil
}

// StationDetails fetches the full station identified by id.
func (c *Client) StationDetails(ctx context.Context, id string) (*Station, error) {
	var station Station
	if err := c.do(ctx, http.MethodGet, "/v1/stations/"+url.PathEscape(id), nil, nil, &station); err != nil {
		return nil, fmt.Errorf("error fetching station %s: %w", id, err)
	}
	return &station, nil
}

// PriceHistory fetches the price series of a station.
func (c *Client) PriceHistory(ctx context.Context, id string, p HistoryParams) ([]ProductPriceHistory, error) {
	q := url.Values{}
	if p.ProductID != "" {
		q.Set("product", p.ProductID)
	}
	if p.Days > 0 {
		q.Set("days", strconv.Itoa(p.Days))
	}

	var history []ProductPriceHistory
	path := "/v1/stations/" + url.PathEscape(id) + "/history"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &history); err != nil {
		return nil, fmt.Errorf("error fetching price history for %s: %w", id, err)
	}
	return history, nil
}

// FuelTypes fetches the fuel catalog.
func (c *Client) FuelTypes(ctx context.Context) ([]FuelType, error) {
	var types []FuelType
	if err := c.do(ctx, http.MethodGet, "/v1/fuel-types", nil, nil, &types); err != nil {
		return nil, fmt.Errorf("error fetching fuel types: %w", err)
	}
	return types, nil
}

// Favorites fetches every favorite of the current user.
func (c *Client) Favorites(ctx context.Context) ([]FavoriteEntry, error) {
	var entries []FavoriteEntry
	if err := c.do(ctx, http.MethodGet, "/v1/favorites", nil, nil, &entries); err != nil {
		return nil, fmt.Errorf("error fetching favorites: %w", err)
	}
	return entries, nil
}

// StationFavorites returns the favorited product ids of one station.
func (c *Client) StationFavorites(ctx context.Context, stationID string) ([]string, error) {
	var ids []string
	path := "/v1/favorites/stations/" + url.PathEscape(stationID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &ids); err != nil {
		return nil, fmt.Errorf("error fetching favorites for station %s: %w", stationID, err)
	}
	return ids, nil
}

// AddFavoritesBulk favorites productIDs at stationID.
func (c *Client) AddFavoritesBulk(ctx context.Context, stationID string, productIDs []string) error {
	body := BulkFavoritesRequest{GasStationID: stationID, ProductIDs: productIDs}
	if err := c.do(ctx, http.MethodPost, "/v1/favorites/bulk", nil, body, nil); err != nil {
		return fmt.Errorf("error adding favorites: %w", err)
	}
	return nil
}

// RemoveFavoritesBulk removes productIDs at stationID from the favorites.
func (c *Client) RemoveFavoritesBulk(ctx context.Context, stationID string, productIDs []string) error {
	body := BulkFavoritesRequest{GasStationID: stationID, ProductIDs: productIDs}
	if err := c.do(ctx, http.MethodPost, "/v1/favorites/bulk/remove", nil, body, nil); err != nil {
		return fmt.Errorf("error removing favorites: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("error waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return fmt.Errorf("error fetching data: %w", err)
	}
	defer resp.Body.Close()
	c.log.Debug("request done", "method", method, "path", path, "request_id", reqID,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			Path:   path,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(msg)),
		}
	}

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("error unmarshaling JSON: %w", err)
	}
	return nil
}
