package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iotcoss/powermirror/internal/device"
)

// defaultTimeout bounds each backend request.
const defaultTimeout = 10 * time.Second

// tokenExpiryMargin forces a re-login slightly before the token expires.
const tokenExpiryMargin = 30 * time.Second

// Config holds backend client settings.
type Config struct {
	// BaseURL is the backend REST base, e.g. "http://backend:8000".
	BaseURL string

	// Username and Password are optional credentials. When empty, requests
	// are sent unauthenticated.
	Username string
	Password string

	// Timeout bounds each request. Zero uses the default.
	Timeout time.Duration
}

// Client calls the upstream backend's REST API: device power control,
// health polling, system-log history, and energy series.
//
// Authentication is lazy: the first request needing a token logs in, and
// the token is reused until shortly before its JWT expiry claim.
// All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// New creates a backend client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ControlPower requests a relay state change for a device.
//
// The call reports success or failure to the caller but never mutates
// mirrored state: the authoritative result arrives on the stream.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mac: Device MAC address
//   - state: Desired relay state, "on" or "off"
//
// Returns:
//   - error: ErrInvalidState for a bad token, ErrRequestFailed wrapped
//     with the status for a non-success response
func (c *Client) ControlPower(ctx context.Context, mac, state string) error {
	if state != device.RelayOn && state != device.RelayOff {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}

	body := controlRequest{MACAddress: mac, PowerState: state}
	resp, err := c.doJSON(ctx, http.MethodPost, "/api/devices/power/control", body)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: power control returned %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// Health polls the backend health endpoint.
//
// Alongside the backend's own report it measures the request round trip
// and derives a clock offset from server_time, assuming the response was
// generated at the midpoint of the round trip.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	start := time.Now()
	resp, err := c.doJSON(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	defer drainAndClose(resp.Body)
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, fmt.Errorf("%w: health returned %d", ErrRequestFailed, resp.StatusCode)
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("decoding health response: %w", err)
	}

	hs.Latency = latency
	if !hs.ServerTime.IsZero() {
		midpoint := start.Add(latency / 2)
		hs.ClockOffset = hs.ServerTime.Sub(midpoint)
	}
	return hs, nil
}

// SystemLogs fetches one page of server-side log history.
func (c *Client) SystemLogs(ctx context.Context, q LogQuery) (LogPage, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Size > 0 {
		params.Set("size", strconv.Itoa(q.Size))
	}
	if q.Type != "" {
		params.Set("type", q.Type)
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	path := "/api/system-logs/"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return LogPage{}, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return LogPage{}, fmt.Errorf("%w: system-logs returned %d", ErrRequestFailed, resp.StatusCode)
	}

	var page LogPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return LogPage{}, fmt.Errorf("decoding system-logs response: %w", err)
	}
	return page, nil
}

// ClearSystemLogs deletes the server-side log history.
func (c *Client) ClearSystemLogs(ctx context.Context) error {
	resp, err := c.doJSON(ctx, http.MethodDelete, "/api/system-logs/", nil)
	if err != nil {
		return err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: clearing system-logs returned %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// PowerSummary fetches the server-computed energy aggregates.
// These are pass-through figures; PowerMirror never recomputes them.
func (c *Client) PowerSummary(ctx context.Context) (device.EnergyAggregates, error) {
	resp, err := c.doJSON(ctx, http.MethodGet, "/api/power/summary", nil)
	if err != nil {
		return device.EnergyAggregates{}, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return device.EnergyAggregates{}, fmt.Errorf("%w: power summary returned %d", ErrRequestFailed, resp.StatusCode)
	}

	var agg device.EnergyAggregates
	if err := json.NewDecoder(resp.Body).Decode(&agg); err != nil {
		return device.EnergyAggregates{}, fmt.Errorf("decoding power summary: %w", err)
	}
	return agg, nil
}

// DailyPower fetches the daily energy series. An empty MAC requests the
// total across all devices.
func (c *Client) DailyPower(ctx context.Context, mac string) ([]device.DailyPowerPoint, error) {
	path := "/api/power/daily"
	if mac != "" {
		path += "?" + url.Values{"mac_address": {mac}}.Encode()
	}

	resp, err := c.doJSON(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: daily power returned %d", ErrRequestFailed, resp.StatusCode)
	}

	var points []device.DailyPowerPoint
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return nil, fmt.Errorf("decoding daily power series: %w", err)
	}
	return points, nil
}

// doJSON performs one authenticated request with an optional JSON body.
func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drainAndClose(resp.Body)
		// Token may have been revoked server-side; drop it so the next
		// call logs in again.
		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		return nil, ErrUnauthorized
	}
	return resp, nil
}

// ensureToken returns a valid bearer token, logging in when needed.
// Returns an empty token when no credentials are configured.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	if c.username == "" {
		return "", nil
	}

	c.mu.Lock()
	if c.token != "" && time.Now().Add(tokenExpiryMargin).Before(c.tokenExp) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	return c.login(ctx)
}

// login exchanges credentials for a bearer token and records its expiry.
func (c *Client) login(ctx context.Context) (string, error) {
	buf, err := json.Marshal(loginRequest{Username: c.username, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("encoding login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: login returned %d", ErrRequestFailed, resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if lr.AccessToken == "" {
		return "", fmt.Errorf("%w: login returned empty token", ErrRequestFailed)
	}

	c.mu.Lock()
	c.token = lr.AccessToken
	c.tokenExp = tokenExpiry(lr.AccessToken)
	c.mu.Unlock()

	return lr.AccessToken, nil
}

// tokenExpiry extracts the exp claim without verifying the signature; the
// backend verifies, the client only needs to know when to re-login.
// Tokens without a readable expiry get a conservative short lifetime.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(time.Minute)
}

// drainAndClose discards the remaining body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	io.Copy(io.Discard, body) //nolint:errcheck // Best effort drain
	body.Close()              //nolint:errcheck // Best effort close
}
