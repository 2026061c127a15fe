package env

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"airbrain/pkg/models"
)

// Client talks to the recon daemon's REST API.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// NewClient creates a REST client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("recon API URL is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type wifiSession struct {
	APs []models.AccessPoint `json:"aps"`
}

// AccessPoints fetches the wifi session snapshot.
func (c *Client) AccessPoints(ctx context.Context) ([]models.AccessPoint, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/session/wifi", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wifi session request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("wifi session request failed with status %s", resp.Status)
	}

	var session wifiSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode wifi session: %w", err)
	}
	return session.APs, nil
}

// Stations flattens all client stations out of the session snapshot.
func (c *Client) Stations(ctx context.Context) ([]models.Station, error) {
	aps, err := c.AccessPoints(ctx)
	if err != nil {
		return nil, err
	}
	var stations []models.Station
	for _, ap := range aps {
		stations = append(stations, ap.Clients...)
	}
	return stations, nil
}

// SetChannel restricts recon to one channel; ch <= 0 clears the
// restriction.
func (c *Client) SetChannel(ctx context.Context, ch int) error {
	if ch <= 0 {
		return c.Command(ctx, "wifi.recon.channel clear")
	}
	return c.Command(ctx, fmt.Sprintf("wifi.recon.channel %d", ch))
}

// StartRecon turns the wifi module on.
func (c *Client) StartRecon(ctx context.Context) error {
	return c.Command(ctx, "wifi.recon on")
}

// Command posts one session command to the daemon.
func (c *Client) Command(ctx context.Context, cmd string) error {
	body, err := json.Marshal(map[string]string{"cmd": cmd})
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/session", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("command %q failed: %w", cmd, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("command %q failed with status %s", cmd, resp.Status)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}
