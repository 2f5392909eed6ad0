// Package shipment looks up courier-side shipment state, either through
// a Shiprocket-style JSON API or by scraping a public tracking page.
package shipment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reconagent/internal/domain"
	"reconagent/internal/ports"
)

// Client talks to the courier's external API.
type Client struct {
	baseURL  string
	email    string
	password string
	http     *http.Client
}

var _ ports.ShipmentTracker = (*Client)(nil)

// NewClient builds a reusable API client.
func NewClient(baseURL, email, password string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		email:    email,
		password: password,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// Authenticate exchanges credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	if c.email == "" || c.password == "" {
		return "", fmt.Errorf("shipment client misconfigured")
	}

	body, err := json.Marshal(map[string]string{
		"email":    c.email,
		"password": c.password,
	})
	if err != nil {
		return "", fmt.Errorf("marshal auth payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/external/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("auth error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("auth response carried no token")
	}
	return out.Token, nil
}

// Status fetches the courier's tracking record for one shipment.
func (c *Client) Status(ctx context.Context, shipmentID, token string) (domain.ShipmentStatus, error) {
	q := url.Values{}
	q.Set("shipment_id", shipmentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/external/courier/track?"+q.Encode(), nil)
	if err != nil {
		return domain.ShipmentStatus{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.ShipmentStatus{}, fmt.Errorf("track shipment %s: %w", shipmentID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ShipmentStatus{}, fmt.Errorf("track error for %s: %s", shipmentID, resp.Status)
	}

	var out struct {
		TrackingData struct {
			ShipmentStatus string `json:"shipment_status"`
		} `json:"tracking_data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ShipmentStatus{}, fmt.Errorf("decode tracking response: %w", err)
	}

	return domain.ShipmentStatus{Label: out.TrackingData.ShipmentStatus}, nil
}
