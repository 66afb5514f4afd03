// Package backend is the client for the remote marketplace API. The API
// itself is an external collaborator: this package only issues
// bearer-token JSON requests and decodes responses. No retries; a failed
// call surfaces as an error for the caller to present.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Client talks to the marketplace backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a backend client. token may be empty for the
// unauthenticated endpoints (health).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetToken replaces the bearer token after sign-in.
func (c *Client) SetToken(token string) {
	c.token = token
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("unmarshal response: %w (body: %s)", err, string(data))
		}
	}
	return nil
}

// Health checks the backend's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// AdminStats is the admin dashboard summary.
type AdminStats struct {
	Users        int             `json:"users"`
	Vendors      int             `json:"vendors"`
	Orders       int             `json:"orders"`
	Reservations int             `json:"reservations"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// GetAdminStats fetches the admin dashboard summary.
func (c *Client) GetAdminStats(ctx context.Context) (*AdminStats, error) {
	var stats AdminStats
	if err := c.do(ctx, http.MethodGet, "/api/admin/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AdminUser is a user row in the admin panel.
type AdminUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Suspended bool      `json:"suspended"`
	CreatedAt time.Time `json:"created_at"`
}

// ListAdminUsers fetches users for the admin panel.
func (c *Client) ListAdminUsers(ctx context.Context, limit int) ([]AdminUser, error) {
	var users []AdminUser
	path := "/api/admin/users"
	if limit > 0 {
		path += "?limit=" + url.QueryEscape(fmt.Sprint(limit))
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Transaction is a payment row in the admin panel.
type Transaction struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"` // order, reservation
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListTransactions fetches transactions for the admin panel.
func (c *Client) ListTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	var txs []Transaction
	path := "/api/admin/transactions"
	if limit > 0 {
		path += "?limit=" + url.QueryEscape(fmt.Sprint(limit))
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Product is a catalog entry served by the backend.
type Product struct {
	ID          string          `json:"id"`
	VendorID    string          `json:"vendor_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Available   bool            `json:"available"`
}

// ListProducts fetches the product catalog.
func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var products []Product
	if err := c.do(ctx, http.MethodGet, "/api/products", nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// CreateProduct creates a catalog entry.
func (c *Client) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	var created Product
	if err := c.do(ctx, http.MethodPost, "/api/products", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProduct updates a catalog entry.
func (c *Client) UpdateProduct(ctx context.Context, p Product) (*Product, error) {
	var updated Product
	if err := c.do(ctx, http.MethodPut, "/api/products/"+url.PathEscape(p.ID), p, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProduct deletes a catalog entry.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/products/"+url.PathEscape(id), nil, nil)
}

// ProfileUpdate is the payload for updating the remote user profile.
type ProfileUpdate struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UpdateUserProfile pushes profile changes to the backend.
func (c *Client) UpdateUserProfile(ctx context.Context, userID string, update ProfileUpdate) error {
	return c.do(ctx, http.MethodPut, "/api/users/"+url.PathEscape(userID), update, nil)
}
