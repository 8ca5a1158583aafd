// Package api is the REST client for the portfolio chat backend.
package api

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

	"golang.org/x/oauth2"
)

// Error is a non-2xx response from the backend, carrying the server-supplied
// message when one was provided.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api: unexpected status %d", e.Status)
}

// Client talks to the backend REST API. Authenticated requests draw their
// bearer token from the injected TokenSource.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
}

// ClientOpts holds parameters for creating a Client.
type ClientOpts struct {
	BaseURL string
	Tokens  oauth2.TokenSource // optional; required only for authenticated calls
	HTTP    *http.Client       // optional; defaults to a 30s-timeout client
}

// NewClient creates a Client.
func NewClient(opts ClientOpts) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		tokens:  opts.Tokens,
	}, nil
}

// --- Auth ---

// Login exchanges email/password for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// AdminLogin authenticates against the admin endpoint.
func (c *Client) AdminLogin(ctx context.Context, email, password string) (*TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/admin/login", map[string]string{
		"email": email, "password": password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestOTP asks the backend to email a one-time registration code.
func (c *Client) RequestOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register/request-otp", map[string]string{
		"email": email,
	}, nil, false)
}

// VerifyOTP completes registration with the emailed code and returns tokens
// for the new account.
func (c *Client) VerifyOTP(ctx context.Context, email, code, name, password string) (*TokenResponse, error) {
	var resp TokenResponse
	err := c.do(ctx, http.MethodPost, "/api/auth/register/verify", map[string]string{
		"email": email, "code": code, "name": name, "password": password,
	}, &resp, false)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// --- Profile ---

// GetProfile fetches the authenticated user's profile.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &p, true); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile applies a partial profile update and returns the new profile.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodPut, "/api/profile", upd, &p, true); err != nil {
		return nil, err
	}
	return &p, nil
}

// --- Portfolio ---

// ListHoldings returns all positions in the user's portfolio.
func (c *Client) ListHoldings(ctx context.Context) ([]Holding, error) {
	var hs []Holding
	if err := c.do(ctx, http.MethodGet, "/api/portfolio/holdings", nil, &hs, true); err != nil {
		return nil, err
	}
	return hs, nil
}

// AddHolding adds a position and returns it with its server-assigned ID.
func (c *Client) AddHolding(ctx context.Context, nh NewHolding) (*Holding, error) {
	var h Holding
	if err := c.do(ctx, http.MethodPost, "/api/portfolio/holdings", nh, &h, true); err != nil {
		return nil, err
	}
	return &h, nil
}

// RemoveHolding deletes a position by ID.
func (c *Client) RemoveHolding(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/portfolio/holdings/"+url.PathEscape(id), nil, nil, true)
}

// --- Chats ---

// ListChats returns the user's chats, newest first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &chats, true); err != nil {
		return nil, err
	}
	return chats, nil
}

// CreateChat starts a new chat.
func (c *Client) CreateChat(ctx context.Context, title string) (*Chat, error) {
	var chat Chat
	err := c.do(ctx, http.MethodPost, "/api/chats", map[string]string{"title": title}, &chat, true)
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// RenameChat updates a chat's title.
func (c *Client) RenameChat(ctx context.Context, id, title string) error {
	return c.do(ctx, http.MethodPatch, "/api/chats/"+url.PathEscape(id),
		map[string]string{"title": title}, nil, true)
}

// DeleteChat removes a chat and its server-side history.
func (c *Client) DeleteChat(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/chats/"+url.PathEscape(id), nil, nil, true)
}

// --- Admin ---

// GetAdminStats fetches the usage summary. Requires an admin token.
func (c *Client) GetAdminStats(ctx context.Context) (*AdminStats, error) {
	var s AdminStats
	if err := c.do(ctx, http.MethodGet, "/api/admin/stats", nil, &s, true); err != nil {
		return nil, err
	}
	return &s, nil
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do executes one request. body is JSON-encoded when non-nil; out is
// JSON-decoded from the response when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		if c.tokens == nil {
			return fmt.Errorf("api: no credential source configured")
		}
		tok, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("api: credential: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{Status: resp.StatusCode}
		var eb errorBody
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16)); readErr == nil {
			if json.Unmarshal(data, &eb) == nil {
				if eb.Message != "" {
					apiErr.Message = eb.Message
				} else {
					apiErr.Message = eb.Error
				}
			}
		}
		return apiErr
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode response: %w", err)
		}
	}
	return nil
}
