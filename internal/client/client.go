// Package client talks to the marketplace server over HTTP. It supplies the
// collaborators the feed loader and the listing wizard need on the client
// side: a page fetcher, a media uploader and a record creator.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kisan-sarthi/backend/internal/models"
)

const defaultHTTPTimeout = 60 * time.Second

// Error is a non-2xx response. Code and Message come from the server's
// error body when it has one.
type Error struct {
	Status  int
	Code    string
	Message string
	Field   string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Status == http.StatusUnauthorized
}

// Client is a marketplace API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token source, e.g. session.Store.Token.
func WithToken(fn func() string) Option {
	return func(c *Client) { c.token = fn }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		token:      func() string { return "" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and returns the response body of a 2xx response.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Field   string `json:"field"`
		}
		if json.Unmarshal(body, &payload) == nil {
			apiErr.Code, apiErr.Message, apiErr.Field = payload.Code, payload.Message, payload.Field
		}
		return nil, apiErr
	}
	return body, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	data, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// SendOTP asks the server to text a code to phone and returns the request id.
func (c *Client) SendOTP(ctx context.Context, phone string) (string, error) {
	var resp struct {
		RequestID string `json:"requestId"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/otp", map[string]string{"phone": phone}, &resp); err != nil {
		return "", err
	}
	return resp.RequestID, nil
}

// VerifyOTP exchanges a code for a session.
func (c *Client) VerifyOTP(ctx context.Context, requestID, code string) (*models.Session, error) {
	var sess models.Session
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/verify",
		map[string]string{"requestId": requestID, "code": code}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Session returns the session of the current token.
func (c *Client) Session(ctx context.Context) (*models.Session, error) {
	var sess models.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/session", nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Logout revokes the current token.
func (c *Client) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// GetListing returns one listing.
func (c *Client) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	if err := c.doJSON(ctx, http.MethodGet, "/api/listings/"+id, nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}
