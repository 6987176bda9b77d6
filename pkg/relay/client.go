// Package relay is the client for the backend endpoints that track push
// subscriptions. Every call is a single best-effort attempt; callers are
// expected to log failures and carry on.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/takutakahashi/agentapi-push/internal/domain/entities"
)

// Backend relay paths
const (
	StatusPath      = "/api/notifications/push/status"
	SubscribePath   = "/api/notifications/push/subscribe"
	UnsubscribePath = "/api/notifications/push/unsubscribe"
)

// DefaultTimeout is the HTTP client timeout used when none is supplied
const DefaultTimeout = 30 * time.Second

// Keys are the base64 encoded subscription keys
type Keys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// SubscribeRequest represents the body of a subscribe relay call
type SubscribeRequest struct {
	Endpoint       string `json:"endpoint"`
	Keys           Keys   `json:"keys"`
	ExpirationTime *int64 `json:"expirationTime"`
}

// UnsubscribeRequest represents the body of an unsubscribe relay call
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     Keys   `json:"keys"`
}

// StatusResponse represents the backend's view of the subscription
type StatusResponse struct {
	IsSubscribed bool `json:"is_subscribed"`
}

// NewSubscribeRequest builds the relay body for sub
func NewSubscribeRequest(sub *entities.Subscription) SubscribeRequest {
	p256dh, auth := sub.EncodedKeys()
	return SubscribeRequest{
		Endpoint:       sub.Endpoint,
		Keys:           Keys{P256dh: p256dh, Auth: auth},
		ExpirationTime: sub.ExpirationMillis(),
	}
}

// NewUnsubscribeRequest builds the relay body for cancelling sub
func NewUnsubscribeRequest(sub *entities.Subscription) UnsubscribeRequest {
	p256dh, auth := sub.EncodedKeys()
	return UnsubscribeRequest{
		Endpoint: sub.Endpoint,
		Keys:     Keys{P256dh: p256dh, Auth: auth},
	}
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// Client talks to the backend relay endpoints
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a relay client for the backend at baseURL
func NewClient(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status asks the backend whether it holds a subscription for this user.
// Any status other than 200 is returned as an *HTTPError.
func (c *Client) Status(ctx context.Context) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, StatusPath, nil)
	if err != nil {
		return false, err
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return false, c.statusError(resp, StatusPath)
	}

	var status StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("%w: failed to decode status response: %v", entities.ErrRelayFailed, err)
	}
	return status.IsSubscribed, nil
}

// Subscribe tells the backend about a new or reused subscription
func (c *Client) Subscribe(ctx context.Context, req SubscribeRequest) error {
	return c.post(ctx, SubscribePath, req)
}

// Unsubscribe tells the backend a subscription is about to be cancelled
func (c *Client) Unsubscribe(ctx context.Context, req UnsubscribeRequest) error {
	return c.post(ctx, UnsubscribePath, req)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp, path)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrRelayFailed, err)
	}

	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to marshal request: %v", entities.ErrRelayFailed, err)
		}
		reader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", entities.ErrRelayFailed, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send request: %v", entities.ErrRelayFailed, err)
	}
	return resp, nil
}

func (c *Client) statusError(resp *http.Response, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		URL:        c.baseURL + path,
	}
}

func closeBody(resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Printf("[RELAY] Warning: failed to close response body: %v", err)
	}
}
