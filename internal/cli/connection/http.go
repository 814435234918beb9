package connection

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yndnr/meshkv/internal/infra/buildinfo"
	"github.com/yndnr/meshkv/internal/server/httpserver/handler"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// APIError is an error envelope returned by the node.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// HTTPClient talks to a node's HTTP API.
type HTTPClient struct {
	baseURL string
	scheme  string
	client  *http.Client
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTLSConfig talks HTTPS using cfg. A bare "host:port" server gets
// the https scheme.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(c *HTTPClient) {
		if cfg == nil {
			return
		}
		c.client.Transport = &http.Transport{TLSClientConfig: cfg}
		c.scheme = "https://"
	}
}

// NewHTTPClient creates a client for server ("host:port" or a URL).
func NewHTTPClient(server string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		client: &http.Client{Timeout: DefaultTimeout},
		scheme: "http://",
	}
	for _, opt := range opts {
		opt(c)
	}

	c.baseURL = strings.TrimRight(server, "/")
	if !strings.HasPrefix(c.baseURL, "http://") && !strings.HasPrefix(c.baseURL, "https://") {
		c.baseURL = c.scheme + c.baseURL
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

// Status fetches GET /v1/status.
func (c *HTTPClient) Status(ctx context.Context) (*handler.StatusResponse, error) {
	var out handler.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List fetches every visible entry.
func (c *HTTPClient) List(ctx context.Context) (map[string]string, error) {
	var out handler.KVResponse
	if err := c.do(ctx, http.MethodGet, "/v1/kv", nil, &out); err != nil {
		return nil, err
	}
	if out.Entries == nil {
		out.Entries = map[string]string{}
	}
	return out.Entries, nil
}

// Get fetches one key.
func (c *HTTPClient) Get(ctx context.Context, key string) (string, error) {
	var out handler.EntryResponse
	if err := c.do(ctx, http.MethodGet, keyPath(key), nil, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

// Put writes one key.
func (c *HTTPClient) Put(ctx context.Context, key, value string) error {
	return c.do(ctx, http.MethodPut, keyPath(key), handler.PutRequest{Value: value}, nil)
}

// Delete removes one key.
func (c *HTTPClient) Delete(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, keyPath(key), nil, nil)
}

func keyPath(key string) string {
	return "/v1/kv/" + url.PathEscape(key)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, data any) error {
	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "meshkv-node/"+buildinfo.Get().Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	return ParseResponse(resp, data)
}

// ParseResponse decodes the response envelope. On success the envelope's
// data field is decoded into target; errors become *APIError.
func ParseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var env struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Code, apiErr.Message = env.Code, env.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("parse response: %w", decodeErr)
	}
	if target != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("parse response data: %w", err)
		}
	}
	return nil
}
