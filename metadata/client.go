package metadata

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

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/steffengr/feature-store-api/entity"
)

// Config holds the connection settings of the metadata service.
type Config struct {
	// BaseURL is the root of the metadata API, e.g.
	// https://fs.example.com/api.
	BaseURL string
	// APIKey authenticates every request.
	APIKey string
	// Timeout bounds a single request attempt; zero means 30s.
	Timeout time.Duration
}

// Client is a thin JSON client for the metadata service. Requests are
// retried on transient failures; non-2xx responses are mapped to
// entity.RemoteError carrying the backend error message.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	logger  *zap.Logger
}

type errorResponse struct {
	ErrorCode int    `json:"errorCode"`
	ErrorMsg  string `json:"errorMsg"`
	UserMsg   string `json:"usrMsg"`
}

func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("metadata: base URL is not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := retryablehttp.NewClient()
	httpClient.Logger = nil
	httpClient.RetryMax = 3
	if cfg.Timeout > 0 {
		httpClient.HTTPClient.Timeout = cfg.Timeout
	} else {
		httpClient.HTTPClient.Timeout = 30 * time.Second
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}, nil
}

// Do issues one request against the metadata service. body and out may be
// nil; out is decoded from the response JSON. op names the operation in
// errors.
func (c *Client) Do(ctx context.Context, op, method, path string, query url.Values, body interface{}, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("metadata: failed to encode %s request: %w", op, err)
		}
		payload = bytes.NewReader(encoded)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return fmt.Errorf("metadata: failed to build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "ApiKey "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &entity.RemoteError{Op: op, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &entity.RemoteError{Op: op, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		remoteErr := &entity.RemoteError{Op: op, StatusCode: resp.StatusCode}
		var backendErr errorResponse
		if err := json.Unmarshal(raw, &backendErr); err == nil && backendErr.ErrorMsg != "" {
			remoteErr.Message = backendErr.ErrorMsg
			if backendErr.UserMsg != "" {
				remoteErr.Message += ": " + backendErr.UserMsg
			}
		} else {
			remoteErr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Error("metadata service request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return remoteErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return &entity.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: "undecodable response body", Cause: err}
		}
	}
	return nil
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	return c.Do(ctx, op, http.MethodGet, path, query, nil, out)
}

// Post issues a POST request.
func (c *Client) Post(ctx context.Context, op, path string, body, out interface{}) error {
	return c.Do(ctx, op, http.MethodPost, path, nil, body, out)
}

// Put issues a PUT request.
func (c *Client) Put(ctx context.Context, op, path string, query url.Values, body, out interface{}) error {
	return c.Do(ctx, op, http.MethodPut, path, query, body, out)
}
