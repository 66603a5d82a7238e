package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// BaseClient performs single JSON request/response exchanges. It never
// retries; retry and backoff belong to its callers.
type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewBaseClient creates a client rooted at baseURL. The underlying HTTP
// client has no timeout; callers bound individual requests with ctx.
func NewBaseClient(baseURL string) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client:  &http.Client{},
		headers: map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		},
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *BaseClient) SetHTTPClient(client *http.Client) {
	c.client = client
}

// BaseURL returns the root every endpoint is appended to.
func (c *BaseClient) BaseURL() string {
	return c.baseURL
}

// MakeRequest sends body (JSON-encoded when non-nil) and returns the decoded
// response payload. A 2xx response whose body is empty or not JSON yields an
// empty object. Any other outcome is a *RequestError.
func (c *BaseClient) MakeRequest(ctx context.Context, method, endpoint string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &RequestError{Code: CodeNetworkError, Err: err}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Code: CodeNetworkError, StatusCode: resp.StatusCode, Err: err}
	}

	payload, decoded := decodePayload(responseBody)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newRequestError(resp.StatusCode, payload)
	}

	if !decoded {
		return json.RawMessage(`{}`), nil
	}
	return json.RawMessage(responseBody), nil
}

func (c *BaseClient) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
}

func (c *BaseClient) Post(ctx context.Context, endpoint string, body interface{}) (json.RawMessage, error) {
	return c.MakeRequest(ctx, http.MethodPost, endpoint, body)
}

// decodePayload reports whether data is a JSON value and, when it is an
// object, returns it as a map for error inspection.
func decodePayload(data []byte) (map[string]interface{}, bool) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	var value interface{}
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	obj, _ := value.(map[string]interface{})
	return obj, true
}
