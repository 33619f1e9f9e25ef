package blockfrost

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Abdullah1738/tokenwell/offchain/cardano"
)

var (
	ErrMissingProjectID = errors.New("missing blockfrost project id")
	ErrAPIError         = errors.New("blockfrost api error")
)

// APIError is Blockfrost's error body: {"status_code","error","message"}.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Name       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s: %s", ErrAPIError.Error(), e.StatusCode, e.Name, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPIError }

// BaseURL is the Blockfrost endpoint for n.
func BaseURL(n cardano.Network) (string, error) {
	switch n {
	case cardano.NetworkPreview:
		return "https://cardano-preview.blockfrost.io/api/v0", nil
	case cardano.NetworkPreprod:
		return "https://cardano-preprod.blockfrost.io/api/v0", nil
	default:
		return "", fmt.Errorf("unsupported blockfrost network: %s", n)
	}
}

// ProjectIDEnv names the environment variable holding n's API key.
func ProjectIDEnv(n cardano.Network) string {
	return "BLOCKFROST_API_KEY_" + strings.ToUpper(n.String())
}

// ForNetwork builds a client for n. An empty baseURL selects the public
// Blockfrost endpoint for n.
func ForNetwork(n cardano.Network, baseURL, projectID string) (*Client, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: set %s", ErrMissingProjectID, ProjectIDEnv(n))
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		u, err := BaseURL(n)
		if err != nil {
			return nil, err
		}
		baseURL = u
	}
	return New(baseURL, projectID, nil), nil
}

type Client struct {
	baseURL   string
	projectID string
	http      *http.Client
}

func New(baseURL, projectID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		projectID: strings.TrimSpace(projectID),
		http:      httpClient,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// call performs one API request, retrying only on HTTP 429. A nil out
// discards the response body.
func (c *Client) call(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	if c == nil {
		return errors.New("nil blockfrost client")
	}
	if c.projectID == "" {
		return ErrMissingProjectID
	}

	backoff := 1 * time.Second
	maxBackoff := 10 * time.Second
	maxAttempts := 5

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return err
		}
		req.Header.Set("project_id", c.projectID)
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		_ = resp.Body.Close()
		if readErr != nil {
			return readErr
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = decodeAPIError(resp.StatusCode, raw)
			if attempt < maxAttempts {
				if err := sleepWithContext(ctx, backoff); err != nil {
					return err
				}
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}
			return lastErr
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeAPIError(resp.StatusCode, raw)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
		return nil
	}
	return lastErr
}

func decodeAPIError(status int, raw []byte) *APIError {
	var e APIError
	if err := json.Unmarshal(raw, &e); err != nil || e.StatusCode == 0 {
		return &APIError{StatusCode: status, Name: http.StatusText(status), Message: strings.TrimSpace(string(raw))}
	}
	return &e
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.call(ctx, http.MethodGet, path, "", nil, out)
}
