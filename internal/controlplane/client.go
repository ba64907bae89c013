// Package controlplane is the HTTP client for the envgod control plane:
// the token exchange and the bundle fetch.
package controlplane

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/rusamer/envgod/internal/id"
	"github.com/rusamer/envgod/internal/log"
)

const (
	exchangePath = "/v1/auth/exchange"
	bundlePath   = "/v1/bundle"

	opExchange = "exchange"
	opBundle   = "bundle"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20

	// RequestIDHeader carries a per-request identifier for server-side
	// correlation.
	RequestIDHeader = "X-Request-Id"

	// DefaultTimeout applies when Client.Timeout is zero.
	DefaultTimeout = 5 * time.Second
)

// errRequestTimeout is the cancel cause of a per-request deadline.
var errRequestTimeout = errors.New("request timeout")

// Scope identifies the project, environment and service a token is for.
type Scope struct {
	Org         string `json:"orgId,omitempty"`
	Project     string `json:"projectId"`
	Environment string `json:"environment"`
	Service     string `json:"serviceId"`
}

// Client talks to one control plane.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client  // Optional; uses http.DefaultClient if nil
	Timeout    time.Duration // Per request; DefaultTimeout if zero
	UserAgent  string
}

type exchangeResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
}

type bundleResponse struct {
	Values map[string]string `json:"values"`
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Exchange trades a runtime key for a short-lived token scoped to scope.
// The returned token carries its absolute expiry.
func (c *Client) Exchange(ctx context.Context, runtimeKey string, scope Scope) (*oauth2.Token, error) {
	body, err := json.Marshal(scope)
	if err != nil {
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}

	var out exchangeResponse
	err = c.do(ctx, opExchange, http.MethodPost, exchangePath, body, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+runtimeKey)
		req.Header.Set("Content-Type", "application/json")
	}, &out)
	if err != nil {
		return nil, err
	}

	if out.Token == "" {
		return nil, fmt.Errorf("exchange response missing token")
	}
	expiry, err := time.Parse(time.RFC3339, out.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("exchange response has invalid expiresAt %q: %w", out.ExpiresAt, err)
	}

	return &oauth2.Token{
		AccessToken: out.Token,
		TokenType:   "Bearer",
		Expiry:      expiry,
	}, nil
}

// FetchBundle retrieves the current secret bundle. A 401 yields an error
// matching ErrUnauthorized.
func (c *Client) FetchBundle(ctx context.Context, token *oauth2.Token) (map[string]string, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("bundle fetch: %w", ErrUnauthorized)
	}

	var out bundleResponse
	err := c.do(ctx, opBundle, http.MethodGet, bundlePath, nil, token.SetAuthHeader, &out)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		return nil, err
	}

	if out.Values == nil {
		out.Values = map[string]string{}
	}
	return out.Values, nil
}

// do performs one time-bounded request and decodes a 200 JSON body into out.
func (c *Client) do(ctx context.Context, op, method, path string, body []byte, prepare func(*http.Request), out any) error {
	ctx, cancel := context.WithTimeoutCause(ctx, c.timeout(), errRequestTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", op, err)
	}
	requestID := id.New("req")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	prepare(req)

	start := time.Now()
	resp, err := c.httpClient().Do(req)
	if err != nil {
		log.Debug("control plane request failed", "op", op, "request_id", requestID, "error", err)
		return c.requestError(ctx, op, err)
	}
	defer resp.Body.Close()
	log.Debug("control plane response", "op", op, "request_id", requestID, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		if context.Cause(ctx) == errRequestTimeout {
			return &TimeoutError{Op: op, After: c.timeout()}
		}
		return fmt.Errorf("decoding %s response: %w", op, err)
	}
	return nil
}

func (c *Client) requestError(ctx context.Context, op string, err error) error {
	if context.Cause(ctx) == errRequestTimeout {
		return &TimeoutError{Op: op, After: c.timeout()}
	}
	return fmt.Errorf("%s request: %w", op, err)
}
