package crm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/secnex/crm-gateway/metrics"
)

// Tokener supplies the Authorization header value for upstream calls.
type Tokener interface {
	Token(ctx context.Context) (string, error)
}

// Result is an upstream response passed through to the caller.
type Result struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client forwards gateway operations to the CRM API.
type Client struct {
	baseURL    string
	tokens     Tokener
	httpClient *http.Client
}

type ClientConfig struct {
	BaseURL string
	Tokens  Tokener
	// Timeout bounds each upstream call. Zero means no timeout.
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid CRM base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid CRM base URL %q: scheme and host are required", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(cfg.Timeout)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     cfg.Tokens,
		httpClient: httpClient,
	}, nil
}

// NewHTTPClient returns the client used for all CRM traffic.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Forward obtains a token and issues a single call for route. params fill the
// route's {name} placeholders; body is sent verbatim when non-nil.
func (c *Client) Forward(ctx context.Context, route Route, params map[string]string, body []byte) (*Result, error) {
	path, err := route.Expand(params)
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	return c.do(ctx, token, route, path, body)
}

func (c *Client) do(ctx context.Context, token string, route Route, path string, body []byte) (*Result, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	target := c.baseURL + path
	method := route.Method
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, &UpstreamError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveUpstream(route.Name, false, time.Since(start))
		log.WithError(err).Errorf("%s %s failed", method, path)
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	ok := err == nil && resp.StatusCode >= 200 && resp.StatusCode <= 299
	metrics.ObserveUpstream(route.Name, ok, time.Since(start))
	if err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	entry := log.WithFields(log.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).Round(time.Millisecond),
	})
	if !ok {
		entry.Warn("upstream call rejected")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: data}
	}
	entry.Debug("upstream call")

	return &Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        data,
	}, nil
}
