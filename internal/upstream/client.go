// Package upstream provides the adapter that issues calls against the
// GitHub REST API and normalizes responses and errors. Requests are built
// from resource path templates, credentials are attached per call, and
// every non-success status is mapped onto the core error taxonomy.
//
// The adapter performs no automatic retries: GitHub does not provide
// idempotency keys for all write operations, so retry policy is left to
// the caller.
package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ghproxy/internal/core"
	"ghproxy/internal/httpclient"
)

const (
	defaultAccept    = "application/vnd.github+json"
	apiVersionHeader = "X-GitHub-Api-Version"
	apiVersion       = "2022-11-28"
	defaultUserAgent = "ghproxy"
)

// AcceptRaw requests the raw file/blob media type instead of the JSON wrapper.
const AcceptRaw = "application/vnd.github.raw+json"

// Hooks receives one observation per upstream call, success or failure.
// A zero status code means the call failed before a response arrived.
type Hooks interface {
	ObserveUpstreamCall(method, resource string, statusCode int, duration time.Duration)
}

// Config holds the adapter configuration. Token is required: the absence
// of a credential is a configuration error raised before any network call.
type Config struct {
	BaseURL   string
	Token     string
	UserAgent string
	Hooks     Hooks
}

// Client is the upstream adapter. Calls are self-contained blocking I/O
// with no shared mutable state, safe to issue concurrently.
type Client struct {
	httpClient *http.Client
	config     Config
}

// New creates a new upstream adapter with a default HTTP client.
func New(cfg Config) (*Client, error) {
	return NewWithHTTPClient(cfg, httpclient.NewDefaultHTTPClient())
}

// NewWithHTTPClient creates a new upstream adapter with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if cfg.Token == "" {
		return nil, core.NewConfigurationError("upstream credential token is required")
	}
	if cfg.BaseURL == "" {
		return nil, core.NewConfigurationError("upstream base URL is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}, nil
}

// Do executes a request and returns the normalized response. HTTP 200 and
// 206 (partial content) are success; every other status becomes a
// ProxyError whose kind is derived from the status class.
func (c *Client) Do(ctx context.Context, req core.UpstreamRequest) (*core.UpstreamResponse, error) {
	httpReq, resource, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(ctx, req, resource, 0, time.Since(start))
		return nil, core.NewTransportError(resource, "failed to reach upstream: "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	c.observe(ctx, req, resource, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, core.NewTransportError(resource, "failed to read upstream response: "+err.Error(), err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, core.ParseUpstreamError(resource, resp.StatusCode, body)
	}

	return &core.UpstreamResponse{
		StatusCode:         resp.StatusCode,
		Body:               body,
		RateLimitRemaining: rateLimitRemaining(resp.Header),
		NextPage:           linkNext(resp.Header.Get("Link")),
	}, nil
}

// DoStream executes a request and returns the raw response body for
// streaming consumption. The caller must close the reader; abandoning it
// mid-stream is safe and simply discards the transfer.
func (c *Client) DoStream(ctx context.Context, req core.UpstreamRequest) (io.ReadCloser, error) {
	httpReq, resource, err := c.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.observe(ctx, req, resource, 0, time.Since(start))
		return nil, core.NewTransportError(resource, "failed to reach upstream: "+err.Error(), err)
	}
	c.observe(ctx, req, resource, resp.StatusCode, time.Since(start))

	if !isSuccess(resp.StatusCode) {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			body = []byte("failed to read error response")
		}
		_ = resp.Body.Close()
		return nil, core.ParseUpstreamError(resource, resp.StatusCode, body)
	}

	return resp.Body, nil
}

// buildRequest expands the resource template and constructs the HTTP
// request with credentials and default headers attached.
func (c *Client) buildRequest(ctx context.Context, req core.UpstreamRequest) (*http.Request, string, error) {
	resource, err := req.Expand()
	if err != nil {
		return nil, req.Resource, err
	}

	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + resource
	if len(req.Query) > 0 {
		q := url.Values{}
		for key, value := range req.Query {
			q.Set(key, value)
		}
		fullURL += "?" + q.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, nil)
	if err != nil {
		return nil, resource, core.NewInvalidRequestError(resource, 0, "failed to create request: "+err.Error(), err)
	}

	httpReq.Header.Set("Accept", defaultAccept)
	httpReq.Header.Set(apiVersionHeader, apiVersion)
	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, resource, nil
}

// observe emits the per-call structured log line and metrics observation.
// This is observability, not business state. Metrics are labeled by the
// resource template, not the expanded path, to keep cardinality bounded.
func (c *Client) observe(ctx context.Context, req core.UpstreamRequest, path string, statusCode int, latency time.Duration) {
	attrs := []any{
		"method", req.Method,
		"path", path,
		"status", statusCode,
		"latency_ms", latency.Milliseconds(),
	}
	if requestID := core.GetRequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	slog.Info("upstream call", attrs...)

	if c.config.Hooks != nil {
		c.config.Hooks.ObserveUpstreamCall(req.Method, req.Resource, statusCode, latency)
	}
}

func isSuccess(statusCode int) bool {
	return statusCode == http.StatusOK || statusCode == http.StatusPartialContent
}

// rateLimitRemaining extracts X-RateLimit-Remaining, -1 when absent or malformed.
func rateLimitRemaining(h http.Header) int {
	v := h.Get("X-RateLimit-Remaining")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// linkNext extracts the rel="next" target from an RFC 5988 Link header.
func linkNext(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		target := strings.Trim(strings.TrimSpace(section[0]), "<>")
		for _, param := range section[1:] {
			if strings.TrimSpace(param) == `rel="next"` {
				return target
			}
		}
	}
	return ""
}
