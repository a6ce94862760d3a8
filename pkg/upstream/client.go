// Package upstream is the outbound HTTP client shared by the status,
// quota and diagnostic components.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"proxyconsole/pkg/config"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// Response bodies are read up to this many bytes.
	maxBodyBytes = 4 << 20

	defaultTimeout = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	RetryMax      int
	RetryWaitMin  time.Duration
	RetryWaitMax  time.Duration
	Timeout       time.Duration
	ProxyURL      string
	TLSSkipVerify bool
	// Direct disables every proxy, including the environment ones.
	Direct  bool
	Headers map[string]string
}

// Client wraps a retryable HTTP client with default headers and a per-call timeout.
type Client struct {
	http    *retryablehttp.Client
	headers map[string]string
	timeout time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewClient builds a client from options.
func NewClient(opts Options) (*Client, error) {
	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: opts.TLSSkipVerify, //nolint:gosec // user-controlled setting
		MinVersion:         tls.VersionTLS12,
	}

	switch {
	case opts.Direct:
		transport.Proxy = nil
	case opts.ProxyURL != "":
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", opts.ProxyURL, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Transport: transport}
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = opts.RetryWaitMin
	client.RetryWaitMax = opts.RetryWaitMax
	client.Logger = nil
	client.CheckRetry = retryOnTransportError
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := make(map[string]string, len(opts.Headers))
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{http: client, headers: headers, timeout: timeout}, nil
}

// FromConfig builds a client from the HTTP client and security settings.
// Direct clients ignore the configured outbound proxy; they are used to
// reach the local proxy service itself.
func FromConfig(cfg *config.Config, direct bool, headers map[string]string) (*Client, error) {
	timeout := cfg.Security.RequestTimeout
	if timeout <= 0 {
		timeout = cfg.HTTPClient.Timeout
	}

	return NewClient(Options{
		RetryMax:      cfg.HTTPClient.RetryCount,
		RetryWaitMin:  cfg.HTTPClient.RetryWaitTime,
		RetryWaitMax:  cfg.HTTPClient.RetryMaxWaitTime,
		Timeout:       timeout,
		ProxyURL:      cfg.OutboundProxy(),
		TLSSkipVerify: cfg.Security.TLSSkipVerify,
		Direct:        direct,
		Headers:       headers,
	})
}

// Do sends a request and reads the whole response. HTTP error statuses are
// returned as responses, not errors.
func (c *Client) Do(ctx context.Context, method, target string, body []byte, headers map[string]string) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody interface{}
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(reqCtx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// retryOnTransportError retries only when no response arrived, so HTTP
// error statuses reach the caller unchanged.
func retryOnTransportError(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error
	}
	return false, nil
}
