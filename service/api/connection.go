package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Connection interface {
	Request(ctx context.Context, endpoint *url.URL) (*http.Response, error)
}

type ClientHost struct {
	client  *http.Client
	scheme  string
	host    string
	limiter *rate.Limiter
}

type Client struct {
	Connection Connection
	ApiKey     string
}

// Request waits for the rate limiter, then issues a GET against the configured host.
// Non 2xx responses are returned as errors with the body closed.
func (conn *ClientHost) Request(ctx context.Context, endpoint *url.URL) (*http.Response, error) {
	if conn.limiter != nil {
		if err := conn.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	endpoint.Scheme = conn.scheme
	endpoint.Host = conn.host
	targetUrl := endpoint.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetUrl, nil)
	if err != nil {
		return nil, fmt.Errorf("error building request for %s: %w", endpoint.Path, err)
	}

	res, err := conn.client.Do(req)
	if err != nil {
		return nil, err
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		res.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s: %s", res.StatusCode, conn.host, strings.TrimSpace(string(body)))
	}

	return res, nil
}

// ClientFactory accepts a bare host (https is assumed) or a full base url.
// requestsPerMinute <= 0 disables rate limiting.
func ClientFactory(host string, apiKey string, timeout time.Duration, requestsPerMinute int) *Client {
	scheme := "https"
	if u, err := url.Parse(host); err == nil && u.Scheme != "" && u.Host != "" {
		scheme = u.Scheme
		host = u.Host
	}

	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}

	return &Client{
		Connection: &ClientHost{
			client:  &http.Client{Timeout: timeout},
			scheme:  scheme,
			host:    host,
			limiter: limiter,
		},
		ApiKey: apiKey,
	}
}
