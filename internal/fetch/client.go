package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pders01/ntrack/internal/config"
)

const defaultMaxBody = 5 * 1024 * 1024

var ErrHTTPStatus = errors.New("unexpected HTTP status")

// HTTPClient is the subset of *http.Client the fetchers need.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client performs the outbound GET and HEAD requests for classification and
// fetching. Bodies are size limited and non-2xx statuses are errors.
type Client struct {
	http         HTTPClient
	userAgent    string
	maxBody      int64
	probeTimeout time.Duration
}

func NewClient(cfg config.FetchConfig) *Client {
	return NewClientWith(&http.Client{Timeout: cfg.HTTPTimeout}, cfg)
}

// NewClientWith uses hc instead of a fresh http.Client. Tests pass stubs.
func NewClientWith(hc HTTPClient, cfg config.FetchConfig) *Client {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = 5 * time.Second
	}
	return &Client{
		http:         hc,
		userAgent:    cfg.UserAgent,
		maxBody:      maxBody,
		probeTimeout: probe,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return req, nil
}

// Get returns the body of a successful GET.
func (c *Client) Get(ctx context.Context, url, accept string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, url, accept)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w %d", ErrHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

// GetJSON decodes a successful GET into v.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	body, err := c.Get(ctx, url, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding JSON: %w", err)
	}
	return nil
}

// GetText returns the body of a successful GET as a string.
func (c *Client) GetText(ctx context.Context, url string) (string, error) {
	body, err := c.Get(ctx, url, "")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ContentType issues a HEAD request bounded by the probe timeout and returns
// the lower cased Content-Type header.
func (c *Client) ContentType(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodHead, url, "")
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("probing %s: %w", url, err)
	}
	resp.Body.Close()

	return strings.ToLower(resp.Header.Get("Content-Type")), nil
}
