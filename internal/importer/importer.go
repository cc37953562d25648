// Package importer fetches workflow text from remote URLs so users can
// estimate a workflow without pasting it.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrBadURL is returned for URLs with a disallowed scheme or host.
	ErrBadURL = errors.New("url not allowed")
	// ErrTooLarge is returned when the body exceeds the configured cap.
	ErrTooLarge = errors.New("workflow too large")
	// ErrUpstream is returned when the remote host answers non-2xx.
	ErrUpstream = errors.New("upstream error")
)

// maxRedirects caps the hops followed for a single fetch.
const maxRedirects = 5

// Options configures a Client.
type Options struct {
	Timeout      time.Duration
	MaxBytes     int64
	AllowedHosts []string
}

// Client downloads workflow files.
type Client struct {
	http     *http.Client
	maxBytes int64
	allowed  map[string]bool
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 100_000
	}
	allowed := make(map[string]bool, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = true
		}
	}
	c := &Client{
		maxBytes: opts.MaxBytes,
		allowed:  allowed,
	}
	c.http = &http.Client{
		Timeout: opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("importer: %w: too many redirects", ErrUpstream)
			}
			return c.check(req.URL)
		},
	}
	return c
}

// Fetch returns the text at rawURL.
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("importer.Fetch: build request: %w", err)
	}
	req.Header.Set("Accept", "text/plain, application/x-yaml, */*")
	resp, err := c.http.Do(req)
	if errors.Is(err, ErrBadURL) {
		return "", fmt.Errorf("importer.Fetch: redirect: %w", err)
	}
	if err != nil {
		return "", fmt.Errorf("importer.Fetch: %w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("importer.Fetch: %w: status %d", ErrUpstream, resp.StatusCode)
	}
	if resp.ContentLength > c.maxBytes {
		return "", fmt.Errorf("importer.Fetch: %w", ErrTooLarge)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("importer.Fetch: read: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return "", fmt.Errorf("importer.Fetch: %w", ErrTooLarge)
	}
	return string(body), nil
}

// resolve validates rawURL and rewrites GitHub blob links to raw content.
func (c *Client) resolve(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("importer: %w: %q", ErrBadURL, rawURL)
	}
	if err := c.check(u); err != nil {
		return "", err
	}

	if strings.EqualFold(u.Hostname(), "github.com") {
		// /owner/repo/blob/ref/path -> raw.githubusercontent.com/owner/repo/ref/path
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 4)
		if len(parts) == 4 && parts[2] == "blob" {
			u.Host = "raw.githubusercontent.com"
			u.Path = "/" + parts[0] + "/" + parts[1] + "/" + parts[3]
			u.RawPath = ""
			u.RawQuery = ""
		}
	}
	return u.String(), nil
}

// check applies the scheme and host rules to u. It runs for the requested
// URL and again for every redirect target.
func (c *Client) check(u *url.URL) error {
	if u.Host == "" {
		return fmt.Errorf("importer: %w: %q", ErrBadURL, u.String())
	}
	host := strings.ToLower(u.Hostname())

	switch u.Scheme {
	case "https":
	case "http":
		if !isLoopback(host) {
			return fmt.Errorf("importer: %w: plain http to %s", ErrBadURL, host)
		}
	default:
		return fmt.Errorf("importer: %w: scheme %q", ErrBadURL, u.Scheme)
	}
	if len(c.allowed) > 0 && !c.allowed[host] {
		return fmt.Errorf("importer: %w: host %s", ErrBadURL, host)
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
