// Package http implements domain.PortalClient against the JGI Genome Portal.
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/shared/config"
	"github.com/shamanpi/BAD-Mutations/shared/observability/types"
)

// Response texts the sign-on page uses to reject a login.
const (
	failedLoginText    = "Login and password do not match"
	expiredAccountText = "Sorry, your password has expired"
)

// maxPageSize bounds how much of the sign-on page and catalog is read into memory.
const maxPageSize = 64 << 20

// ClientConfig holds portal client configuration
type ClientConfig struct {
	SignOnURL    string
	CatalogURL   string
	DownloadBase string
	UserAgent    string

	// Timeout bounds sign on and catalog requests, and the wait for
	// download response headers. Download bodies are bounded by the caller's context.
	Timeout time.Duration

	RateLimit float64
	RateBurst int

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// ConfigFromPortal adapts the application portal settings.
func ConfigFromPortal(p config.PortalConfig) ClientConfig {
	return ClientConfig{
		SignOnURL:    p.SignOnURL,
		CatalogURL:   p.CatalogURL,
		DownloadBase: p.DownloadBase,
		UserAgent:    p.UserAgent,
		Timeout:      p.Timeout,
		RateLimit:    p.RateLimit,
		RateBurst:    p.RateBurst,
	}
}

// Client is a cookie-holding, rate-limited portal session.
type Client struct {
	client      *http.Client
	config      ClientConfig
	rateLimiter *rate.Limiter
	logger      types.Logger
}

// NewClient creates a new portal client. Nothing is sent until SignOn.
func NewClient(cfg ClientConfig, logger types.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "phytofetch/1.0"
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := cfg.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.ResponseHeaderTimeout = cfg.Timeout
		transport = t
	}

	return &Client{
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
		},
		config:      cfg,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:      logger,
	}, nil
}

// SignOn posts the credentials to the sign-on page. The session cookies it
// sets are reused by every later request.
func (c *Client) SignOn(ctx context.Context, username, password string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	c.logger.Debug(ctx, "Signing on to the genome portal", types.Fields{"username": username})

	form := url.Values{"login": {username}, "password": {password}}
	req, err := c.newRequest(ctx, http.MethodPost, c.config.SignOnURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewDomainError(domain.ErrSignOnFailed.Code, domain.ErrSignOnFailed.Message, err, false)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewDomainError(domain.ErrSignOnFailed.Code, domain.ErrSignOnFailed.Message, err, true)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return domain.NewDomainError(domain.ErrSignOnFailed.Code, "failed to read sign-on response", err, true)
	}

	switch {
	case bytes.Contains(page, []byte(failedLoginText)):
		return domain.ErrInvalidCredentials
	case bytes.Contains(page, []byte(expiredAccountText)):
		return domain.ErrExpiredAccount
	case resp.StatusCode >= http.StatusBadRequest:
		return domain.NewDomainError(
			domain.ErrSignOnFailed.Code,
			domain.ErrSignOnFailed.Message,
			fmt.Errorf("unexpected status code: %d", resp.StatusCode),
			resp.StatusCode >= http.StatusInternalServerError,
		)
	}

	c.logger.Debug(ctx, "Signed on", types.Fields{"status": resp.StatusCode, "page_bytes": len(page)})
	return nil
}

// GetCatalog fetches the directory listing document. The body is read
// completely before returning so the request timeout cannot cut it short.
func (c *Client) GetCatalog(ctx context.Context, params url.Values) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	target := c.config.CatalogURL
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + params.Encode()
	}

	req, err := c.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	return io.NopCloser(bytes.NewReader(body)), nil
}

// Download streams DownloadBase+remotePath. The caller closes the body.
func (c *Client) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.downloadURL(remotePath), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return resp.Body, nil
}

func (c *Client) downloadURL(remotePath string) string {
	if strings.HasPrefix(remotePath, "http://") || strings.HasPrefix(remotePath, "https://") {
		return remotePath
	}
	return strings.TrimSuffix(c.config.DownloadBase, "/") + "/" + strings.TrimPrefix(remotePath, "/")
}

// newRequest waits for the rate limiter and builds a request with the
// client's User-Agent.
func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	return req, nil
}
