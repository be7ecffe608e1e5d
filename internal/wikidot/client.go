// Package wikidot fetches pages and metadata from a Wikidot site.
//
// HTML pages are returned as goquery documents for the feed parsers; page
// listings and metadata go through the Wikidot XML-RPC API. Every request,
// HTML or RPC, passes through one shared rate limiter.
package wikidot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/rpc"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dalnet/wikibot/internal/config"
	"github.com/kolo/xmlrpc"
	"golang.org/x/time/rate"
)

// maxBody caps the size of a fetched HTML page.
const maxBody = 16 * 1024 * 1024

// ErrNoCredentials is returned by RPC calls when no API user/key is configured.
var ErrNoCredentials = errors.New("wikidot: no API credentials configured")

// Client talks to one Wikidot site.
type Client struct {
	site    string
	http    *http.Client
	rpc     *xmlrpc.Client
	limiter *rate.Limiter
}

// New creates a client from the wikidot section of the configuration.
func New(cfg config.Wikidot) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}

	c := &Client{
		site:    cfg.Site,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}

	if cfg.User != "" && cfg.Key != "" {
		u, err := url.Parse(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("invalid rpc url: %w", err)
		}
		// The API authenticates with HTTP basic auth taken from the URL
		u.User = url.UserPassword(cfg.User, cfg.Key)
		rc, err := xmlrpc.NewClient(u.String(), &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create rpc client: %w", err)
		}
		c.rpc = rc
	}
	return c, nil
}

// Site returns the Wikidot site name, e.g. "scp-wiki".
func (c *Client) Site() string {
	return c.site
}

// HasRPC reports whether API credentials were configured.
func (c *Client) HasRPC() bool {
	return c.rpc != nil
}

// Document fetches url and parses it as HTML.
func (c *Client) Document(ctx context.Context, url string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "wikibot/1.0 (+irc)")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML from %s: %w", url, err)
	}
	return doc, nil
}

// call performs one XML-RPC call, giving up when ctx is done.
func (c *Client) call(ctx context.Context, method string, args map[string]interface{}, reply interface{}) error {
	if c.rpc == nil {
		return ErrNoCredentials
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	call := c.rpc.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case done := <-call.Done:
		if done.Error != nil {
			return fmt.Errorf("%s: %w", method, done.Error)
		}
		return nil
	}
}
