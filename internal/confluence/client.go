// Package confluence reads rendered pages from the Confluence REST API (v1).
package confluence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgallion1/pagechunk/internal/page"
)

// ErrNotFound is returned when a page id does not exist or is not visible.
var ErrNotFound = errors.New("confluence page not found")

const listPageSize = 100

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	AuthToken  string
	Timeout    time.Duration
	MaxRetries int
}

// Client communicates with the Confluence REST API.
type Client struct {
	baseURL    string
	authToken  string
	maxRetries int
	backoff    func(attempt int) time.Duration
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg ClientConfig, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		maxRetries: cfg.MaxRetries,
		backoff:    Backoff,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type content struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Space struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	} `json:"space"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
	} `json:"version"`
	Body struct {
		View struct {
			Value string `json:"value"`
		} `json:"view"`
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Links struct {
		Base  string `json:"base"`
		WebUI string `json:"webui"`
	} `json:"_links"`
}

type contentList struct {
	Results []content `json:"results"`
	Size    int       `json:"size"`
}

// GetPage fetches one page with its rendered body.
func (c *Client) GetPage(ctx context.Context, id string) (page.Page, error) {
	q := url.Values{"expand": {"body.view,version,space"}}
	var resp content
	if err := c.get(ctx, "/rest/api/content/"+url.PathEscape(id), q, &resp); err != nil {
		return page.Page{}, fmt.Errorf("get page %s: %w", id, err)
	}
	return c.toPage(resp), nil
}

// ListPageIDs walks every page id visible to the token, restricted to one
// space when spaceKey is set. fn is called in listing order; a non-nil
// return stops the walk.
func (c *Client) ListPageIDs(ctx context.Context, spaceKey string, fn func(id string) error) error {
	for start := 0; ; start += listPageSize {
		q := url.Values{
			"type":   {"page"},
			"start":  {strconv.Itoa(start)},
			"limit":  {strconv.Itoa(listPageSize)},
			"expand": {"space"},
		}
		if spaceKey != "" {
			q.Set("spaceKey", spaceKey)
		}
		var resp contentList
		if err := c.get(ctx, "/rest/api/content", q, &resp); err != nil {
			return fmt.Errorf("list pages at %d: %w", start, err)
		}
		for _, item := range resp.Results {
			if err := fn(item.ID); err != nil {
				return err
			}
		}
		if len(resp.Results) < listPageSize {
			return nil
		}
	}
}

// toPage prefers the rendered view body and falls back to storage format.
func (c *Client) toPage(resp content) page.Page {
	html := resp.Body.View.Value
	if html == "" {
		html = resp.Body.Storage.Value
	}
	version := resp.Version.Number
	if version == 0 {
		version = 1
	}
	return page.Page{
		ID:           resp.ID,
		Title:        resp.Title,
		SpaceKey:     resp.Space.Key,
		SpaceName:    resp.Space.Name,
		Version:      version,
		LastModified: resp.Version.When,
		URL:          c.pageURL(resp.Links.Base, resp.Links.WebUI),
		HTML:         html,
	}
}

func (c *Client) pageURL(base, webui string) string {
	switch {
	case webui == "":
		return ""
	case strings.HasPrefix(webui, "http://") || strings.HasPrefix(webui, "https://"):
		return webui
	case base != "":
		return strings.TrimRight(base, "/") + webui
	}
	return c.baseURL + webui
}

// get performs a GET with retries on transient failures.
func (c *Client) get(ctx context.Context, path string, q url.Values, v any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var lastErr error
	for attempt := range c.maxRetries {
		lastErr = c.getOnce(ctx, u, v)
		if lastErr == nil || !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == c.maxRetries-1 {
			break
		}
		delay := c.backoff(attempt)
		c.log.Warn("retryable confluence error", "url", u, "attempt", attempt+1,
			"max_retries", c.maxRetries, "delay", delay, "error", lastErr)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Client) getOnce(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if auth := c.authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &RetryableError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case retryableStatus(resp.StatusCode):
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(body)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// authorization sends a token that already names its scheme as-is and
// treats a bare token as a bearer token.
func (c *Client) authorization() string {
	if c.authToken == "" || strings.Contains(c.authToken, " ") {
		return c.authToken
	}
	return "Bearer " + c.authToken
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
