package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pressline/pressline/internal/retry"
	"github.com/pressline/pressline/internal/shared"
)

// hrefPattern matches anchor hrefs in archive pages. The crawler only needs
// link discovery, not full markup parsing, so a regex is sufficient here.
var hrefPattern = regexp.MustCompile(`<a[^>]+href="([^"#?]+)"`)

// Crawler implements [Source] over plain HTTP. Archive pages are walked as
// /page/1, /page/2, ... until a page yields no new post links or fails.
type Crawler struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	logger     *log.Logger
}

// CrawlerOpts contains configuration options for creating a Crawler.
type CrawlerOpts struct {
	BaseURL    string
	HTTPClient *http.Client
	Policy     retry.Policy
	Logger     *log.Logger
}

// NewCrawler creates a Crawler for the given blog base URL.
func NewCrawler(opts CrawlerOpts) *Crawler {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	return &Crawler{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		httpClient: opts.HTTPClient,
		policy:     opts.Policy,
		logger:     opts.Logger,
	}
}

// DiscoverURLs walks the paginated archive collecting post links. A page
// that adds zero new links terminates the crawl; a fetch failure terminates
// it too, returning whatever was already discovered.
func (c *Crawler) DiscoverURLs(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var urls []string

	for page := 1; ; page++ {
		pageURL := fmt.Sprintf("%s/page/%d", c.baseURL, page)
		if page == 1 {
			pageURL = c.baseURL
		}

		html, err := c.fetch(ctx, pageURL)
		if err != nil {
			if c.logger != nil {
				c.logger.Info("archive crawl stopped", "page", page, "error", err)
			}
			break
		}

		added := 0
		for _, match := range hrefPattern.FindAllStringSubmatch(html, -1) {
			link := match[1]
			if !c.isPostLink(link) || seen[link] {
				continue
			}
			seen[link] = true
			urls = append(urls, link)
			added++
		}

		if added == 0 {
			break
		}
	}

	return urls, nil
}

// FetchPostHTML retrieves the raw HTML of one post, retried per policy.
func (c *Crawler) FetchPostHTML(ctx context.Context, url string) (string, error) {
	return c.fetch(ctx, url)
}

func (c *Crawler) fetch(ctx context.Context, url string) (string, error) {
	return retry.DoValue(ctx, c.policy, func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("%w: status %d fetching %s", shared.ErrAPIRequest, resp.StatusCode, url)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		return string(body), nil
	}, func(err error, attempt int, delay time.Duration) {
		if c.logger != nil {
			c.logger.Warn("retrying fetch", "url", url, "attempt", attempt, "delay", delay, "error", err)
		}
	})
}

// isPostLink keeps same-origin links that look like post permalinks,
// excluding archive pagination itself.
func (c *Crawler) isPostLink(link string) bool {
	if !strings.HasPrefix(link, c.baseURL+"/") {
		return false
	}
	rest := strings.TrimPrefix(link, c.baseURL+"/")
	if rest == "" || strings.HasPrefix(rest, "page/") {
		return false
	}
	return true
}
