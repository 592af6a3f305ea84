package wordpress

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/pressline/pressline/internal/retry"
)

// taxonomyCache maps taxonomy+name to a destination id for the life of the
// process. Concurrent first lookups of the same name serialize on a per-key
// lock so exactly one search (and at most one create) goes out per name.
// The cache is never invalidated; a new run rebuilds it from the destination.
type taxonomyCache struct {
	mu       sync.Mutex
	ids      map[string]int64
	inflight map[string]*sync.Mutex
}

func newTaxonomyCache() *taxonomyCache {
	return &taxonomyCache{
		ids:      make(map[string]int64),
		inflight: make(map[string]*sync.Mutex),
	}
}

// lookup returns a cached id, or acquires the per-key lock and returns a
// release function. Callers holding the lock must call release after storing
// (or failing to resolve) the id.
func (tc *taxonomyCache) lookup(key string) (id int64, cached bool, release func()) {
	tc.mu.Lock()
	if id, ok := tc.ids[key]; ok {
		tc.mu.Unlock()
		return id, true, nil
	}
	keyMu, ok := tc.inflight[key]
	if !ok {
		keyMu = &sync.Mutex{}
		tc.inflight[key] = keyMu
	}
	tc.mu.Unlock()

	keyMu.Lock()

	// Another goroutine may have resolved the key while we waited.
	tc.mu.Lock()
	if id, ok := tc.ids[key]; ok {
		tc.mu.Unlock()
		keyMu.Unlock()
		return id, true, nil
	}
	tc.mu.Unlock()

	return 0, false, keyMu.Unlock
}

func (tc *taxonomyCache) store(key string, id int64) {
	tc.mu.Lock()
	tc.ids[key] = id
	tc.mu.Unlock()
}

// term is a destination category or tag.
type term struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Parent int64  `json:"parent,omitempty"`
}

const termsPerPage = 100

// EnsureCategory resolves a category name to a destination id, creating the
// category (under parentID, 0 for top level) when no exact match exists.
// Results are cached for the process lifetime.
func (c *Client) EnsureCategory(ctx context.Context, name string, parentID int64) (int64, error) {
	return c.ensureTerm(ctx, "categories", name, parentID)
}

// EnsureTag resolves a tag name to a destination id, creating the tag when no
// exact match exists. Results are cached for the process lifetime.
func (c *Client) EnsureTag(ctx context.Context, name string) (int64, error) {
	return c.ensureTerm(ctx, "tags", name, 0)
}

func (c *Client) ensureTerm(ctx context.Context, taxonomy, name string, parentID int64) (int64, error) {
	key := taxonomy + "/" + name

	id, cached, release := c.taxonomies.lookup(key)
	if cached {
		return id, nil
	}
	defer release()

	id, err := c.findTerm(ctx, taxonomy, name)
	if err == nil {
		c.taxonomies.store(key, id)
		return id, nil
	}
	if !errors.Is(err, errNoMatch) {
		return 0, err
	}

	id, err = c.createTerm(ctx, taxonomy, name, parentID)
	if err != nil {
		return 0, err
	}
	c.taxonomies.store(key, id)
	return id, nil
}

// errNoMatch signals search exhaustion without an exact name match.
var errNoMatch = errors.New("no exact term match")

// findTerm scans the paginated search results for an exact case-sensitive
// name match. The first match wins. Pages follow the X-WP-TotalPages header.
func (c *Client) findTerm(ctx context.Context, taxonomy, name string) (int64, error) {
	page := 1
	totalPages := 1

	for page <= totalPages {
		path := fmt.Sprintf("/%s?search=%s&per_page=%d&page=%d",
			taxonomy, url.QueryEscape(name), termsPerPage, page)

		type pageResult struct {
			terms   []term
			headers http.Header
		}
		result, err := retry.DoValue(ctx, c.policy, func() (pageResult, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
			if err != nil {
				return pageResult{}, fmt.Errorf("failed to create request: %w", err)
			}
			req.SetBasicAuth(c.username, c.password)

			var pr pageResult
			if err := c.do(req, &pr.terms, &pr.headers); err != nil {
				return pageResult{}, err
			}
			return pr, nil
		}, c.onRetry("search_"+taxonomy))
		if err != nil {
			return 0, err
		}

		for _, t := range result.terms {
			if t.Name == name {
				return t.ID, nil
			}
		}

		if tp := result.headers.Get("X-WP-TotalPages"); tp != "" {
			if parsed, err := strconv.Atoi(tp); err == nil {
				totalPages = parsed
			}
		}
		page++
	}

	return 0, errNoMatch
}

func (c *Client) createTerm(ctx context.Context, taxonomy, name string, parentID int64) (int64, error) {
	body := map[string]any{"name": name}
	if parentID != 0 {
		body["parent"] = parentID
	}

	return retry.DoValue(ctx, c.policy, func() (int64, error) {
		var created term
		if err := c.doJSON(ctx, http.MethodPost, "/"+taxonomy, body, &created); err != nil {
			return 0, err
		}
		return created.ID, nil
	}, c.onRetry("create_"+taxonomy))
}
