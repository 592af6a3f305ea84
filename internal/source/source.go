// package source defines the contracts for reading and transforming blog
// content, plus a concrete HTTP crawler for post discovery and fetching.
//
// Markup parsing and cleaning internals live behind the [Parser] and
// [Transformer] interfaces; the migration engine only orchestrates them.
package source

import (
	"context"
	"time"
)

// PostMeta is the metadata extracted from a post's HTML.
type PostMeta struct {
	Title       string
	PublishedAt time.Time
	ModifiedAt  *time.Time
	Categories  []string // hierarchy order: parent before child
	Tags        []string
}

// InternalLinkRef is one same-origin link found in a post body.
type InternalLinkRef struct {
	TargetURL string
	LinkText  string
	Context   string
}

// Source reads posts from the blog being migrated.
type Source interface {
	// DiscoverURLs crawls the blog's paginated archive and returns every
	// post URL found. Crawling stops when a page yields zero new links or
	// a page fetch fails.
	DiscoverURLs(ctx context.Context) ([]string, error)

	// FetchPostHTML retrieves the raw HTML of one post.
	FetchPostHTML(ctx context.Context, url string) (string, error)
}

// Parser extracts structured data from post HTML.
type Parser interface {
	// ParseMetadata extracts title, dates and taxonomy from post HTML.
	ParseMetadata(html, url string) (*PostMeta, error)

	// ExtractFeaturedImageURL returns the featured image URL, or "" when
	// the post has none.
	ExtractFeaturedImageURL(html string) string

	// ExtractInternalLinks returns same-origin links found in the body.
	ExtractInternalLinks(html, pageURL string) []InternalLinkRef
}

// Transformer converts source markup into destination-ready markup. Pure
// with respect to the ledger; ReplaceEmbeds may call the network for embed
// metadata.
type Transformer interface {
	CleanHTML(html string) (string, error)
	ReplaceEmbeds(ctx context.Context, html string) (string, error)
}
