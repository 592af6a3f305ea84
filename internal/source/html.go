package source

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	metaPattern    = regexp.MustCompile(`<meta[^>]+(?:property|name)="([^"]+)"[^>]+content="([^"]*)"`)
	titlePattern   = regexp.MustCompile(`<title[^>]*>([^<]*)</title>`)
	anchorPattern  = regexp.MustCompile(`<a[^>]+href="([^"#?]+)"[^>]*>(.*?)</a>`)
	catLinkPattern = regexp.MustCompile(`<a[^>]+rel="category(?: tag)?"[^>]*>([^<]+)</a>`)
	tagLinkPattern = regexp.MustCompile(`<a[^>]+rel="tag"[^>]*>([^<]+)</a>`)
	markupPattern  = regexp.MustCompile(`<[^>]+>`)

	scriptPattern  = regexp.MustCompile(`(?s)<script[^>]*>.*?</script>`)
	stylePattern   = regexp.MustCompile(`(?s)<style[^>]*>.*?</style>`)
	commentPattern = regexp.MustCompile(`(?s)<!--.*?-->`)
)

// HTMLParser implements [Parser] with pattern matching over WordPress-style
// markup: Open Graph metadata, rel="category tag" and rel="tag" anchors.
type HTMLParser struct{}

// NewHTMLParser creates an HTMLParser.
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// ParseMetadata extracts title, dates and taxonomy. Title falls back from
// og:title to the document title; a missing published date is an error
// because the destination post needs one.
func (p *HTMLParser) ParseMetadata(html, url string) (*PostMeta, error) {
	meta := &PostMeta{}
	props := metaProperties(html)

	meta.Title = strings.TrimSpace(props["og:title"])
	if meta.Title == "" {
		if m := titlePattern.FindStringSubmatch(html); m != nil {
			meta.Title = strings.TrimSpace(m[1])
		}
	}
	if meta.Title == "" {
		return nil, fmt.Errorf("no title found in %s", url)
	}

	published, err := parseMetaTime(props["article:published_time"])
	if err != nil {
		return nil, fmt.Errorf("no published date found in %s: %w", url, err)
	}
	meta.PublishedAt = published

	if modified, err := parseMetaTime(props["article:modified_time"]); err == nil {
		meta.ModifiedAt = &modified
	}

	for _, m := range catLinkPattern.FindAllStringSubmatch(html, -1) {
		meta.Categories = append(meta.Categories, strings.TrimSpace(m[1]))
	}
	for _, m := range tagLinkPattern.FindAllStringSubmatch(html, -1) {
		meta.Tags = append(meta.Tags, strings.TrimSpace(m[1]))
	}

	return meta, nil
}

// ExtractFeaturedImageURL returns the og:image URL, or "".
func (p *HTMLParser) ExtractFeaturedImageURL(html string) string {
	return metaProperties(html)["og:image"]
}

// ExtractInternalLinks returns anchors pointing back into the page's own
// origin. The link text is flattened to plain text.
func (p *HTMLParser) ExtractInternalLinks(html, pageURL string) []InternalLinkRef {
	origin := pageOrigin(pageURL)
	if origin == "" {
		return nil
	}

	var refs []InternalLinkRef
	for _, m := range anchorPattern.FindAllStringSubmatch(html, -1) {
		href := m[1]
		if !strings.HasPrefix(href, origin) || href == pageURL {
			continue
		}
		refs = append(refs, InternalLinkRef{
			TargetURL: href,
			LinkText:  strings.TrimSpace(markupPattern.ReplaceAllString(m[2], "")),
		})
	}
	return refs
}

func metaProperties(html string) map[string]string {
	props := map[string]string{}
	for _, m := range metaPattern.FindAllStringSubmatch(html, -1) {
		if _, ok := props[m[1]]; !ok {
			props[m[1]] = m[2]
		}
	}
	return props
}

func parseMetaTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse(time.RFC3339, value)
}

// pageOrigin returns scheme://host for a URL, without the path.
func pageOrigin(url string) string {
	idx := strings.Index(url, "://")
	if idx < 0 {
		return ""
	}
	rest := url[idx+3:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		return url[:idx+3+slash]
	}
	return url
}

// HTMLTransformer implements [Transformer]. CleanHTML strips scripts, styles
// and comments; embed replacement is a passthrough, pre-rendered embed cards
// already carry their remote markup.
type HTMLTransformer struct{}

// NewHTMLTransformer creates an HTMLTransformer.
func NewHTMLTransformer() *HTMLTransformer {
	return &HTMLTransformer{}
}

func (t *HTMLTransformer) CleanHTML(html string) (string, error) {
	html = scriptPattern.ReplaceAllString(html, "")
	html = stylePattern.ReplaceAllString(html, "")
	html = commentPattern.ReplaceAllString(html, "")
	return strings.TrimSpace(html), nil
}

func (t *HTMLTransformer) ReplaceEmbeds(ctx context.Context, html string) (string, error) {
	return html, nil
}
