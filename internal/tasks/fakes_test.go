package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/media"
	"github.com/pressline/pressline/internal/shared"
	"github.com/pressline/pressline/internal/source"
	"github.com/pressline/pressline/internal/wordpress"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeBlog implements Source, Parser and Transformer over in-memory maps.
type fakeBlog struct {
	urls        []string
	html        map[string]string
	meta        map[string]*source.PostMeta
	featured    map[string]string
	links       map[string][]source.InternalLinkRef
	fetchErr    map[string]error
	discoverErr error
}

func newFakeBlog() *fakeBlog {
	return &fakeBlog{
		html:     map[string]string{},
		meta:     map[string]*source.PostMeta{},
		featured: map[string]string{},
		links:    map[string][]source.InternalLinkRef{},
		fetchErr: map[string]error{},
	}
}

// addPost registers a post whose metadata title is derived from the slug.
func (b *fakeBlog) addPost(url, title string) {
	b.urls = append(b.urls, url)
	b.html[url] = "<article>" + title + "</article>"
	b.meta[url] = &source.PostMeta{Title: title}
}

func (b *fakeBlog) DiscoverURLs(ctx context.Context) ([]string, error) {
	if b.discoverErr != nil {
		return nil, b.discoverErr
	}
	return b.urls, nil
}

func (b *fakeBlog) FetchPostHTML(ctx context.Context, url string) (string, error) {
	if err := b.fetchErr[url]; err != nil {
		return "", err
	}
	html, ok := b.html[url]
	if !ok {
		return "", fmt.Errorf("no such post: %s", url)
	}
	return html, nil
}

func (b *fakeBlog) ParseMetadata(html, url string) (*source.PostMeta, error) {
	meta, ok := b.meta[url]
	if !ok {
		return nil, fmt.Errorf("no metadata for %s", url)
	}
	return meta, nil
}

func (b *fakeBlog) ExtractFeaturedImageURL(html string) string {
	for url, src := range b.featured {
		if strings.Contains(html, b.meta[url].Title) {
			return src
		}
	}
	return ""
}

func (b *fakeBlog) ExtractInternalLinks(html, pageURL string) []source.InternalLinkRef {
	return b.links[pageURL]
}

func (b *fakeBlog) CleanHTML(html string) (string, error) {
	return strings.ReplaceAll(html, "<article>", "<div>"), nil
}

func (b *fakeBlog) ReplaceEmbeds(ctx context.Context, html string) (string, error) {
	return html, nil
}

// fakeDestination implements Destination in memory, recording every call.
type fakeDestination struct {
	mu           sync.Mutex
	nextTermID   int64
	nextPostID   int64
	categories   map[string]int64
	catParents   map[string]int64
	tags         map[string]int64
	created      []wordpress.CreatePostParams
	postErr      map[string]error // keyed by post title
	deletedMedia []int64
	deletedPosts []int64
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		nextPostID: 100,
		categories: map[string]int64{},
		catParents: map[string]int64{},
		tags:       map[string]int64{},
		postErr:    map[string]error{},
	}
}

func (d *fakeDestination) EnsureCategory(ctx context.Context, name string, parentID int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.categories[name]; ok {
		return id, nil
	}
	d.nextTermID++
	d.categories[name] = d.nextTermID
	d.catParents[name] = parentID
	return d.nextTermID, nil
}

func (d *fakeDestination) EnsureTag(ctx context.Context, name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.tags[name]; ok {
		return id, nil
	}
	d.nextTermID++
	d.tags[name] = d.nextTermID
	return d.nextTermID, nil
}

func (d *fakeDestination) CreateDraftPost(ctx context.Context, params wordpress.CreatePostParams) (*wordpress.Post, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.postErr[params.Title]; err != nil {
		return nil, err
	}
	d.nextPostID++
	d.created = append(d.created, params)
	return &wordpress.Post{ID: d.nextPostID, Status: "draft"}, nil
}

func (d *fakeDestination) DeletePost(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletedPosts = append(d.deletedPosts, id)
	return nil
}

func (d *fakeDestination) DeleteMedia(ctx context.Context, id int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletedMedia = append(d.deletedMedia, id)
	return nil
}

// fakeMedia implements MediaPipeline with per-title behavior.
type fakeMedia struct {
	mu        sync.Mutex
	nextID    int64
	bodyCount map[string]int   // uploads to simulate per title
	bodyErr   map[string]error // returned after the uploads, partial result kept
	featErr   map[string]error
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{
		nextID:    500,
		bodyCount: map[string]int{},
		bodyErr:   map[string]error{},
		featErr:   map[string]error{},
	}
}

func (f *fakeMedia) alloc() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *fakeMedia) ProcessFeaturedImage(ctx context.Context, itemID, title, src string) (*media.UploadedAsset, error) {
	if err := f.featErr[title]; err != nil {
		return nil, err
	}
	id := f.alloc()
	return &media.UploadedAsset{SourceURL: src, MediaID: id, MediaURL: fmt.Sprintf("https://cms.example.com/media/%d", id)}, nil
}

func (f *fakeMedia) ProcessBodyImages(ctx context.Context, itemID, title, html string) (string, []media.UploadedAsset, error) {
	var uploaded []media.UploadedAsset
	for i := 0; i < f.bodyCount[title]; i++ {
		id := f.alloc()
		uploaded = append(uploaded, media.UploadedAsset{
			SourceURL: fmt.Sprintf("https://blog.example.com/img/%d.png", i),
			MediaID:   id,
			MediaURL:  fmt.Sprintf("https://cms.example.com/media/%d", id),
		})
	}
	if err := f.bodyErr[title]; err != nil {
		return "", uploaded, err
	}
	return html, uploaded, nil
}

func newMigrator(store *ledger.Store, blog *fakeBlog, dest *fakeDestination, med *fakeMedia) *Migrator {
	return NewMigrator(MigratorOpts{
		Store:       store,
		Source:      blog,
		Parser:      blog,
		Transformer: blog,
		Destination: dest,
		Media:       med,
	})
}
