package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/media"
	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/source"
	"github.com/pressline/pressline/internal/wordpress"
)

// Destination is the slice of the destination client the saga drives:
// taxonomy upserts, draft creation and the compensating deletes.
type Destination interface {
	EnsureCategory(ctx context.Context, name string, parentID int64) (int64, error)
	EnsureTag(ctx context.Context, name string) (int64, error)
	CreateDraftPost(ctx context.Context, params wordpress.CreatePostParams) (*wordpress.Post, error)
	DeletePost(ctx context.Context, id int64) error
	DeleteMedia(ctx context.Context, id int64) error
}

// MediaPipeline transfers a post's images to the destination. A partial
// failure returns the assets uploaded so far together with the error, so the
// saga can compensate.
type MediaPipeline interface {
	ProcessFeaturedImage(ctx context.Context, itemID, title, src string) (*media.UploadedAsset, error)
	ProcessBodyImages(ctx context.Context, itemID, title, html string) (string, []media.UploadedAsset, error)
}

// Migrator executes the per-post migration saga. Every step returns an
// explicit result; on any failure the destination objects created so far are
// deleted in reverse dependency order and the item is marked failed with the
// original error.
type Migrator struct {
	store       *ledger.Store
	source      source.Source
	parser      source.Parser
	transformer source.Transformer
	destination Destination
	media       MediaPipeline
	logger      *log.Logger
}

// MigratorOpts contains configuration options for creating a Migrator.
type MigratorOpts struct {
	Store       *ledger.Store
	Source      source.Source
	Parser      source.Parser
	Transformer source.Transformer
	Destination Destination
	Media       MediaPipeline
	Logger      *log.Logger
}

// NewMigrator creates a Migrator.
func NewMigrator(opts MigratorOpts) *Migrator {
	return &Migrator{
		store:       opts.Store,
		source:      opts.Source,
		parser:      opts.Parser,
		transformer: opts.Transformer,
		destination: opts.Destination,
		media:       opts.Media,
		logger:      opts.Logger,
	}
}

// undoLog tracks destination objects created during one saga run. On failure
// they are deleted featured first, then body media, then the post.
type undoLog struct {
	featured *media.UploadedAsset
	body     []media.UploadedAsset
	post     *wordpress.Post
}

// MigrateOne runs the full saga for one source URL under jobID. It records
// the item in the ledger, migrates the post, and returns the destination post
// ID. The returned error is the step error that caused the failure; rollback
// errors are logged, never returned.
func (m *Migrator) MigrateOne(ctx context.Context, jobID, url string) (int64, error) {
	item, err := m.store.CreateItem(jobID, url)
	if err != nil {
		return 0, err
	}

	undo := &undoLog{}
	post, err := m.run(ctx, item, url, undo)
	if err != nil {
		m.rollback(ctx, url, undo)
		m.finalizeItem(item.ID, models.ItemStatusFailed, nil, err.Error())
		return 0, err
	}

	if _, err := m.store.CreatePostMap(url, post.ID); err != nil {
		m.rollback(ctx, url, undo)
		m.finalizeItem(item.ID, models.ItemStatusFailed, nil, err.Error())
		return 0, err
	}
	m.finalizeItem(item.ID, models.ItemStatusSuccess, &post.ID, "")
	return post.ID, nil
}

func (m *Migrator) run(ctx context.Context, item *models.MigrationJobItem, url string, undo *undoLog) (*wordpress.Post, error) {
	html, err := m.source.FetchPostHTML(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch post: %w", err)
	}

	meta, err := m.parser.ParseMetadata(html, url)
	if err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	featuredURL := m.parser.ExtractFeaturedImageURL(html)

	m.recordInternalLinks(item, url, html)

	body, err := m.transformer.ReplaceEmbeds(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("replace embeds: %w", err)
	}
	body, err = m.transformer.CleanHTML(body)
	if err != nil {
		return nil, fmt.Errorf("clean html: %w", err)
	}

	var featuredMediaID *int64
	if featuredURL != "" {
		asset, err := m.media.ProcessFeaturedImage(ctx, item.ID, meta.Title, featuredURL)
		if err != nil {
			return nil, fmt.Errorf("featured image: %w", err)
		}
		undo.featured = asset
		featuredMediaID = &asset.MediaID
	}

	body, uploaded, err := m.media.ProcessBodyImages(ctx, item.ID, meta.Title, body)
	undo.body = uploaded
	if err != nil {
		return nil, fmt.Errorf("body images: %w", err)
	}

	categoryIDs, err := m.resolveCategories(ctx, meta.Categories)
	if err != nil {
		return nil, err
	}
	tagIDs, err := m.resolveTags(ctx, meta.Tags)
	if err != nil {
		return nil, err
	}

	post, err := m.destination.CreateDraftPost(ctx, wordpress.CreatePostParams{
		Title:           meta.Title,
		Content:         body,
		PublishedAt:     meta.PublishedAt,
		CategoryIDs:     categoryIDs,
		TagIDs:          tagIDs,
		FeaturedMediaID: featuredMediaID,
	})
	if err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	undo.post = post

	return post, nil
}

// recordInternalLinks persists the same-origin links found in the raw body.
// Link evidence is best effort: an insert failure is logged, never fatal.
func (m *Migrator) recordInternalLinks(item *models.MigrationJobItem, url, html string) {
	for _, ref := range m.parser.ExtractInternalLinks(html, url) {
		link := &models.InternalLink{
			JobItemID: item.ID,
			SourceURL: url,
			TargetURL: ref.TargetURL,
			LinkText:  ref.LinkText,
			Context:   ref.Context,
		}
		if err := m.store.InsertInternalLink(link); err != nil && m.logger != nil {
			m.logger.Warn("failed to record internal link", "url", url, "target", ref.TargetURL, "error", err)
		}
	}
}

// resolveCategories upserts a category hierarchy. Names arrive parent before
// child; each level becomes the parent of the next.
func (m *Migrator) resolveCategories(ctx context.Context, names []string) ([]int64, error) {
	var ids []int64
	var parentID int64
	for _, name := range names {
		id, err := m.destination.EnsureCategory(ctx, name, parentID)
		if err != nil {
			return nil, fmt.Errorf("ensure category %q: %w", name, err)
		}
		ids = append(ids, id)
		parentID = id
	}
	return ids, nil
}

func (m *Migrator) resolveTags(ctx context.Context, names []string) ([]int64, error) {
	var ids []int64
	for _, name := range names {
		id, err := m.destination.EnsureTag(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("ensure tag %q: %w", name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// rollback deletes everything the failed run created on the destination, in
// reverse dependency order. Each delete is attempted independently; failures
// are logged and never mask the step error.
func (m *Migrator) rollback(ctx context.Context, url string, undo *undoLog) {
	if undo.featured != nil {
		if err := m.destination.DeleteMedia(ctx, undo.featured.MediaID); err != nil && m.logger != nil {
			m.logger.Error("rollback: failed to delete featured media",
				"url", url, "media_id", undo.featured.MediaID, "error", err)
		}
	}
	for _, asset := range undo.body {
		if err := m.destination.DeleteMedia(ctx, asset.MediaID); err != nil && m.logger != nil {
			m.logger.Error("rollback: failed to delete media",
				"url", url, "media_id", asset.MediaID, "error", err)
		}
	}
	if undo.post != nil {
		if err := m.destination.DeletePost(ctx, undo.post.ID); err != nil && m.logger != nil {
			m.logger.Error("rollback: failed to delete post",
				"url", url, "post_id", undo.post.ID, "error", err)
		}
	}
}

// finalizeItem moves an item to its terminal status. Persistence failures
// here are logged; the migration outcome already happened.
func (m *Migrator) finalizeItem(itemID string, status models.ItemStatus, postID *int64, errMsg string) {
	patch := ledger.ItemPatch{Status: &status}
	if postID != nil {
		patch.DestinationPostID = postID
	}
	if errMsg != "" {
		patch.ErrorMessage = &errMsg
	}
	if err := m.store.UpdateItem(itemID, patch); err != nil && m.logger != nil {
		m.logger.Error("failed to finalize job item", "item_id", itemID, "status", status, "error", err)
	}
}
