// package media transfers image assets from the source blog to the
// destination CMS, recording every attempt in the ledger.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/retry"
	"github.com/pressline/pressline/internal/shared"
	"github.com/pressline/pressline/internal/wordpress"
)

// Uploader is the slice of the destination client the pipeline needs.
type Uploader interface {
	UploadMedia(ctx context.Context, params wordpress.UploadMediaParams) (*wordpress.Media, error)
}

// UploadedAsset records one successful transfer, kept by the saga for
// compensating deletes.
type UploadedAsset struct {
	SourceURL string
	MediaID   int64
	MediaURL  string
}

// Pipeline downloads referenced images and uploads them through the
// destination client. Downloads are retried; uploads rely on the client's
// internal retry.
type Pipeline struct {
	store      *ledger.Store
	uploader   Uploader
	httpClient *http.Client
	policy     retry.Policy
	logger     *log.Logger
}

// PipelineOpts contains configuration options for creating a Pipeline.
type PipelineOpts struct {
	Store      *ledger.Store
	Uploader   Uploader
	HTTPClient *http.Client
	Policy     retry.Policy
	Logger     *log.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts PipelineOpts) *Pipeline {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	return &Pipeline{
		store:      opts.Store,
		uploader:   opts.Uploader,
		httpClient: opts.HTTPClient,
		policy:     opts.Policy,
		logger:     opts.Logger,
	}
}

var (
	embedCardPattern = regexp.MustCompile(`(?s)<figure[^>]+class="[^"]*embed-card[^"]*".*?</figure>`)
	imgSrcPattern    = regexp.MustCompile(`<img[^>]+src="([^"]+)"`)
)

// CollectImageURLs returns the distinct image URLs referenced by the body,
// in document order. Images inside pre-rendered embed cards are excluded;
// those figures keep their remote URLs.
func CollectImageURLs(html string) []string {
	stripped := embedCardPattern.ReplaceAllString(html, "")

	seen := make(map[string]bool)
	var urls []string
	for _, match := range imgSrcPattern.FindAllStringSubmatch(stripped, -1) {
		src := match[1]
		if seen[src] {
			continue
		}
		seen[src] = true
		urls = append(urls, src)
	}
	return urls
}

// ProcessBodyImages transfers every body image for an item and returns the
// body with each transferred reference rewritten to its destination URL,
// plus the uploads performed (for compensating deletes).
//
// Any asset failure aborts the whole call: the saga must not create content
// mixing local and remote image URLs. Uploads already completed are returned
// alongside the error so the caller can roll them back.
func (p *Pipeline) ProcessBodyImages(ctx context.Context, itemID, title, html string) (string, []UploadedAsset, error) {
	var uploaded []UploadedAsset

	for i, src := range CollectImageURLs(html) {
		asset, err := p.transferAsset(ctx, itemID, title, src, i+1)
		if err != nil {
			return html, uploaded, err
		}
		uploaded = append(uploaded, *asset)
		html = strings.ReplaceAll(html, src, asset.MediaURL)
	}

	return html, uploaded, nil
}

// ProcessFeaturedImage transfers the designated featured image. Its media id
// feeds the draft-post creation; it is never part of the body image list.
func (p *Pipeline) ProcessFeaturedImage(ctx context.Context, itemID, title, src string) (*UploadedAsset, error) {
	return p.transferAsset(ctx, itemID, title, src, 0)
}

// transferAsset runs one asset's lifecycle: pending ledger row, retried
// download, upload, terminal ledger row. On failure the row is marked failed
// and the error re-raised.
func (p *Pipeline) transferAsset(ctx context.Context, itemID, title, src string, index int) (*UploadedAsset, error) {
	row, err := p.store.CreateImageAsset(itemID, src)
	if err != nil {
		return nil, err
	}

	result, err := p.downloadAndUpload(ctx, title, src, index)
	if err != nil {
		failed := models.AssetStatusFailed
		msg := err.Error()
		if updateErr := p.store.UpdateImageAsset(row.ID, ledger.AssetPatch{Status: &failed, ErrorMessage: &msg}); updateErr != nil {
			if p.logger != nil {
				p.logger.Error("failed to record asset failure", "asset", row.ID, "error", updateErr)
			}
		}
		return nil, err
	}

	status := models.AssetStatusUploaded
	if err := p.store.UpdateImageAsset(row.ID, ledger.AssetPatch{
		Status:              &status,
		DestinationMediaID:  &result.MediaID,
		DestinationMediaURL: &result.MediaURL,
	}); err != nil {
		return nil, err
	}

	return result, nil
}

func (p *Pipeline) downloadAndUpload(ctx context.Context, title, src string, index int) (*UploadedAsset, error) {
	data, contentType, err := p.download(ctx, src)
	if err != nil {
		return nil, err
	}

	fileName := buildFileName(title, index, contentType)
	media, err := p.uploader.UploadMedia(ctx, wordpress.UploadMediaParams{
		FileName: fileName,
		MimeType: contentType,
		Bytes:    data,
		Title:    title,
	})
	if err != nil {
		return nil, err
	}

	return &UploadedAsset{SourceURL: src, MediaID: media.ID, MediaURL: media.SourceURL}, nil
}

// download fetches the raw bytes of an image, retried per policy.
func (p *Pipeline) download(ctx context.Context, src string) ([]byte, string, error) {
	type result struct {
		data        []byte
		contentType string
	}
	r, err := retry.DoValue(ctx, p.policy, func() (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return result{}, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return result{}, fmt.Errorf("%w: status %d downloading %s", shared.ErrAPIRequest, resp.StatusCode, src)
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return result{}, fmt.Errorf("failed to read image body: %w", err)
		}
		return result{data: data, contentType: resp.Header.Get("Content-Type")}, nil
	}, func(err error, attempt int, delay time.Duration) {
		if p.logger != nil {
			p.logger.Warn("retrying image download", "url", src, "attempt", attempt, "delay", delay, "error", err)
		}
	})
	if err != nil {
		return nil, "", err
	}
	return r.data, r.contentType, nil
}

// buildFileName derives a filename from the slugified post title, the image's
// sequence index (0 for the featured image) and the response content type.
func buildFileName(title string, index int, contentType string) string {
	slug := shared.Slugify(title)
	if slug == "" {
		slug = "image"
	}
	name := slug
	if index > 0 {
		name = fmt.Sprintf("%s-%d", slug, index)
	} else {
		name = slug + "-featured"
	}
	return name + extensionFor(contentType)
}

// extensionFor maps a content type to a file extension, defaulting to .jpg
// for unrecognized types.
func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".jpg"
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".jpg"
	}
}
