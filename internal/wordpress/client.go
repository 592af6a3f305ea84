// package wordpress wraps the destination CMS REST API.
//
// All outbound calls run under the configured retry policy. The client never
// publishes content: posts are always created as drafts.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pressline/pressline/internal/retry"
)

// APIError is returned for any non-2xx response. The HTTP status and the
// message the destination sent back are preserved for diagnostics.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("destination API error: status %d: %s", e.StatusCode, e.Message)
}

// errorBody is the destination's standard error envelope.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to a WordPress-compatible REST API using basic auth.
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	policy     retry.Policy
	logger     *log.Logger
	taxonomies *taxonomyCache
}

// ClientOpts contains configuration options for creating a Client.
type ClientOpts struct {
	BaseURL    string
	Username   string
	Password   string
	HTTPClient *http.Client
	Policy     retry.Policy
	Logger     *log.Logger
}

// NewClient creates a Client. The taxonomy upsert cache is owned by the client
// instance and lives for the process; a later run rebuilds it from the
// destination's state.
func NewClient(opts ClientOpts) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.DefaultPolicy()
	}
	return &Client{
		baseURL:    opts.BaseURL,
		username:   opts.Username,
		password:   opts.Password,
		httpClient: opts.HTTPClient,
		policy:     opts.Policy,
		logger:     opts.Logger,
		taxonomies: newTaxonomyCache(),
	}
}

// onRetry logs retry attempts for observability.
func (c *Client) onRetry(operation string) retry.OnRetry {
	return func(err error, attempt int, delay time.Duration) {
		if c.logger != nil {
			c.logger.Warn("retrying destination API call",
				"operation", operation, "attempt", attempt, "delay", delay, "error", err)
		}
	}
}

// doJSON performs one authenticated request with a JSON body and decodes a
// JSON response into out. Non-2xx responses become *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out, nil)
}

// do executes a prepared request. When headers is non-nil, the response
// headers are copied into it.
func (c *Client) do(req *http.Request, out any, headers *http.Header) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}

	if headers != nil {
		*headers = resp.Header
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func newAPIError(status int, body []byte) *APIError {
	var eb errorBody
	message := string(body)
	if err := json.Unmarshal(body, &eb); err == nil && eb.Message != "" {
		message = eb.Message
	}
	return &APIError{StatusCode: status, Message: message}
}

// Post is a destination content object.
type Post struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Link   string `json:"link"`
}

// CreatePostParams describes a draft post to create.
type CreatePostParams struct {
	Title           string
	Content         string
	PublishedAt     time.Time
	CategoryIDs     []int64
	TagIDs          []int64
	FeaturedMediaID *int64
}

type createPostBody struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Status        string  `json:"status"`
	Date          string  `json:"date"`
	Categories    []int64 `json:"categories,omitempty"`
	Tags          []int64 `json:"tags,omitempty"`
	FeaturedMedia *int64  `json:"featured_media,omitempty"`
}

// CreateDraftPost creates a post in draft state. Migration never publishes.
func (c *Client) CreateDraftPost(ctx context.Context, params CreatePostParams) (*Post, error) {
	body := createPostBody{
		Title:         params.Title,
		Content:       params.Content,
		Status:        "draft",
		Date:          params.PublishedAt.Format(time.RFC3339),
		Categories:    params.CategoryIDs,
		Tags:          params.TagIDs,
		FeaturedMedia: params.FeaturedMediaID,
	}

	return retry.DoValue(ctx, c.policy, func() (*Post, error) {
		var post Post
		if err := c.doJSON(ctx, http.MethodPost, "/posts", body, &post); err != nil {
			return nil, err
		}
		return &post, nil
	}, c.onRetry("create_post"))
}

// DeletePost permanently deletes a post. A not-found response is treated as
// success: the post is already in the desired state.
func (c *Client) DeletePost(ctx context.Context, id int64) error {
	return c.deleteResource(ctx, fmt.Sprintf("/posts/%d?force=true", id), "post", id)
}

// Media is a destination media object.
type Media struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
	MediaType string `json:"media_type"`
	MimeType  string `json:"mime_type"`
}

// UploadMediaParams describes a binary upload.
type UploadMediaParams struct {
	FileName string
	MimeType string
	Bytes    []byte
	AltText  string
	Title    string
}

// UploadMedia uploads a binary asset and returns the created media object.
func (c *Client) UploadMedia(ctx context.Context, params UploadMediaParams) (*Media, error) {
	return retry.DoValue(ctx, c.policy, func() (*Media, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/media", bytes.NewReader(params.Bytes))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.SetBasicAuth(c.username, c.password)
		req.Header.Set("Content-Type", params.MimeType)
		req.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, params.FileName))

		var media Media
		if err := c.do(req, &media, nil); err != nil {
			return nil, err
		}

		if params.AltText != "" || params.Title != "" {
			patch := map[string]string{}
			if params.AltText != "" {
				patch["alt_text"] = params.AltText
			}
			if params.Title != "" {
				patch["title"] = params.Title
			}
			if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/media/%d", media.ID), patch, &media); err != nil {
				return nil, err
			}
		}

		return &media, nil
	}, c.onRetry("upload_media"))
}

// DeleteMedia permanently deletes a media object. A not-found response is
// treated as success.
func (c *Client) DeleteMedia(ctx context.Context, id int64) error {
	return c.deleteResource(ctx, fmt.Sprintf("/media/%d?force=true", id), "media", id)
}

// deleteResource performs an idempotent delete: 404 resolves without error,
// logged as a warning. Any other failure propagates after retry exhaustion.
func (c *Client) deleteResource(ctx context.Context, path, kind string, id int64) error {
	return retry.Do(ctx, c.policy, func() error {
		err := c.doJSON(ctx, http.MethodDelete, path, nil, nil)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			if c.logger != nil {
				c.logger.Warn("delete target already gone", "kind", kind, "id", id)
			}
			return nil
		}
		return err
	}, c.onRetry("delete_"+kind))
}
