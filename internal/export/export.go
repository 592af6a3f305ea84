// package export writes JSON reports from the ledger for post-migration
// cleanup work: internal links that need rewriting and posts that never made
// it across.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/pressline/pressline/internal/ledger"
)

// LinkEntry is one same-origin link found during migration. TargetPostID is
// set when the link target itself was migrated, which makes the rewrite
// mechanical; a nil value flags a link whose target is still on the old blog.
type LinkEntry struct {
	SourceURL    string `json:"source_url"`
	TargetURL    string `json:"target_url"`
	LinkText     string `json:"link_text,omitempty"`
	Context      string `json:"context,omitempty"`
	TargetPostID *int64 `json:"target_post_id,omitempty"`
}

// LinkReport is the full internal-link inventory.
type LinkReport struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Total       int         `json:"total"`
	Unresolved  int         `json:"unresolved"`
	Links       []LinkEntry `json:"links"`
}

// WriteLinkReport writes every extracted internal link as JSON, resolving
// each target against one scan of the post map.
func WriteLinkReport(store *ledger.Store, w io.Writer) error {
	links, err := store.ListInternalLinks()
	if err != nil {
		return err
	}
	mappings, err := store.ListPostMaps()
	if err != nil {
		return err
	}
	migrated := make(map[string]int64, len(mappings))
	for _, mapping := range mappings {
		migrated[mapping.SourceURL] = mapping.DestinationPostID
	}

	report := LinkReport{GeneratedAt: time.Now(), Links: []LinkEntry{}}
	for _, link := range links {
		entry := LinkEntry{
			SourceURL: link.SourceURL,
			TargetURL: link.TargetURL,
			LinkText:  link.LinkText,
			Context:   link.Context,
		}
		if postID, ok := migrated[link.TargetURL]; ok {
			id := postID
			entry.TargetPostID = &id
		} else {
			report.Unresolved++
		}
		report.Links = append(report.Links, entry)
	}
	report.Total = len(report.Links)

	return writeJSON(w, report)
}

// FailureEntry is one source URL whose latest outcome is failure.
type FailureEntry struct {
	JobID        string    `json:"job_id"`
	SourceURL    string    `json:"source_url"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}

// FailureReport lists posts that failed and were never migrated by a later
// run.
type FailureReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Total       int            `json:"total"`
	Failures    []FailureEntry `json:"failures"`
}

// WriteFailureReport writes the unresolved failures for one blog as JSON.
// URLs that failed once but succeeded in a later job are excluded.
func WriteFailureReport(store *ledger.Store, blogURL string, w io.Writer) error {
	items, err := store.GetUnresolvedFailedItemsByBlog(blogURL)
	if err != nil {
		return err
	}

	report := FailureReport{GeneratedAt: time.Now(), Failures: []FailureEntry{}}
	for _, item := range items {
		report.Failures = append(report.Failures, FailureEntry{
			JobID:        item.JobID,
			SourceURL:    item.SourceURL,
			ErrorMessage: item.ErrorMessage,
			FailedAt:     item.UpdatedAt,
		})
	}
	report.Total = len(report.Failures)

	return writeJSON(w, report)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
