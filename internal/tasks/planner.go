package tasks

import (
	"errors"
	"fmt"

	"github.com/pressline/pressline/internal/ledger"
	"github.com/pressline/pressline/internal/shared"
)

// Plan is the pending work for a batch run.
type Plan struct {
	Pending []string // URLs to migrate, in discovery order
	Skipped int      // URLs excluded by ledger state
}

// BuildPlan diffs the discovered URL list against the ledger. A URL with a
// post map row has already been migrated and is always skipped, which makes
// re-running a partially completed batch idempotent. A URL whose only history
// is failure is skipped by default and included when retryFailed is set.
func BuildPlan(store *ledger.Store, blogURL string, discovered []string, retryFailed bool) (*Plan, error) {
	failed := map[string]bool{}
	if !retryFailed {
		items, err := store.GetUnresolvedFailedItemsByBlog(blogURL)
		if err != nil {
			return nil, fmt.Errorf("load failed items: %w", err)
		}
		for _, item := range items {
			failed[item.SourceURL] = true
		}
	}

	plan := &Plan{}
	for _, url := range discovered {
		migrated, err := hasPostMap(store, url)
		if err != nil {
			return nil, err
		}
		if migrated || failed[url] {
			plan.Skipped++
			continue
		}
		plan.Pending = append(plan.Pending, url)
	}
	return plan, nil
}

func hasPostMap(store *ledger.Store, url string) (bool, error) {
	_, err := store.GetPostMapBySourceURL(url)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("look up post map for %s: %w", url, err)
}
