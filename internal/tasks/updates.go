package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	URL     string // Source URL the update concerns, when applicable
}

// Operation phase enumeration
type Phase int

const (
	Discover Phase = iota
	PlanPhase
	MigratePost
	PostDone
	PostFailed
	Finalize
)

func (p Phase) String() string {
	switch p {
	case Discover:
		return "discover"
	case PlanPhase:
		return "plan"
	case MigratePost:
		return "migrate_post"
	case PostDone:
		return "post_done"
	case PostFailed:
		return "post_failed"
	case Finalize:
		return "finalize"
	default:
		return ""
	}
}

func discoverUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Discover,
		Message: fmt.Sprintf("Discovered %d posts", count),
	}
}

func planUpdate(pending, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PlanPhase,
		Message: fmt.Sprintf("%d posts pending, %d already migrated or recorded", pending, skipped),
	}
}

func migratePostUpdate(step, total int, url string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MigratePost,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("[%d/%d] Migrating %s", step, total, url),
	}
}

func postDoneUpdate(step, total int, url string, postID int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PostDone,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (post %d)", step, total, url, postID),
	}
}

func postFailedUpdate(step, total int, url string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PostFailed,
		Step:    step,
		Total:   total,
		URL:     url,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, url, err),
	}
}

func finalizeUpdate(completed, failed, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Finalize,
		Message: fmt.Sprintf("Completed: %d, failed: %d, skipped: %d", completed, failed, skipped),
	}
}
