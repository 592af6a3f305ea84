package models

import "time"

// JobType identifies the shape of a migration run.
type JobType string

const (
	JobTypeFull   JobType = "full"   // batch run over all discovered posts
	JobTypeSingle JobType = "single" // one explicitly named post
)

// JobStatus is the lifecycle state of a MigrationJob.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ItemStatus is the lifecycle state of a MigrationJobItem.
//
// Items are created as running when dispatched and move exactly once to a
// terminal status (success or failed). Pending exists only for rows staged
// ahead of dispatch.
type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusRunning ItemStatus = "running"
	ItemStatusSuccess ItemStatus = "success"
	ItemStatusFailed  ItemStatus = "failed"
)

// AssetStatus is the lifecycle state of an ImageAsset.
type AssetStatus string

const (
	AssetStatusPending  AssetStatus = "pending"
	AssetStatusUploaded AssetStatus = "uploaded"
	AssetStatusFailed   AssetStatus = "failed"
)

// MigrationJob is one batch or single-post run. Created with status running,
// finalized exactly once, never deleted.
type MigrationJob struct {
	ID           string
	Sequence     int
	Type         JobType
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// MigrationJobItem is one source URL's migration attempt within a job.
type MigrationJobItem struct {
	ID                string
	Sequence          int
	JobID             string
	SourceURL         string
	DestinationPostID *int64
	Status            ItemStatus
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ImageAsset is one binary asset transferred for one item.
type ImageAsset struct {
	ID                  string
	Sequence            int
	JobItemID           string
	SourceURL           string
	DestinationMediaID  *int64
	DestinationMediaURL string
	Status              AssetStatus
	ErrorMessage        string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PostMap is a durable source-URL to destination-post-ID mapping, independent
// of any job. One row per distinct source URL, written only on success.
type PostMap struct {
	ID                string
	Sequence          int
	SourceURL         string
	DestinationPostID int64
	CreatedAt         time.Time
}

// InternalLink is extracted same-origin link evidence, append-only.
type InternalLink struct {
	ID        string
	Sequence  int
	JobItemID string
	SourceURL string
	TargetURL string
	LinkText  string
	Context   string
	CreatedAt time.Time
}
