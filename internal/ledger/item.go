package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/shared"
)

// CreateItem inserts a job item with status running. The UNIQUE(job_id,
// source_url) constraint rejects a second dispatch of the same URL within one
// job, which keeps resume math correct even if a caller misbehaves.
func (s *Store) CreateItem(jobID, sourceURL string) (*models.MigrationJobItem, error) {
	sequence, err := s.nextSequence("job_items")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	item := &models.MigrationJobItem{
		ID:        shared.GenerateID(),
		Sequence:  sequence,
		JobID:     jobID,
		SourceURL: sourceURL,
		Status:    models.ItemStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.Exec(`
		INSERT INTO job_items (id, sequence, job_id, source_url, destination_post_id, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Sequence, item.JobID, item.SourceURL, nil, item.Status, nil, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert job item: %v", shared.ErrPersistence, err)
	}

	return item, nil
}

// ItemPatch describes a partial item update. Nil fields are left untouched.
type ItemPatch struct {
	Status            *models.ItemStatus
	DestinationPostID *int64
	ErrorMessage      *string
}

// UpdateItem applies a partial update to a job item and bumps updated_at.
func (s *Store) UpdateItem(id string, patch ItemPatch) error {
	query := "UPDATE job_items SET updated_at = ?, "
	args := []any{time.Now()}

	if patch.Status != nil {
		query += "status = ?, "
		args = append(args, *patch.Status)
	}
	if patch.DestinationPostID != nil {
		query += "destination_post_id = ?, "
		args = append(args, *patch.DestinationPostID)
	}
	if patch.ErrorMessage != nil {
		query += "error_message = ?, "
		args = append(args, nullable(*patch.ErrorMessage))
	}

	query = query[:len(query)-2] + " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update job item: %v", shared.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrPersistence, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job item %s", shared.ErrNotFound, id)
	}

	return nil
}

const itemColumns = `id, sequence, job_id, source_url, destination_post_id, status, error_message, created_at, updated_at`

// GetItemsByJob retrieves all items for a job in insertion order.
func (s *Store) GetItemsByJob(jobID string) ([]*models.MigrationJobItem, error) {
	rows, err := s.db.Query(
		"SELECT "+itemColumns+" FROM job_items WHERE job_id = ? ORDER BY sequence ASC", jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query job items: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// GetItemsByJobAndStatus retrieves items for a job filtered by status, in
// insertion order. Used by the resume planner.
func (s *Store) GetItemsByJobAndStatus(jobID string, status models.ItemStatus) ([]*models.MigrationJobItem, error) {
	rows, err := s.db.Query(
		"SELECT "+itemColumns+" FROM job_items WHERE job_id = ? AND status = ? ORDER BY sequence ASC",
		jobID, status)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query job items: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// GetUnresolvedFailedItemsByBlog returns failed items whose source URL never
// succeeded in any job for the given blog. URLs that eventually migrated are
// excluded, so the failure export only shows genuinely missing posts.
func (s *Store) GetUnresolvedFailedItemsByBlog(blogURL string) ([]*models.MigrationJobItem, error) {
	rows, err := s.db.Query(`
		SELECT `+itemColumns+`
		FROM job_items
		WHERE status = ? AND source_url LIKE ? || '%'
		  AND source_url NOT IN (
			SELECT source_url FROM job_items WHERE status = ?
		  )
		ORDER BY sequence ASC
	`, models.ItemStatusFailed, blogURL, models.ItemStatusSuccess)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query failed items: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]*models.MigrationJobItem, error) {
	var items []*models.MigrationJobItem
	for rows.Next() {
		var (
			item         models.MigrationJobItem
			destPostID   sql.NullInt64
			errorMessage sql.NullString
		)
		if err := rows.Scan(
			&item.ID, &item.Sequence, &item.JobID, &item.SourceURL,
			&destPostID, &item.Status, &errorMessage, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan job item: %v", shared.ErrPersistence, err)
		}
		if destPostID.Valid {
			v := destPostID.Int64
			item.DestinationPostID = &v
		}
		if errorMessage.Valid {
			item.ErrorMessage = errorMessage.String
		}
		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrPersistence, err)
	}

	return items, nil
}
