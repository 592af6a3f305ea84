package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/shared"
)

// CreatePostMap records a durable source-URL to destination-post mapping.
// Written only on successful post creation; one row per distinct source URL
// across all jobs (UNIQUE constraint).
func (s *Store) CreatePostMap(sourceURL string, destinationPostID int64) (*models.PostMap, error) {
	sequence, err := s.nextSequence("post_map")
	if err != nil {
		return nil, err
	}

	mapping := &models.PostMap{
		ID:                shared.GenerateID(),
		Sequence:          sequence,
		SourceURL:         sourceURL,
		DestinationPostID: destinationPostID,
		CreatedAt:         time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO post_map (id, sequence, source_url, destination_post_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, mapping.ID, mapping.Sequence, mapping.SourceURL, mapping.DestinationPostID, mapping.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert post map: %v", shared.ErrPersistence, err)
	}

	return mapping, nil
}

// GetPostMapBySourceURL looks up the destination post for a source URL.
// Returns shared.ErrNotFound when no mapping exists.
func (s *Store) GetPostMapBySourceURL(sourceURL string) (*models.PostMap, error) {
	row := s.db.QueryRow(`
		SELECT id, sequence, source_url, destination_post_id, created_at
		FROM post_map WHERE source_url = ?
	`, sourceURL)

	var mapping models.PostMap
	err := row.Scan(&mapping.ID, &mapping.Sequence, &mapping.SourceURL, &mapping.DestinationPostID, &mapping.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: post map for %s", shared.ErrNotFound, sourceURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan post map: %v", shared.ErrPersistence, err)
	}

	return &mapping, nil
}

// ListPostMaps retrieves every source-to-destination mapping in insertion
// order.
func (s *Store) ListPostMaps() ([]*models.PostMap, error) {
	rows, err := s.db.Query(`
		SELECT id, sequence, source_url, destination_post_id, created_at
		FROM post_map ORDER BY sequence ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query post map: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var mappings []*models.PostMap
	for rows.Next() {
		var mapping models.PostMap
		if err := rows.Scan(&mapping.ID, &mapping.Sequence, &mapping.SourceURL,
			&mapping.DestinationPostID, &mapping.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan post map: %v", shared.ErrPersistence, err)
		}
		mappings = append(mappings, &mapping)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrPersistence, err)
	}

	return mappings, nil
}

// InsertInternalLink appends one extracted same-origin link. Append-only.
func (s *Store) InsertInternalLink(link *models.InternalLink) error {
	sequence, err := s.nextSequence("internal_links")
	if err != nil {
		return err
	}

	link.ID = shared.GenerateID()
	link.Sequence = sequence
	link.CreatedAt = time.Now()

	_, err = s.db.Exec(`
		INSERT INTO internal_links (id, sequence, job_item_id, source_url, target_url, link_text, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, link.ID, link.Sequence, link.JobItemID, link.SourceURL, link.TargetURL,
		nullable(link.LinkText), nullable(link.Context), link.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to insert internal link: %v", shared.ErrPersistence, err)
	}

	return nil
}

// GetInternalLinksByItem retrieves the links extracted for one item in
// insertion order.
func (s *Store) GetInternalLinksByItem(jobItemID string) ([]*models.InternalLink, error) {
	rows, err := s.db.Query(`
		SELECT id, sequence, job_item_id, source_url, target_url, link_text, context, created_at
		FROM internal_links WHERE job_item_id = ? ORDER BY sequence ASC
	`, jobItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query internal links: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var links []*models.InternalLink
	for rows.Next() {
		var (
			link     models.InternalLink
			linkText sql.NullString
			context  sql.NullString
		)
		if err := rows.Scan(&link.ID, &link.Sequence, &link.JobItemID, &link.SourceURL,
			&link.TargetURL, &linkText, &context, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan internal link: %v", shared.ErrPersistence, err)
		}
		if linkText.Valid {
			link.LinkText = linkText.String
		}
		if context.Valid {
			link.Context = context.String
		}
		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrPersistence, err)
	}

	return links, nil
}

// ListInternalLinks retrieves every extracted link in insertion order.
func (s *Store) ListInternalLinks() ([]*models.InternalLink, error) {
	rows, err := s.db.Query(`
		SELECT id, sequence, job_item_id, source_url, target_url, link_text, context, created_at
		FROM internal_links ORDER BY sequence ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query internal links: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var links []*models.InternalLink
	for rows.Next() {
		var (
			link     models.InternalLink
			linkText sql.NullString
			context  sql.NullString
		)
		if err := rows.Scan(&link.ID, &link.Sequence, &link.JobItemID, &link.SourceURL,
			&link.TargetURL, &linkText, &context, &link.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan internal link: %v", shared.ErrPersistence, err)
		}
		if linkText.Valid {
			link.LinkText = linkText.String
		}
		if context.Valid {
			link.Context = context.String
		}
		links = append(links, &link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrPersistence, err)
	}

	return links, nil
}
