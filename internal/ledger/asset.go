package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/shared"
)

// CreateImageAsset inserts an asset row with status pending, before the
// download is attempted.
func (s *Store) CreateImageAsset(jobItemID, sourceURL string) (*models.ImageAsset, error) {
	sequence, err := s.nextSequence("image_assets")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	asset := &models.ImageAsset{
		ID:        shared.GenerateID(),
		Sequence:  sequence,
		JobItemID: jobItemID,
		SourceURL: sourceURL,
		Status:    models.AssetStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.Exec(`
		INSERT INTO image_assets (id, sequence, job_item_id, source_url, destination_media_id, destination_media_url, status, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, asset.ID, asset.Sequence, asset.JobItemID, asset.SourceURL, nil, nil, asset.Status, nil, asset.CreatedAt, asset.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert image asset: %v", shared.ErrPersistence, err)
	}

	return asset, nil
}

// AssetPatch describes a partial asset update. Nil fields are left untouched.
type AssetPatch struct {
	Status              *models.AssetStatus
	DestinationMediaID  *int64
	DestinationMediaURL *string
	ErrorMessage        *string
}

// UpdateImageAsset applies a partial update to an asset and bumps updated_at.
func (s *Store) UpdateImageAsset(id string, patch AssetPatch) error {
	query := "UPDATE image_assets SET updated_at = ?, "
	args := []any{time.Now()}

	if patch.Status != nil {
		query += "status = ?, "
		args = append(args, *patch.Status)
	}
	if patch.DestinationMediaID != nil {
		query += "destination_media_id = ?, "
		args = append(args, *patch.DestinationMediaID)
	}
	if patch.DestinationMediaURL != nil {
		query += "destination_media_url = ?, "
		args = append(args, nullable(*patch.DestinationMediaURL))
	}
	if patch.ErrorMessage != nil {
		query += "error_message = ?, "
		args = append(args, nullable(*patch.ErrorMessage))
	}

	query = query[:len(query)-2] + " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update image asset: %v", shared.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrPersistence, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: image asset %s", shared.ErrNotFound, id)
	}

	return nil
}

// GetAssetsByItem retrieves all assets recorded for a job item in insertion order.
func (s *Store) GetAssetsByItem(jobItemID string) ([]*models.ImageAsset, error) {
	rows, err := s.db.Query(`
		SELECT id, sequence, job_item_id, source_url, destination_media_id, destination_media_url, status, error_message, created_at, updated_at
		FROM image_assets WHERE job_item_id = ? ORDER BY sequence ASC
	`, jobItemID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query image assets: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var assets []*models.ImageAsset
	for rows.Next() {
		var (
			asset        models.ImageAsset
			mediaID      sql.NullInt64
			mediaURL     sql.NullString
			errorMessage sql.NullString
		)
		if err := rows.Scan(
			&asset.ID, &asset.Sequence, &asset.JobItemID, &asset.SourceURL,
			&mediaID, &mediaURL, &asset.Status, &errorMessage, &asset.CreatedAt, &asset.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: failed to scan image asset: %v", shared.ErrPersistence, err)
		}
		if mediaID.Valid {
			v := mediaID.Int64
			asset.DestinationMediaID = &v
		}
		if mediaURL.Valid {
			asset.DestinationMediaURL = mediaURL.String
		}
		if errorMessage.Valid {
			asset.ErrorMessage = errorMessage.String
		}
		assets = append(assets, &asset)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration error: %v", shared.ErrPersistence, err)
	}

	return assets, nil
}
