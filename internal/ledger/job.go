package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressline/pressline/internal/models"
	"github.com/pressline/pressline/internal/shared"
)

// CreateJob inserts a new migration job with status running.
func (s *Store) CreateJob(jobType models.JobType) (*models.MigrationJob, error) {
	sequence, err := s.nextSequence("jobs")
	if err != nil {
		return nil, err
	}

	job := &models.MigrationJob{
		ID:        shared.GenerateID(),
		Sequence:  sequence,
		Type:      jobType,
		Status:    models.JobStatusRunning,
		CreatedAt: time.Now(),
	}

	_, err = s.db.Exec(`
		INSERT INTO jobs (id, sequence, job_type, status, error_message, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Sequence, job.Type, job.Status, nil, job.CreatedAt, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to insert job: %v", shared.ErrPersistence, err)
	}

	return job, nil
}

// JobPatch describes a partial job update. Nil fields are left untouched.
type JobPatch struct {
	Status       *models.JobStatus
	CompletedAt  *time.Time
	ErrorMessage *string
}

// UpdateJob applies a partial update to a job. Supplying an empty patch is a
// no-op.
func (s *Store) UpdateJob(id string, patch JobPatch) error {
	query := "UPDATE jobs SET "
	args := []any{}

	if patch.Status != nil {
		query += "status = ?, "
		args = append(args, *patch.Status)
	}
	if patch.CompletedAt != nil {
		query += "completed_at = ?, "
		args = append(args, *patch.CompletedAt)
	}
	if patch.ErrorMessage != nil {
		query += "error_message = ?, "
		args = append(args, nullable(*patch.ErrorMessage))
	}

	if len(args) == 0 {
		return nil
	}

	query = query[:len(query)-2] + " WHERE id = ?"
	args = append(args, id)

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update job: %v", shared.ErrPersistence, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: failed to get affected rows: %v", shared.ErrPersistence, err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %s", shared.ErrNotFound, id)
	}

	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(id string) (*models.MigrationJob, error) {
	row := s.db.QueryRow(`
		SELECT id, sequence, job_type, status, error_message, created_at, completed_at
		FROM jobs WHERE id = ?
	`, id)

	var (
		job          models.MigrationJob
		errorMessage sql.NullString
		completedAt  sql.NullTime
	)
	err := row.Scan(&job.ID, &job.Sequence, &job.Type, &job.Status, &errorMessage, &job.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: job %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to scan job: %v", shared.ErrPersistence, err)
	}

	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}

	return &job, nil
}

// ListJobs retrieves all jobs in creation order.
func (s *Store) ListJobs() ([]*models.MigrationJob, error) {
	rows, err := s.db.Query(`
		SELECT id, sequence, job_type, status, error_message, created_at, completed_at
		FROM jobs ORDER BY sequence
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query jobs: %v", shared.ErrPersistence, err)
	}
	defer rows.Close()

	var jobs []*models.MigrationJob
	for rows.Next() {
		var (
			job          models.MigrationJob
			errorMessage sql.NullString
			completedAt  sql.NullTime
		)
		if err := rows.Scan(&job.ID, &job.Sequence, &job.Type, &job.Status, &errorMessage, &job.CreatedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan job: %v", shared.ErrPersistence, err)
		}
		if errorMessage.Valid {
			job.ErrorMessage = errorMessage.String
		}
		if completedAt.Valid {
			t := completedAt.Time
			job.CompletedAt = &t
		}
		jobs = append(jobs, &job)
	}

	return jobs, rows.Err()
}
