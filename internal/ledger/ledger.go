// package ledger is the single source of truth for migration state.
//
// Every job, item, asset, post mapping and extracted link row is written and
// read through [Store]. Callers hold only transient ids and URLs; the ledger
// stays authoritative for resume and reporting decisions.
package ledger

import (
	"database/sql"
	"fmt"

	"github.com/pressline/pressline/internal/shared"
)

// Store wraps the process-wide database connection. One Store exists per run;
// the connection is opened at startup and closed on every exit path.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database connection with the schema
// already applied (see shared.RunMigrations).
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// nextSequence atomically increments and returns the next sequence number for
// the given table. Sequence numbers provide stable insertion ordering.
func (s *Store) nextSequence(table string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin transaction: %v", shared.ErrPersistence, err)
	}
	defer tx.Rollback()

	sequenceTable := table + "_sequence"

	if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET value = value + 1 WHERE id = 1", sequenceTable)); err != nil {
		return 0, fmt.Errorf("%w: failed to increment sequence: %v", shared.ErrPersistence, err)
	}

	var sequence int
	if err := tx.QueryRow(fmt.Sprintf("SELECT value FROM %s WHERE id = 1", sequenceTable)).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("%w: failed to read sequence value: %v", shared.ErrPersistence, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit sequence transaction: %v", shared.ErrPersistence, err)
	}

	return sequence, nil
}

// nullable converts an empty string to NULL for insertion.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
