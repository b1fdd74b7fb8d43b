package storage

import (
	"database/sql"
	"errors"
)

// translateNotFound maps sql.ErrNoRows to the package's own ErrNotFound so
// callers never need to import database/sql to check for a missing row.
func translateNotFound(err error, notFound error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	return err
}
