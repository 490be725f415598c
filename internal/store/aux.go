package store

import (
	"database/sql"
	"fmt"
)

// Hooks returns the registered plugin module identifiers in order.
func (q queries) Hooks() ([]string, error) {
	return q.orderedNames("SELECT name FROM hooks ORDER BY idx ASC, name ASC")
}

// AddHook appends a plugin module identifier to the registry.
func (q queries) AddHook(name string) error {
	var max sql.NullInt64
	if err := q.q.QueryRow("SELECT MAX(idx) FROM hooks").Scan(&max); err != nil {
		return fmt.Errorf("%w: max hooks idx: %v", ErrStorageUnavailable, err)
	}
	_, err := q.q.Exec("INSERT INTO hooks (idx, name) VALUES (?, ?)", max.Int64+1, name)
	if err != nil {
		return fmt.Errorf("%w: insert hooks: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// RemoveHook deletes a plugin module identifier.
func (q queries) RemoveHook(name string) error {
	return q.exec1("delete hook", "DELETE FROM hooks WHERE name = ?", name)
}

// CopyPaths returns the remembered copy destinations in order of use.
func (q queries) CopyPaths() ([]string, error) {
	return q.orderedNames("SELECT path FROM copy_paths ORDER BY idx ASC")
}

// RememberCopyPath records a copy destination, moving it to the front
// of the history when already present.
func (q queries) RememberCopyPath(path string) error {
	if _, err := q.q.Exec("DELETE FROM copy_paths WHERE path = ?", path); err != nil {
		return fmt.Errorf("%w: dedup copy_paths: %v", ErrStorageUnavailable, err)
	}
	var min sql.NullInt64
	if err := q.q.QueryRow("SELECT MIN(idx) FROM copy_paths").Scan(&min); err != nil {
		return fmt.Errorf("%w: min copy_paths idx: %v", ErrStorageUnavailable, err)
	}
	_, err := q.q.Exec("INSERT INTO copy_paths (idx, path) VALUES (?, ?)", min.Int64-1, path)
	if err != nil {
		return fmt.Errorf("%w: insert copy_paths: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (q queries) orderedNames(query string) ([]string, error) {
	rows, err := q.q.Query(query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
