package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLIndex is an optional secondary index over the Snapshot Store's
// content-addressed blobs, per SPEC_FULL.md §11: "fast 'which snapshots
// reference this sha' queries; the JSON backend remains the source of
// truth." Built on modernc.org/sqlite (pure Go, no cgo) rather than
// mattn/go-sqlite3 — see DESIGN.md for why the cgo driver was not also
// wired.
type SQLIndex struct {
	db *sql.DB
}

// OpenSQLIndex opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func OpenSQLIndex(path string) (*SQLIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlindex: opening %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshot_blobs (
		snapshot_id TEXT NOT NULL,
		path        TEXT NOT NULL,
		sha         TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, path)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlindex: creating schema: %w", err)
	}
	return &SQLIndex{db: db}, nil
}

// Close closes the underlying database handle.
func (i *SQLIndex) Close() error { return i.db.Close() }

// Index records every file in snap against the index, replacing any prior
// rows for that snapshot id (a re-Take of the same snapshot id is
// idempotent).
func (i *SQLIndex) Index(snap *Snapshot) error {
	tx, err := i.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM snapshot_blobs WHERE snapshot_id = ?`, snap.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, f := range snap.Files {
		if _, err := tx.Exec(
			`INSERT INTO snapshot_blobs (snapshot_id, path, sha) VALUES (?, ?, ?)`,
			snap.ID, f.Path, f.SHA,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// SnapshotsReferencing returns every snapshot id that captured a file with
// the given SHA, the query this index exists for.
func (i *SQLIndex) SnapshotsReferencing(sha string) ([]string, error) {
	rows, err := i.db.Query(`SELECT DISTINCT snapshot_id FROM snapshot_blobs WHERE sha = ?`, sha)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Forget removes every row indexed for snapshotID, e.g. after Prune
// removes the snapshot's metadata record.
func (i *SQLIndex) Forget(snapshotID string) error {
	_, err := i.db.Exec(`DELETE FROM snapshot_blobs WHERE snapshot_id = ?`, snapshotID)
	return err
}
