package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"imagesearch/types"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is kept in PRAGMA user_version so an incompatible
// database file is rejected instead of silently misread.
const schemaVersion = 1

// SQLiteStore persists the index in a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if necessary) a SQLite-backed index store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		name TEXT,
		content_type TEXT,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		feature BLOB NOT NULL,
		indexed_at TEXT
	);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	switch version {
	case 0:
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			db.Close()
			return nil, &PersistenceError{Op: "open", Path: path, Err: err}
		}
	case schemaVersion:
	default:
		db.Close()
		return nil, &PersistenceError{
			Op:   "open",
			Path: path,
			Err:  fmt.Errorf("unsupported schema version %d (expected %d)", version, schemaVersion),
		}
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Load reads every stored entry. An empty database yields an empty index.
func (s *SQLiteStore) Load() (types.Index, error) {
	rows, err := s.db.Query("SELECT id, name, content_type, width, height, feature FROM images")
	if err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	defer rows.Close()

	idx := types.Index{}
	for rows.Next() {
		var id, name, contentType string
		var width, height int
		var pix []byte
		if err := rows.Scan(&id, &name, &contentType, &width, &height, &pix); err != nil {
			return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
		}
		if len(pix) != width*height {
			return nil, &PersistenceError{
				Op:   "load",
				Path: s.path,
				Err:  fmt.Errorf("entry %s has a %dx%d feature with %d pixel bytes", id, width, height, len(pix)),
			}
		}
		idx[id] = types.IndexEntry{
			Meta:    types.Meta{Name: name, ContentType: contentType},
			Feature: types.Feature{Width: width, Height: height, Pix: pix},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Path: s.path, Err: err}
	}
	return idx, nil
}

// Save replaces the stored index in a single transaction.
func (s *SQLiteStore) Save(idx types.Index) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM images"); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO images (id, name, content_type, width, height, feature, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	defer stmt.Close()

	ids := make([]string, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().Format(time.RFC3339)
	for _, id := range ids {
		entry := idx[id]
		if err := validateEntry(id, entry); err != nil {
			return &PersistenceError{Op: "save", Path: s.path, Err: err}
		}
		_, err := stmt.Exec(id, entry.Meta.Name, entry.Meta.ContentType,
			entry.Feature.Width, entry.Feature.Height, []byte(entry.Feature.Pix), now)
		if err != nil {
			return &PersistenceError{Op: "save", Path: s.path, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
