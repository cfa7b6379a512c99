package store

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

const pragmas = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// DB wraps a SQLite connection to one account's gravvy.db.
type DB struct {
	*sql.DB
	path   string
	strict bool
}

// Open creates a new SQLite connection with WAL mode and foreign keys on.
func Open(path string) (*DB, error) {
	return open(path, path+pragmas)
}

// OpenReadOnly opens the store without taking write access. Used by tools
// that inspect a store owned by a running daemon.
func OpenReadOnly(path string) (*DB, error) {
	return open(path, "file:"+path+pragmas+"&mode=ro")
}

func open(path, dsn string) (*DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &PersistenceError{Op: "open", Path: path, Err: err}
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the file the store was opened from.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	if err := db.DB.Close(); err != nil {
		return &PersistenceError{Op: "close", Path: db.path, Err: err}
	}
	return nil
}
