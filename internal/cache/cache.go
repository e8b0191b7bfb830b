// Package cache persists small JSON blobs keyed by string in a local SQLite
// database, surviving app restarts. Each flow owns a disjoint key prefix;
// concurrent writers follow last-write-wins.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultCacheSize  = -2000 // 2MB
	busyTimeout       = 5000  // milliseconds
	walAutoCheckpoint = 1000  // pages
	maxOpenConns      = 5
	maxIdleConns      = 2
)

// Store is a SQLite-backed key-value store for JSON blobs.
type Store struct {
	db    *sql.DB
	getPS *sql.Stmt
	putPS *sql.Stmt
	delPS *sql.Stmt
}

// Open opens (or creates) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, errors.Wrap(err, "failed to create cache directory")
	}

	// Windows paths need URI-escaping for the sqlite driver
	path := dbPath
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(dbPath, "\\", "/")
	}
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&"+
			"_busy_timeout=%d&_cache_size=%d",
		path,
		walAutoCheckpoint,
		busyTimeout,
		defaultCacheSize,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open cache database")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initializeDatabase(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{db: db}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func initializeDatabase(db *sql.DB) error {
	schema := `CREATE TABLE IF NOT EXISTS kv_cache (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "schema creation failed")
	}
	if _, err := db.Exec(`PRAGMA optimize`); err != nil {
		return errors.Wrap(err, "initial optimization failed")
	}
	return nil
}

func (s *Store) prepareStatements() error {
	put, err := s.db.Prepare(`INSERT INTO kv_cache (key, value, updated_at)
		VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`)
	if err != nil {
		return errors.Wrap(err, "put preparation failed")
	}

	get, err := s.db.Prepare(`SELECT value FROM kv_cache WHERE key = ?`)
	if err != nil {
		return errors.Wrap(err, "get preparation failed")
	}

	del, err := s.db.Prepare(`DELETE FROM kv_cache WHERE key = ?`)
	if err != nil {
		return errors.Wrap(err, "delete preparation failed")
	}

	s.putPS, s.getPS, s.delPS = put, get, del
	return nil
}

// Get returns the raw blob stored under key; ok is false when the key is
// absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.getPS.QueryRow(key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "query failed")
	}
	return value, true, nil
}

// Put stores value under key, replacing any previous blob.
func (s *Store) Put(key string, value []byte) error {
	_, err := s.putPS.Exec(key, value, time.Now().Unix())
	return errors.Wrap(err, "put failed")
}

// Delete removes key; deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	_, err := s.delPS.Exec(key)
	return errors.Wrap(err, "delete failed")
}

// GetJSON decodes the blob under key into out; ok is false when absent.
func (s *Store) GetJSON(key string, out interface{}) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, errors.Wrapf(err, "failed to decode cached %s", key)
	}
	return true, nil
}

// PutJSON encodes v and stores it under key.
func (s *Store) PutJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", key)
	}
	return s.Put(key, raw)
}

// GetString reads a plain string value (stored as a JSON string).
func (s *Store) GetString(key string) (string, bool, error) {
	var v string
	ok, err := s.GetJSON(key, &v)
	return v, ok, err
}

// PutString stores a plain string value.
func (s *Store) PutString(key, value string) error {
	return s.PutJSON(key, value)
}

// Close releases the prepared statements and the database handle.
func (s *Store) Close() error {
	var finalErr error

	closeStmt := func(stmt *sql.Stmt, name string) {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				finalErr = errors.Wrapf(err, "%s statement close error", name)
			}
		}
	}

	closeStmt(s.putPS, "put")
	closeStmt(s.getPS, "get")
	closeStmt(s.delPS, "delete")

	if err := s.db.Close(); err != nil {
		finalErr = errors.Wrap(err, "database close error")
	}
	return finalErr
}
