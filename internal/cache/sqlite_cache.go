package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS generations (
	name       TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	generation TEXT NOT NULL,
	key        TEXT NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (generation, key)
);`

// SQLiteStorage keeps every generation in a single SQLite database file
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) folder/cache.sqlite3
func NewSQLiteStorage(folder string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(folder, "cache.sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// One connection serializes writers and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Open(name string) (GenericCache, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	c := &sqliteCache{db: s.db, generation: name}
	if err := c.Init(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStorage) Has(name string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM generations WHERE name = ?", name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStorage) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM generations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStorage) Delete(name string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM generations WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE generation = ?", name); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if deleted > 0 {
		logrus.Debugf("Deleted cache generation %s", name)
	}
	return deleted > 0, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// sqliteCache is one generation inside a SQLiteStorage
type sqliteCache struct {
	db         *sql.DB
	generation string
}

func (c *sqliteCache) Get(key string) ([]byte, error) {
	var data []byte
	err := c.db.QueryRow("SELECT data FROM entries WHERE generation = ? AND key = ?", c.generation, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *sqliteCache) Set(key string, value []byte) error {
	_, err := c.db.Exec(
		`INSERT INTO entries (generation, key, data) VALUES (?, ?, ?)
		ON CONFLICT (generation, key) DO UPDATE SET data = excluded.data`,
		c.generation, key, value,
	)
	if err != nil {
		return err
	}
	logrus.Debugf("Cached response: %s/%s", c.generation, key)
	return nil
}

// Init registers the generation
func (c *sqliteCache) Init() error {
	_, err := c.db.Exec(
		"INSERT INTO generations (name, created_at) VALUES (?, ?) ON CONFLICT (name) DO NOTHING",
		c.generation, time.Now().Unix(),
	)
	return err
}
