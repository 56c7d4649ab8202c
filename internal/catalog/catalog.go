/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package catalog reads the track catalog snapshot: a SQLite file with a
// single table mapping integer ids to remote locators.
//
//	files(id INTEGER PRIMARY KEY, path TEXT NOT NULL, size INTEGER)
//
// The snapshot is downloaded once at startup and treated as static; the
// store is opened read-only and never cached.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

// ErrUnavailable indicates the backing store cannot be queried.
var ErrUnavailable = errors.New("catalog unavailable")

// ErrEmpty indicates the catalog holds no entries.
var ErrEmpty = errors.New("catalog is empty")

// Entry is one catalog row.
type Entry struct {
	ID      int64
	Locator string
	Size    int64
}

// Store is a read-only handle on the catalog file.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the catalog file read-only.
func Open(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, path, err)
	}

	return &Store{db: db, path: path}, nil
}

// Count returns the number of catalog entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Lookup returns the entry for an id. Calling it with an id outside
// [1, Count()] is a caller error.
func (s *Store) Lookup(ctx context.Context, id int64) (Entry, error) {
	var e Entry
	var size sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, path, size FROM files WHERE id = ?`, id).
		Scan(&e.ID, &e.Locator, &size)
	if err != nil {
		return Entry{}, fmt.Errorf("lookup id %d: %w", id, err)
	}
	e.Size = size.Int64
	return e, nil
}

// Random samples one entry uniformly. The count is read first, then the id is
// drawn from [1, count].
func (s *Store) Random(ctx context.Context) (Entry, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return Entry{}, err
	}
	if n == 0 {
		return Entry{}, ErrEmpty
	}
	id := rand.Int63n(n) + 1
	return s.Lookup(ctx, id)
}

// Close releases the store handle.
func (s *Store) Close() error {
	return s.db.Close()
}
