// Package vaultdb is the database-level facade: a named set of
// collections sharing one BaseDirectory/DatabaseName, opened lazily and
// closed together. Go forbids generic methods on a non-generic receiver,
// so the typed getOrCreate lives as a package-level function rather than
// a method on Database, mirroring the teacher's factory-container split
// between a plain struct and the typed values it assembles.
package vaultdb

import (
	"cmp"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ssargent/slotkv/pkg/collection"
	"github.com/ssargent/slotkv/pkg/config"
)

// Database owns every collection opened under one BaseDirectory/
// DatabaseName pair. It holds collections as io.Closer since a single
// Database can host collections of different key/value types.
type Database struct {
	opts   config.DatabaseOptions
	logger *slog.Logger

	mu      sync.Mutex
	perName map[string]*sync.Mutex
	open    map[string]io.Closer
	closed  bool
}

// NewDatabase validates opts and returns an empty Database. No file is
// touched until a collection is opened.
func NewDatabase(opts config.DatabaseOptions, logger *slog.Logger) (*Database, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDatabaseName, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Database{
		opts:    opts,
		logger:  logger,
		perName: make(map[string]*sync.Mutex),
		open:    make(map[string]io.Closer),
	}, nil
}

func (d *Database) nameLock(name string) (*sync.Mutex, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDatabaseClosed
	}
	lock, ok := d.perName[name]
	if !ok {
		lock = &sync.Mutex{}
		d.perName[name] = lock
	}
	return lock, nil
}

// Open returns the already-open collection named name, cast to
// Collection[K, V], or opens and registers it with config.Default(db's
// DatabaseOptions, name) as a base, adjusted by configure. The per-name
// lock serializes concurrent Open calls for the same name without
// blocking callers opening unrelated collections.
//
// If the Database was built with IsReadOnlyEnabled, every collection it
// opens is forced read-only regardless of configure, and opening a
// collection with no existing file returns ErrDatabaseReadOnly instead
// of creating one.
func Open[K cmp.Ordered, V any](db *Database, name string, configure func(*config.CollectionOptions)) (*collection.Collection[K, V], error) {
	lock, err := db.nameLock(name)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	db.mu.Lock()
	existing, ok := db.open[name]
	db.mu.Unlock()
	if ok {
		c, ok := existing.(*collection.Collection[K, V])
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, name)
		}
		return c, nil
	}

	opts := config.Default(db.opts, name)
	if configure != nil {
		configure(&opts)
	}

	if db.opts.IsReadOnlyEnabled {
		opts.IsReadOnlyEnabled = true
		if !opts.IsMemoryOnlyEnabled {
			if _, err := os.Stat(opts.FileName(name)); err != nil {
				return nil, fmt.Errorf("%w: %s", ErrDatabaseReadOnly, name)
			}
		}
	}

	c, err := collection.Open[K, V](opts, name, db.logger)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	db.open[name] = c
	db.mu.Unlock()
	return c, nil
}

// Close closes every collection opened on this Database. It is
// idempotent; the first error encountered is returned, but every
// collection is still given a chance to close.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var firstErr error
	for name, c := range d.open {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.open, name)
	}
	return firstErr
}

// Names returns the names of every collection currently open.
func (d *Database) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.open))
	for name := range d.open {
		names = append(names, name)
	}
	return names
}
