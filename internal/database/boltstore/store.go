// Package boltstore keeps report rate-limit windows in a BoltDB file for
// single-node deployments.
package boltstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BucketReportWindows holds one JSON-encoded window per reporter id.
var BucketReportWindows = []byte("report_windows")

var buckets = [][]byte{BucketReportWindows}

const (
	defaultPath     = "agora-limits.db"
	defaultLockWait = 5 * time.Second
)

type Store struct {
	db   *bolt.DB
	path string
}

// Options for Open. Zero values fall back to agora-limits.db in the working
// directory, a 5s file lock wait and mode 0600.
type Options struct {
	Path     string
	Timeout  time.Duration
	FileMode os.FileMode
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = defaultPath
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultLockWait
	}
	if o.FileMode == 0 {
		o.FileMode = 0o600
	}
	return o
}

// Open opens the limiter database, creating the file, its parent directory
// and the buckets on first use.
func Open(opts Options) (*Store, error) {
	opts = opts.withDefaults()

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create limiter directory %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(opts.Path, opts.FileMode, &bolt.Options{Timeout: opts.Timeout})
	if err != nil {
		return nil, fmt.Errorf("open limiter database %s: %w", opts.Path, err)
	}

	if err := db.Update(createBuckets); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: opts.Path}, nil
}

func createBuckets(tx *bolt.Tx) error {
	for _, name := range buckets {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path is the file the store was opened on.
func (s *Store) Path() string { return s.path }

// ReportLimiter returns a fixed-window limiter that persists its counts here.
func (s *Store) ReportLimiter(limit int, window time.Duration) *ReportLimiter {
	return newReportLimiter(s.db, limit, window)
}

func (s *Store) Stats() bolt.Stats {
	return s.db.Stats()
}
