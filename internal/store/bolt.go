package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// LockTimeout bounds the wait for another process's session on the same file.
const LockTimeout = time.Second

// BoltStore keeps every record in a single bbolt bucket named after the namespace.
//
// The database file is opened only for the length of a session, so several
// processes (a running watch and a one-shot add) can share it. A plain Get or
// Set is a session of its own.
type BoltStore struct {
	path   string
	bucket []byte

	mu     sync.Mutex
	closed bool
}

// OpenBolt creates the database file at path if needed and checks that it can
// be locked.
func OpenBolt(path, namespace string) (*BoltStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: bolt path required", ErrStore)
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", ErrStore, err)
	}
	s := &BoltStore{path: path, bucket: []byte(namespace)}
	if err := s.Session(context.Background(), func(Store) error { return nil }); err != nil {
		return nil, err
	}
	return s, nil
}

// Session implements Sessioner. The file lock is held until fn returns.
func (s *BoltStore) Session(ctx context.Context, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: bolt closed", ErrStore)
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: LockTimeout})
	if err != nil {
		return fmt.Errorf("%w: open bolt: %v", ErrStore, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists(s.bucket)
		return berr
	}); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: init bucket: %v", ErrStore, err)
	}

	ferr := fn(&boltSession{db: db, bucket: s.bucket})
	if err := db.Close(); err != nil && ferr == nil {
		return fmt.Errorf("%w: close bolt: %v", ErrStore, err)
	}
	return ferr
}

// Get implements Store.
func (s *BoltStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.Session(ctx, func(tx Store) error {
		var err error
		out, err = tx.Get(ctx, key)
		return err
	})
	return out, err
}

// Set implements Store.
func (s *BoltStore) Set(ctx context.Context, key string, value []byte) error {
	return s.Session(ctx, func(tx Store) error {
		return tx.Set(ctx, key, value)
	})
}

// Close implements Store. Later calls fail with ErrStore.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// boltSession is the Store handed to a session; it is valid until the
// session ends.
type boltSession struct {
	db     *bolt.DB
	bucket []byte
}

func (b *boltSession) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errors.New("bucket missing")
		}
		if v := bk.Get([]byte(key)); v != nil {
			// v is only valid inside the transaction
			out = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStore, key, err)
	}
	return out, nil
}

func (b *boltSession) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return errors.New("bucket missing")
		}
		return bk.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStore, key, err)
	}
	return nil
}

// Close is a no-op; the session closes the database.
func (b *boltSession) Close() error { return nil }
