// Package store provides durable key/value persistence for the task list and
// the pending-operation queue.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrStore marks a local persistence failure.
// Callers tell it apart from remote failures with errors.Is.
var ErrStore = errors.New("local store failure")

// DefaultNamespace is the bucket name used when none is configured.
const DefaultNamespace = "offlineTaskDB"

// Record keys.
const (
	KeyTasks      = "tasks"
	KeyPending    = "pendingSync"
	KeyDeadLetter = "deadLetter"
	KeySeq        = "seq"
)

// Store is a durable key/value store.
// Get returns nil for an absent key. The last completed Set wins; there are
// no transactions across keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Sessioner is implemented by stores that can give one caller exclusive
// access across several Get and Set calls.
type Sessioner interface {
	Session(ctx context.Context, fn func(Store) error) error
}

// Session runs fn with exclusive access to s when s is a Sessioner, and with
// s itself otherwise. fn must use the Store it is given.
func Session(ctx context.Context, s Store, fn func(Store) error) error {
	if ss, ok := s.(Sessioner); ok {
		return ss.Session(ctx, fn)
	}
	return fn(s)
}

// GetJSON decodes the record under key into v.
// Returns false if the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: decode %s: %v", ErrStore, key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStore, key, err)
	}
	return s.Set(ctx, key, data)
}
