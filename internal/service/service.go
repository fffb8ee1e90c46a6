// Package service defines the backend-agnostic interface for remote task operations.
package service

import (
	"context"
	"errors"
)

// ErrUnreachable marks a transport-level failure (network error, timeout).
var ErrUnreachable = errors.New("remote unreachable")

// ErrRejected marks a non-success response from the remote store.
var ErrRejected = errors.New("remote rejected")

// Remote defines the interface for remote record store operations.
// All remote calls go through this interface.
// The reconciler never imports an adapter directly.
type Remote interface {
	// ListTasks returns the authoritative task list.
	ListTasks(ctx context.Context) ([]Task, error)

	// CreateTask creates a task and returns it with the id assigned by the remote store.
	CreateTask(ctx context.Context, text string) (Task, error)

	// UpdateTask replaces the text of an existing task.
	UpdateTask(ctx context.Context, id int64, text string) error

	// DeleteTask deletes a task.
	DeleteTask(ctx context.Context, id int64) error
}
