// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"offtask/internal/service"
)

// ErrNotFound is returned when a task is not found.
var ErrNotFound = errors.New("not found")

// ErrOffline is the default injected failure.
var ErrOffline = fmt.Errorf("%w: connection refused", service.ErrUnreachable)

// Call records one remote call.
type Call struct {
	Method string // "list", "create", "update" or "delete"
	ID     int64
	Text   string
}

// FakeRemote is an in-memory implementation of service.Remote for testing.
type FakeRemote struct {
	mu     sync.Mutex
	tasks  map[int64]string
	nextID int64
	calls  []Call

	// Offline fails every call with ErrOffline.
	Offline bool

	// Error injection for testing
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	// FailCall, when set, is consulted for every call; a non-nil result fails it.
	FailCall func(n int, c Call) error
}

// NewFakeRemote creates an empty FakeRemote that hands out ids from firstID.
func NewFakeRemote(firstID int64) *FakeRemote {
	return &FakeRemote{
		tasks:  make(map[int64]string),
		nextID: firstID,
	}
}

// Put stores a task directly, as an edit made against the remote store would.
func (f *FakeRemote) Put(id int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[id] = text
	if id >= f.nextID {
		f.nextID = id + 1
	}
}

// SetOffline toggles the Offline flag.
func (f *FakeRemote) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Offline = offline
}

// Calls returns the calls made so far.
func (f *FakeRemote) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// ResetCalls forgets recorded calls.
func (f *FakeRemote) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Snapshot returns the remote tasks ordered by id.
func (f *FakeRemote) Snapshot() []service.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted()
}

func (f *FakeRemote) sorted() []service.Task {
	out := make([]service.Task, 0, len(f.tasks))
	for id, text := range f.tasks {
		out = append(out, service.Task{ID: id, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// record appends c and returns the error the call should fail with. Caller holds mu.
func (f *FakeRemote) record(c Call, injected error) error {
	n := len(f.calls)
	f.calls = append(f.calls, c)
	if f.Offline {
		return ErrOffline
	}
	if injected != nil {
		return injected
	}
	if f.FailCall != nil {
		return f.FailCall(n, c)
	}
	return nil
}

// ListTasks implements service.Remote.
func (f *FakeRemote) ListTasks(ctx context.Context) ([]service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "list"}, f.ListErr); err != nil {
		return nil, err
	}
	return f.sorted(), nil
}

// CreateTask implements service.Remote.
func (f *FakeRemote) CreateTask(ctx context.Context, text string) (service.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "create", Text: text}, f.CreateErr); err != nil {
		return service.Task{}, err
	}
	id := f.nextID
	f.nextID++
	f.tasks[id] = text
	return service.Task{ID: id, Text: text}, nil
}

// UpdateTask implements service.Remote.
func (f *FakeRemote) UpdateTask(ctx context.Context, id int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "update", ID: id, Text: text}, f.UpdateErr); err != nil {
		return err
	}
	if _, ok := f.tasks[id]; !ok {
		return fmt.Errorf("%w: %w", service.ErrRejected, ErrNotFound)
	}
	f.tasks[id] = text
	return nil
}

// DeleteTask implements service.Remote.
func (f *FakeRemote) DeleteTask(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(Call{Method: "delete", ID: id}, f.DeleteErr); err != nil {
		return err
	}
	if _, ok := f.tasks[id]; !ok {
		return fmt.Errorf("%w: %w", service.ErrRejected, ErrNotFound)
	}
	delete(f.tasks, id)
	return nil
}
