// Package reconcile applies task mutations optimistically to the local store,
// queues the ones the remote store did not confirm, and replays the queue when
// connectivity returns.
package reconcile

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"offtask/internal/service"
	"offtask/internal/store"
)

// Renderer receives the local task list after every committed change.
type Renderer interface {
	Render(tasks []service.Task)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(tasks []service.Task)

// Render implements Renderer.
func (f RendererFunc) Render(tasks []service.Task) { f(tasks) }

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used to allocate temporary ids.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRenderer sets the renderer.
func WithRenderer(rd Renderer) Option {
	return func(r *Reconciler) { r.renderer = rd }
}

// WithMaxAttempts moves an operation to the dead letter record after n failed
// replays. Zero keeps retrying forever.
func WithMaxAttempts(n int) Option {
	return func(r *Reconciler) {
		if n >= 0 {
			r.maxAttempts = n
		}
	}
}

// Reconciler owns the local task list and the pending queue.
//
// Store access is serialised by mu and runs in store sessions; remote calls
// run outside both, so two mutations may interleave at their remote calls.
// The persisted records are last-write-wins.
type Reconciler struct {
	st     store.Store
	remote service.Remote
	logger *zap.Logger
	now    func() time.Time

	maxAttempts int

	mu         sync.Mutex
	renderer   Renderer
	lastTempID int64
	inflight   map[int64]bool // temp ids with a create call in progress
	cur        store.Store    // set while locked runs

	replaying atomic.Bool
}

// New creates a Reconciler over the given store and remote.
func New(st store.Store, remote service.Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		st:       st,
		remote:   remote,
		logger:   zap.NewNop(),
		now:      time.Now,
		inflight: make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetRenderer replaces the renderer.
func (r *Reconciler) SetRenderer(rd Renderer) {
	r.mu.Lock()
	r.renderer = rd
	r.mu.Unlock()
}

// AddTask stores a new task under a temporary id, then tries to create it
// remotely. Empty text is ignored and yields a zero Task.
func (r *Reconciler) AddTask(ctx context.Context, text string) (service.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return service.Task{}, nil
	}
	ctx = context.WithoutCancel(ctx)

	var (
		task  service.Task
		tasks []service.Task
	)
	err := r.locked(ctx, func() error {
		var err error
		if tasks, err = r.readTasks(ctx); err != nil {
			return err
		}
		task = service.Task{ID: r.allocateTempID(tasks), Text: text}
		tasks = append(tasks, task)
		if err := r.writeTasks(ctx, tasks); err != nil {
			return err
		}
		r.inflight[task.ID] = true
		return nil
	})
	if err != nil {
		return service.Task{}, err
	}
	r.render(tasks)

	created, rerr := r.remote.CreateTask(ctx, text)

	err = r.locked(ctx, func() error {
		delete(r.inflight, task.ID)
		if rerr != nil {
			r.logger.Info("create queued", zap.Int64("temp_id", task.ID), zap.Error(rerr))
			return r.enqueue(ctx, OpCreate, task)
		}
		r.logger.Debug("task created remotely", zap.Int64("temp_id", task.ID), zap.Int64("id", created.ID))
		return r.rewriteID(ctx, task.ID, created.ID)
	})
	if err != nil || rerr != nil {
		return task, err
	}
	task.ID = created.ID
	return task, nil
}

// UpdateTask replaces the text of a local task, then tries the remote update.
// Returns false if the id is unknown or the text is empty.
func (r *Reconciler) UpdateTask(ctx context.Context, id int64, text string) (bool, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}
	ctx = context.WithoutCancel(ctx)

	var (
		tasks       []service.Task
		task        service.Task
		found       bool
		unconfirmed bool
		seen        uint64
	)
	err := r.locked(ctx, func() error {
		var err error
		if tasks, err = r.readTasks(ctx); err != nil {
			return err
		}
		idx := service.IndexOf(tasks, id)
		if idx < 0 {
			return nil
		}
		tasks[idx].Text = text
		if err := r.writeTasks(ctx, tasks); err != nil {
			return err
		}
		found, task = true, tasks[idx]
		if unconfirmed, err = r.unconfirmed(ctx, id); err != nil {
			return err
		}
		// updates queued from here on are newer than this one
		seen, err = r.currentSeq(ctx)
		return err
	})
	if err != nil || !found {
		return found, err
	}
	r.render(tasks)

	if unconfirmed {
		return true, r.locked(ctx, func() error { return r.enqueue(ctx, OpUpdate, task) })
	}

	rerr := r.remote.UpdateTask(ctx, id, text)
	return true, r.locked(ctx, func() error {
		if rerr != nil {
			r.logger.Info("update queued", zap.Int64("id", id), zap.Error(rerr))
			return r.enqueue(ctx, OpUpdate, task)
		}
		// an older queued update would overwrite the confirmed text on replay
		return r.dropQueuedUpdates(ctx, id, seen)
	})
}

// DeleteTask removes a local task, then tries the remote delete.
// Returns false if the id is unknown.
func (r *Reconciler) DeleteTask(ctx context.Context, id int64) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		tasks       []service.Task
		task        service.Task
		found       bool
		unconfirmed bool
	)
	err := r.locked(ctx, func() error {
		var err error
		if tasks, err = r.readTasks(ctx); err != nil {
			return err
		}
		idx := service.IndexOf(tasks, id)
		if idx < 0 {
			return nil
		}
		task = tasks[idx]
		tasks = append(tasks[:idx], tasks[idx+1:]...)
		if err := r.writeTasks(ctx, tasks); err != nil {
			return err
		}
		found = true
		unconfirmed, err = r.unconfirmed(ctx, id)
		return err
	})
	if err != nil || !found {
		return found, err
	}
	r.render(tasks)

	if unconfirmed {
		return true, r.locked(ctx, func() error { return r.enqueue(ctx, OpDelete, task) })
	}

	rerr := r.remote.DeleteTask(ctx, id)
	return true, r.locked(ctx, func() error {
		if rerr != nil {
			r.logger.Info("delete queued", zap.Int64("id", id), zap.Error(rerr))
			return r.enqueue(ctx, OpDelete, task)
		}
		// the task is gone remotely, so every queued update for it is stale
		return r.dropQueuedUpdates(ctx, id, math.MaxUint64)
	})
}

// LoadTasks refreshes the local list from the remote store when it is
// reachable, then renders and returns the local list.
func (r *Reconciler) LoadTasks(ctx context.Context) ([]service.Task, error) {
	ctx = context.WithoutCancel(ctx)
	remoteTasks, rerr := r.remote.ListTasks(ctx)
	if rerr != nil {
		r.logger.Info("remote list unavailable, using local tasks", zap.Error(rerr))
	}

	var tasks []service.Task
	err := r.locked(ctx, func() error {
		if rerr == nil {
			if remoteTasks == nil {
				remoteTasks = []service.Task{}
			}
			if err := r.writeTasks(ctx, remoteTasks); err != nil {
				return err
			}
		}
		var err error
		tasks, err = r.readTasks(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.render(tasks)
	return tasks, nil
}

// Tasks returns the local task list without contacting the remote store.
func (r *Reconciler) Tasks(ctx context.Context) ([]service.Task, error) {
	var tasks []service.Task
	err := r.locked(ctx, func() error {
		var err error
		tasks, err = r.readTasks(ctx)
		return err
	})
	return tasks, err
}

// Pending returns the pending queue in replay order.
func (r *Reconciler) Pending(ctx context.Context) ([]PendingOperation, error) {
	return r.lockedQueue(ctx, store.KeyPending)
}

// DeadLetters returns operations that exhausted their replay attempts.
func (r *Reconciler) DeadLetters(ctx context.Context) ([]PendingOperation, error) {
	return r.lockedQueue(ctx, store.KeyDeadLetter)
}

func (r *Reconciler) lockedQueue(ctx context.Context, key string) ([]PendingOperation, error) {
	var queue []PendingOperation
	err := r.locked(ctx, func() error {
		var err error
		queue, err = r.readQueue(ctx, key)
		return err
	})
	return queue, err
}

// locked runs f under mu inside a store session, so the read-modify-write in
// f is exclusive within this process and against other processes sharing
// the store.
func (r *Reconciler) locked(ctx context.Context, f func() error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return store.Session(ctx, r.st, func(s store.Store) error {
		r.cur = s
		defer func() { r.cur = nil }()
		return f()
	})
}

// db returns the store of the running session. Caller holds mu.
func (r *Reconciler) db() store.Store {
	if r.cur != nil {
		return r.cur
	}
	return r.st
}

func (r *Reconciler) render(tasks []service.Task) {
	r.mu.Lock()
	rd := r.renderer
	r.mu.Unlock()
	if rd == nil {
		return
	}
	rd.Render(append([]service.Task(nil), tasks...))
}

// allocateTempID returns a clock based id above every id handed out before
// and unused in tasks. Caller holds mu.
func (r *Reconciler) allocateTempID(tasks []service.Task) int64 {
	id := r.now().UnixMilli()
	if id <= r.lastTempID {
		id = r.lastTempID + 1
	}
	for service.IndexOf(tasks, id) >= 0 {
		id++
	}
	r.lastTempID = id
	return id
}

// unconfirmed reports whether id is a temporary id whose create has not been
// confirmed yet. Caller holds mu.
func (r *Reconciler) unconfirmed(ctx context.Context, id int64) (bool, error) {
	if r.inflight[id] {
		return true, nil
	}
	queue, err := r.readQueue(ctx, store.KeyPending)
	if err != nil {
		return false, err
	}
	return hasCreate(queue, id), nil
}

// enqueue appends op to the pending queue, consolidating updates. Caller holds mu.
func (r *Reconciler) enqueue(ctx context.Context, op Op, task service.Task) error {
	queue, err := r.readQueue(ctx, store.KeyPending)
	if err != nil {
		return err
	}
	seq, err := r.nextSeq(ctx)
	if err != nil {
		return err
	}
	queue = consolidate(queue, PendingOperation{Op: op, Task: task, Seq: seq})
	return r.writeQueue(ctx, store.KeyPending, queue)
}

// dropQueuedUpdates removes queued updates for id with a seq up to upTo.
// Caller holds mu.
func (r *Reconciler) dropQueuedUpdates(ctx context.Context, id int64, upTo uint64) error {
	queue, err := r.readQueue(ctx, store.KeyPending)
	if err != nil {
		return err
	}
	queue, dropped := dropUpdates(queue, id, upTo)
	if !dropped {
		return nil
	}
	return r.writeQueue(ctx, store.KeyPending, queue)
}

// rewriteID replaces the temporary id from with the permanent id to in the
// task list and the pending queue. Caller holds mu.
func (r *Reconciler) rewriteID(ctx context.Context, from, to int64) error {
	tasks, err := r.readTasks(ctx)
	if err != nil {
		return err
	}
	if idx := service.IndexOf(tasks, from); idx >= 0 {
		if service.IndexOf(tasks, to) >= 0 {
			// a reload already brought the permanent task in
			tasks = append(tasks[:idx], tasks[idx+1:]...)
		} else {
			tasks[idx].ID = to
		}
		if err := r.writeTasks(ctx, tasks); err != nil {
			return err
		}
	}

	queue, err := r.readQueue(ctx, store.KeyPending)
	if err != nil {
		return err
	}
	if rewriteQueue(queue, from, to) {
		return r.writeQueue(ctx, store.KeyPending, queue)
	}
	return nil
}

func (r *Reconciler) readTasks(ctx context.Context) ([]service.Task, error) {
	var tasks []service.Task
	if _, err := store.GetJSON(ctx, r.db(), store.KeyTasks, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *Reconciler) writeTasks(ctx context.Context, tasks []service.Task) error {
	return store.SetJSON(ctx, r.db(), store.KeyTasks, tasks)
}

func (r *Reconciler) readQueue(ctx context.Context, key string) ([]PendingOperation, error) {
	var queue []PendingOperation
	if _, err := store.GetJSON(ctx, r.db(), key, &queue); err != nil {
		return nil, err
	}
	return queue, nil
}

func (r *Reconciler) writeQueue(ctx context.Context, key string, queue []PendingOperation) error {
	if queue == nil {
		queue = []PendingOperation{}
	}
	return store.SetJSON(ctx, r.db(), key, queue)
}

// currentSeq returns the last sequence number handed out.
func (r *Reconciler) currentSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	_, err := store.GetJSON(ctx, r.db(), store.KeySeq, &seq)
	return seq, err
}

func (r *Reconciler) nextSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	if _, err := store.GetJSON(ctx, r.db(), store.KeySeq, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := store.SetJSON(ctx, r.db(), store.KeySeq, seq); err != nil {
		return 0, err
	}
	return seq, nil
}
