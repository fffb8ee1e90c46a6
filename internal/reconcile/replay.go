package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"offtask/internal/service"
	"offtask/internal/store"
)

// Report summarises one replay pass.
type Report struct {
	Synced       int
	Failed       int
	Skipped      int
	DeadLettered int
}

// Remaining is the number of operations the pass left in the queue.
func (r Report) Remaining() int { return r.Failed + r.Skipped }

// Replay re-issues the pending queue against the remote store in enqueue order.
//
// A confirmed create rewrites its temporary id everywhere before the next
// operation is sent. Operations that still reference an unconfirmed temporary
// id are kept without a remote call. Every step is committed to the store
// before the next remote call, so a crash mid-pass loses at most the step in
// flight. Remote failures never fail the pass; only store errors are returned.
// Concurrent calls return immediately with an empty report.
func (r *Reconciler) Replay(ctx context.Context) (Report, error) {
	var report Report
	if !r.replaying.CompareAndSwap(false, true) {
		return report, nil
	}
	defer r.replaying.Store(false)
	ctx = context.WithoutCancel(ctx)

	snapshot, err := r.lockedQueue(ctx, store.KeyPending)
	if err != nil {
		return report, err
	}
	if len(snapshot) == 0 {
		return report, nil
	}

	log := r.logger.With(zap.String("run", uuid.NewString()))
	log.Info("replaying pending operations", zap.Int("count", len(snapshot)))

	rewrites := make(map[int64]int64)
	waiting := make(map[int64]bool)
	for _, item := range snapshot {
		if item.Op == OpCreate {
			waiting[item.Task.ID] = true
		}
	}

	skipped := make(map[uint64]bool)
	retired := make(map[uint64]bool)
	for _, item := range snapshot {
		if retired[item.Seq] {
			continue
		}
		if p, ok := rewrites[item.Task.ID]; ok {
			item.Task.ID = p
		}
		if item.Op != OpCreate && waiting[item.Task.ID] {
			log.Debug("waiting for create", zap.Stringer("op", item.Op), zap.Int64("id", item.Task.ID))
			skipped[item.Seq] = true
			report.Skipped++
			continue
		}

		created, rerr := r.send(ctx, item)
		if rerr != nil {
			log.Warn("replay failed", zap.Stringer("op", item.Op), zap.Int64("id", item.Task.ID), zap.Error(rerr))
			dead, err := r.commitFailure(ctx, item)
			if err != nil {
				return report, err
			}
			if len(dead) == 0 {
				report.Failed++
				continue
			}
			for _, seq := range dead {
				retired[seq] = true
				if skipped[seq] {
					report.Skipped--
				}
			}
			report.DeadLettered += len(dead)
			if item.Op == OpCreate {
				tasks, err := r.Tasks(ctx)
				if err != nil {
					return report, err
				}
				r.render(tasks)
			}
			continue
		}

		if item.Op == OpCreate {
			delete(waiting, item.Task.ID)
			rewrites[item.Task.ID] = created.ID
		}
		if err := r.commitSuccess(ctx, item, created.ID); err != nil {
			return report, err
		}
		log.Debug("replayed", zap.Stringer("op", item.Op), zap.Int64("id", item.Task.ID))
		report.Synced++
	}

	log.Info("replay done",
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("dead_lettered", report.DeadLettered),
	)
	return report, nil
}

func (r *Reconciler) send(ctx context.Context, item PendingOperation) (service.Task, error) {
	switch item.Op {
	case OpCreate:
		return r.remote.CreateTask(ctx, item.Task.Text)
	case OpUpdate:
		return item.Task, r.remote.UpdateTask(ctx, item.Task.ID, item.Task.Text)
	case OpDelete:
		return item.Task, r.remote.DeleteTask(ctx, item.Task.ID)
	}
	return service.Task{}, fmt.Errorf("unknown operation %v", item.Op)
}

// commitSuccess drops the confirmed entry. A confirmed create also rewrites
// its temporary id in the task list and the rest of the queue.
func (r *Reconciler) commitSuccess(ctx context.Context, item PendingOperation, permanent int64) error {
	return r.locked(ctx, func() error {
		return r.confirm(ctx, item, permanent)
	})
}

func (r *Reconciler) confirm(ctx context.Context, item PendingOperation, permanent int64) error {
	queue, err := r.readQueue(ctx, store.KeyPending)
	if err != nil {
		return err
	}
	if i := indexOfSeq(queue, item.Seq); i >= 0 {
		queue = append(queue[:i], queue[i+1:]...)
		if err := r.writeQueue(ctx, store.KeyPending, queue); err != nil {
			return err
		}
	}
	if item.Op == OpCreate {
		return r.rewriteID(ctx, item.Task.ID, permanent)
	}
	return nil
}

// commitFailure keeps the entry in place with one more attempt, or moves it to
// the dead letter record once the budget is spent. A dead create takes the
// queued operations on its temporary id with it, and its task leaves the local
// list since the temporary id can never be sent. Returns the sequence numbers
// of the dead lettered entries.
func (r *Reconciler) commitFailure(ctx context.Context, item PendingOperation) ([]uint64, error) {
	var seqs []uint64
	err := r.locked(ctx, func() error {
		var err error
		seqs, err = r.fail(ctx, item)
		return err
	})
	return seqs, err
}

func (r *Reconciler) fail(ctx context.Context, item PendingOperation) ([]uint64, error) {
	queue, err := r.readQueue(ctx, store.KeyPending)
	if err != nil {
		return nil, err
	}
	i := indexOfSeq(queue, item.Seq)
	if i < 0 {
		// replaced by a newer update while the call was in flight
		return nil, nil
	}
	queue[i].Attempts++
	if r.maxAttempts == 0 || queue[i].Attempts < r.maxAttempts {
		return nil, r.writeQueue(ctx, store.KeyPending, queue)
	}

	dead := []PendingOperation{queue[i]}
	queue = append(queue[:i], queue[i+1:]...)
	if item.Op == OpCreate {
		kept := queue[:0]
		for _, q := range queue {
			if q.Task.ID == item.Task.ID {
				dead = append(dead, q)
				continue
			}
			kept = append(kept, q)
		}
		queue = kept

		tasks, err := r.readTasks(ctx)
		if err != nil {
			return nil, err
		}
		if idx := service.IndexOf(tasks, item.Task.ID); idx >= 0 {
			tasks = append(tasks[:idx], tasks[idx+1:]...)
			if err := r.writeTasks(ctx, tasks); err != nil {
				return nil, err
			}
		}
	}

	letters, err := r.readQueue(ctx, store.KeyDeadLetter)
	if err != nil {
		return nil, err
	}
	if err := r.writeQueue(ctx, store.KeyDeadLetter, append(letters, dead...)); err != nil {
		return nil, err
	}
	r.logger.Warn("operations dead lettered", zap.Int("count", len(dead)), zap.Int64("id", item.Task.ID))
	seqs := make([]uint64, len(dead))
	for j, d := range dead {
		seqs[j] = d.Seq
	}
	return seqs, r.writeQueue(ctx, store.KeyPending, queue)
}
