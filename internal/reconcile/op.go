package reconcile

import (
	"fmt"

	"offtask/internal/service"
)

// Op is the kind of a queued mutation.
type Op int

const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	switch o {
	case OpCreate, OpUpdate, OpDelete:
		return []byte(o.String()), nil
	}
	return nil, fmt.Errorf("unknown operation %d", int(o))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "create":
		*o = OpCreate
	case "update":
		*o = OpUpdate
	case "delete":
		*o = OpDelete
	default:
		return fmt.Errorf("unknown operation %q", string(b))
	}
	return nil
}

// PendingOperation is a mutation not yet confirmed by the remote store.
type PendingOperation struct {
	Op       Op           `json:"operation"`
	Task     service.Task `json:"task"`
	Attempts int          `json:"attempts,omitempty"`
	Seq      uint64       `json:"seq"`
}

// consolidate adds op to the queue. An update replaces the queued update for
// the same task in place; everything else is appended.
func consolidate(queue []PendingOperation, op PendingOperation) []PendingOperation {
	if op.Op == OpUpdate {
		for i, q := range queue {
			if q.Op == OpUpdate && q.Task.ID == op.Task.ID {
				queue[i] = op
				return queue
			}
		}
	}
	return append(queue, op)
}

// rewriteQueue replaces every reference to from with to.
func rewriteQueue(queue []PendingOperation, from, to int64) bool {
	changed := false
	for i := range queue {
		if queue[i].Task.ID == from {
			queue[i].Task.ID = to
			changed = true
		}
	}
	return changed
}

// hasCreate reports whether id still waits for its remote create.
func hasCreate(queue []PendingOperation, id int64) bool {
	for _, q := range queue {
		if q.Op == OpCreate && q.Task.ID == id {
			return true
		}
	}
	return false
}

func indexOfSeq(queue []PendingOperation, seq uint64) int {
	for i, q := range queue {
		if q.Seq == seq {
			return i
		}
	}
	return -1
}

// dropUpdates removes queued updates for id whose seq is at most upTo.
func dropUpdates(queue []PendingOperation, id int64, upTo uint64) ([]PendingOperation, bool) {
	out := queue[:0]
	dropped := false
	for _, q := range queue {
		if q.Op == OpUpdate && q.Task.ID == id && q.Seq <= upTo {
			dropped = true
			continue
		}
		out = append(out, q)
	}
	return out, dropped
}
