// Package connectivity watches an online/offline signal and runs
// reconciliation when the remote store becomes reachable again.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"offtask/internal/reconcile"
	"offtask/internal/service"
)

// Status is the human-readable connectivity state.
type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// Probe reports whether the remote store is reachable.
type Probe interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

// Online implements Probe.
func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// Syncer is the part of the reconciler the monitor drives.
type Syncer interface {
	Replay(ctx context.Context) (reconcile.Report, error)
	LoadTasks(ctx context.Context) ([]service.Task, error)
}

// StatusFunc receives every status change.
type StatusFunc func(Status)

// DefaultInterval is the probe interval used when none is given.
const DefaultInterval = 5 * time.Second

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval sets the probe interval for Run.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStatus registers a status callback. It runs while the monitor holds its
// lock and must not call back into the Monitor.
func WithStatus(f StatusFunc) Option {
	return func(m *Monitor) { m.onStatus = f }
}

// Monitor turns connectivity transitions into reconciliation runs.
type Monitor struct {
	probe    Probe
	syncer   Syncer
	interval time.Duration
	logger   *zap.Logger
	onStatus StatusFunc

	mu     sync.Mutex
	known  bool
	online bool
	retry  bool // last sync failed
}

// NewMonitor creates a Monitor.
func NewMonitor(probe Probe, syncer Syncer, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    probe,
		syncer:   syncer,
		interval: DefaultInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status returns the last observed status. Offline until the first sample.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.known && m.online {
		return StatusOnline
	}
	return StatusOffline
}

// Observe handles one sample of the connectivity signal.
// Samples equal to the previous one are ignored; the first sample always
// counts as a transition. Going online replays the pending queue and then
// reloads the task list; going offline only updates the status. A failed
// sync is retried on the next online sample.
func (m *Monitor) Observe(ctx context.Context, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := !m.known || m.online != online
	if !changed && !(online && m.retry) {
		return nil
	}
	m.known, m.online, m.retry = true, online, false

	if !online {
		m.logger.Info("connectivity lost")
		m.setStatus(StatusOffline)
		return nil
	}

	if changed {
		m.logger.Info("connectivity restored, syncing")
		m.setStatus(StatusOnline)
	} else {
		m.logger.Info("retrying failed sync")
	}
	if err := m.sync(ctx); err != nil {
		m.retry = true
		return err
	}
	return nil
}

func (m *Monitor) sync(ctx context.Context) error {
	report, err := m.syncer.Replay(ctx)
	if err != nil {
		return err
	}
	if report.Remaining() > 0 {
		m.logger.Info("operations left in queue", zap.Int("remaining", report.Remaining()))
	}
	_, err = m.syncer.LoadTasks(ctx)
	return err
}

// Run samples the probe every interval until ctx is done.
// Errors from reconciliation are logged and do not stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.Observe(ctx, m.probe.Online(ctx)); err != nil {
			m.logger.Error("sync failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) setStatus(s Status) {
	if m.onStatus != nil {
		m.onStatus(s)
	}
}
