package connectivity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"offtask/internal/connectivity"
	"offtask/internal/reconcile"
	"offtask/internal/service"
	"offtask/internal/store"
	"offtask/internal/testutil"
)

type recordingSyncer struct {
	mu        sync.Mutex
	calls     []string
	replayErr error
}

func (s *recordingSyncer) Replay(ctx context.Context) (reconcile.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "replay")
	return reconcile.Report{}, s.replayErr
}

func (s *recordingSyncer) LoadTasks(ctx context.Context) ([]service.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "load")
	return nil, nil
}

func (s *recordingSyncer) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestObserve_Transitions(t *testing.T) {
	syncer := &recordingSyncer{}
	var statuses []connectivity.Status
	m := connectivity.NewMonitor(nil, syncer, connectivity.WithStatus(func(s connectivity.Status) {
		statuses = append(statuses, s)
	}))
	ctx := context.Background()
	require.Equal(t, connectivity.StatusOffline, m.Status())

	require.NoError(t, m.Observe(ctx, false))
	require.Empty(t, syncer.Calls())

	require.NoError(t, m.Observe(ctx, true))
	require.Equal(t, []string{"replay", "load"}, syncer.Calls())
	require.Equal(t, connectivity.StatusOnline, m.Status())

	// repeated sample, no new sync
	require.NoError(t, m.Observe(ctx, true))
	require.Len(t, syncer.Calls(), 2)

	require.NoError(t, m.Observe(ctx, false))
	require.Len(t, syncer.Calls(), 2)

	require.Equal(t, []connectivity.Status{
		connectivity.StatusOffline, connectivity.StatusOnline, connectivity.StatusOffline,
	}, statuses)
}

func TestObserve_FirstOnlineSampleSyncs(t *testing.T) {
	syncer := &recordingSyncer{}
	m := connectivity.NewMonitor(nil, syncer)

	require.NoError(t, m.Observe(context.Background(), true))
	require.Equal(t, []string{"replay", "load"}, syncer.Calls())
}

func TestObserve_ReplayErrorSkipsLoad(t *testing.T) {
	syncer := &recordingSyncer{replayErr: store.ErrStore}
	m := connectivity.NewMonitor(nil, syncer)

	err := m.Observe(context.Background(), true)
	require.ErrorIs(t, err, store.ErrStore)
	require.Equal(t, []string{"replay"}, syncer.Calls())
}

func TestObserve_FailedSyncRetriesOnNextSample(t *testing.T) {
	syncer := &recordingSyncer{replayErr: store.ErrStore}
	var statuses []connectivity.Status
	m := connectivity.NewMonitor(nil, syncer, connectivity.WithStatus(func(s connectivity.Status) {
		statuses = append(statuses, s)
	}))
	ctx := context.Background()

	require.ErrorIs(t, m.Observe(ctx, true), store.ErrStore)
	require.Equal(t, connectivity.StatusOnline, m.Status())

	syncer.mu.Lock()
	syncer.replayErr = nil
	syncer.mu.Unlock()
	require.NoError(t, m.Observe(ctx, true))
	require.Equal(t, []string{"replay", "replay", "load"}, syncer.Calls())
	require.Equal(t, connectivity.StatusOnline, m.Status())

	// synced now, so a repeated sample is ignored
	require.NoError(t, m.Observe(ctx, true))
	require.Len(t, syncer.Calls(), 3)
	require.Equal(t, []connectivity.Status{connectivity.StatusOnline}, statuses)
}

func TestRun_ReconnectReplaysQueue(t *testing.T) {
	remote := testutil.NewFakeRemote(42)
	remote.SetOffline(true)
	r := reconcile.New(store.NewMemory(), remote)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := r.AddTask(ctx, "buy milk")
	require.NoError(t, err)

	var online atomic.Bool
	probe := connectivity.ProbeFunc(func(context.Context) bool { return online.Load() })
	m := connectivity.NewMonitor(probe, r, connectivity.WithInterval(5*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, connectivity.StatusOffline, m.Status())

	remote.SetOffline(false)
	online.Store(true)

	require.Eventually(t, func() bool {
		pending, err := r.Pending(context.Background())
		return err == nil && len(pending) == 0
	}, time.Second, 5*time.Millisecond)

	tasks, err := r.Tasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []service.Task{{ID: 42, Text: "buy milk"}}, tasks)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	p := &connectivity.HTTPProbe{URL: srv.URL, Timeout: time.Second}
	require.True(t, p.Online(context.Background()))

	srv.Close()
	require.False(t, p.Online(context.Background()))

	bad := &connectivity.HTTPProbe{URL: "://bad"}
	require.False(t, bad.Online(context.Background()))
}

func TestProbeFunc(t *testing.T) {
	called := false
	p := connectivity.ProbeFunc(func(context.Context) bool {
		called = true
		return false
	})
	require.False(t, p.Online(context.Background()))
	require.True(t, called)
}
