package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"offtask/internal/backend/googletasks"
	"offtask/internal/backend/records"
	"offtask/internal/commands"
	"offtask/internal/config"
	"offtask/internal/connectivity"
	"offtask/internal/reconcile"
	"offtask/internal/service"
	"offtask/internal/store"
)

// buildEnv opens the local store and wires the configured backend into a
// reconciler.
func buildEnv(ctx context.Context, cfg *config.Config) (*commands.Env, error) {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	s := cfg.Settings

	var remote service.Remote = offlineRemote{}
	var probe connectivity.Probe = connectivity.ProbeFunc(func(context.Context) bool { return false })
	if !cfg.Offline {
		remote, err = newRemote(ctx, cfg)
		if err != nil {
			return nil, err
		}
		probe = &connectivity.HTTPProbe{URL: s.ProbeURL, Timeout: s.ProbeTimeout}
	}

	st, err := store.OpenBolt(s.StorePath, s.Namespace)
	if err != nil {
		return nil, err
	}
	logger.Debug("store opened",
		zap.String("path", s.StorePath),
		zap.String("namespace", s.Namespace),
		zap.String("backend", s.Backend),
		zap.Bool("offline", cfg.Offline),
	)

	rec := reconcile.New(st, remote,
		reconcile.WithLogger(logger),
		reconcile.WithMaxAttempts(s.MaxAttempts),
	)
	env := commands.NewEnv(rec, probe, logger)
	env.OnClose(st.Close)
	env.OnClose(func() error {
		// syncing stderr fails on some terminals
		_ = logger.Sync()
		return nil
	})
	return env, nil
}

func newRemote(ctx context.Context, cfg *config.Config) (service.Remote, error) {
	switch cfg.Settings.Backend {
	case config.BackendGoogleTasks:
		if !cfg.HasOAuthClient() {
			return nil, fmt.Errorf("oauth_client.json not found in %s", cfg.Dir)
		}
		if !cfg.HasToken() {
			return nil, fmt.Errorf("not logged in (run: offtask login)")
		}
		return googletasks.New(ctx, cfg)
	case config.BackendRecords:
		return records.New(cfg)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Settings.Backend)
}

// newLogger builds the stderr logger: warnings and errors by default,
// everything with --debug.
func newLogger(debug bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if debug {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		zcfg.Sampling = nil
	}
	if os.Getenv("OFFTASK_LOG_JSON") == "" {
		zcfg.Encoding = "console"
	}
	return zcfg.Build()
}

// offlineRemote fails every call, so every mutation is queued.
type offlineRemote struct{}

func (offlineRemote) ListTasks(context.Context) ([]service.Task, error) {
	return nil, fmt.Errorf("%w: offline mode", service.ErrUnreachable)
}

func (offlineRemote) CreateTask(context.Context, string) (service.Task, error) {
	return service.Task{}, fmt.Errorf("%w: offline mode", service.ErrUnreachable)
}

func (offlineRemote) UpdateTask(context.Context, int64, string) error {
	return fmt.Errorf("%w: offline mode", service.ErrUnreachable)
}

func (offlineRemote) DeleteTask(context.Context, int64) error {
	return fmt.Errorf("%w: offline mode", service.ErrUnreachable)
}
