// Package commands provides the command interface and implementations.
package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"offtask/internal/config"
	"offtask/internal/connectivity"
	"offtask/internal/exitcode"
	"offtask/internal/reconcile"
	"offtask/internal/store"
)

// Command defines the interface for CLI commands.
type Command interface {
	// Name returns the primary command name.
	Name() string

	// Aliases returns alternative names for the command.
	Aliases() []string

	// Synopsis returns a short description for help output.
	Synopsis() string

	// Usage returns the usage string for help output.
	Usage() string

	// NeedsStore returns true if the command operates on the local store.
	// Commands like help, version, login, logout return false.
	NeedsStore() bool

	// RegisterFlags registers command-specific flags.
	RegisterFlags(fs *flag.FlagSet)

	// Run executes the command.
	// cfg is always provided (config dir, paths).
	// env is nil if NeedsStore() returns false.
	// args contains positional arguments after flag parsing.
	// Returns exit code.
	Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int
}

// Env is what store-backed commands operate on.
type Env struct {
	Tasks  *reconcile.Reconciler
	Probe  connectivity.Probe
	Logger *zap.Logger

	closers []func() error
}

// NewEnv creates an Env. A nil logger is replaced by a no-op logger.
func NewEnv(tasks *reconcile.Reconciler, probe connectivity.Probe, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{Tasks: tasks, Probe: probe, Logger: logger}
}

// OnClose registers f to run on Close. Closers run in reverse order.
func (e *Env) OnClose(f func() error) {
	e.closers = append(e.closers, f)
}

// Close releases everything registered with OnClose.
func (e *Env) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}

// reportError prints err and maps it to an exit code.
func reportError(errOut io.Writer, err error) int {
	if errors.Is(err, store.ErrStore) {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.StoreError
	}
	fmt.Fprintf(errOut, "error: %v\n", err)
	return exitcode.UserError
}
