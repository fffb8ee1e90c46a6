package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"offtask/internal/commands"
	"offtask/internal/config"
	"offtask/internal/exitcode"
	"offtask/internal/store"
)

// EnvFactory builds the store, remote and reconciler for store-backed
// commands. cfg.Settings is loaded before it is called.
type EnvFactory func(ctx context.Context, cfg *config.Config) (*commands.Env, error)

// Dispatcher handles command-line parsing and dispatch.
type Dispatcher struct {
	registry *commands.Registry
	factory  EnvFactory
}

// NewDispatcher creates a new dispatcher with the given registry and env factory.
func NewDispatcher(registry *commands.Registry, factory EnvFactory) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		factory:  factory,
	}
}

// Run parses arguments and dispatches to the appropriate command.
// No arguments run "list". Returns the exit code.
func (d *Dispatcher) Run(ctx context.Context, args []string, out, errOut io.Writer) int {
	name, rest := "list", args
	if len(args) > 0 {
		name, rest = args[0], args[1:]
	}
	// flags are only accepted after a command name
	cmd, ok := d.registry.Find(name)
	if strings.HasPrefix(name, "-") || !ok {
		fmt.Fprintf(errOut, "error: unknown command: %s\n", name)
		return exitcode.UserError
	}
	return d.dispatchCommand(ctx, cmd, rest, out, errOut)
}

// commonFlags are accepted by every command.
type commonFlags struct {
	configDir string
	quiet     bool
	debug     bool
	offline   bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configDir, "config", "", "")
	fs.BoolVar(&f.quiet, "quiet", false, "")
	fs.BoolVar(&f.debug, "debug", false, "")
	fs.BoolVar(&f.offline, "offline", false, "")
}

// flagError rewrites a flag package error into the CLI's message format.
func flagError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "needs a value"), strings.Contains(msg, "flag needs an argument"):
		parts := strings.Split(msg, ":")
		return "flag needs an argument: " + strings.TrimSpace(parts[len(parts)-1])
	case strings.HasPrefix(msg, "flag provided but not defined: "):
		return "unknown flag: " + strings.TrimPrefix(msg, "flag provided but not defined: ")
	}
	return msg
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, cmd commands.Command, args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var common commonFlags
	common.register(fs)
	cmd.RegisterFlags(fs)

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(errOut, "error: %s\n", flagError(err))
		return exitcode.UserError
	}
	positional := fs.Args()
	if len(positional) > 0 && strings.HasPrefix(positional[0], "-") {
		fmt.Fprintf(errOut, "error: unknown flag: %s\n", positional[0])
		return exitcode.UserError
	}

	cfg, err := config.New(common.configDir)
	if err != nil {
		fmt.Fprintf(errOut, "error: %s\n", err)
		return exitcode.UserError
	}
	cfg.Quiet = common.quiet
	cfg.Debug = common.debug
	cfg.Offline = common.offline

	if !cmd.NeedsStore() {
		return cmd.Run(ctx, cfg, nil, positional, out, errOut)
	}

	env, code := d.openEnv(ctx, cfg, errOut)
	if env == nil {
		return code
	}
	defer func() {
		if err := env.Close(); err != nil {
			env.Logger.Warn("close failed", zap.Error(err))
		}
	}()
	return cmd.Run(ctx, cfg, env, positional, out, errOut)
}

// openEnv loads settings and builds the Env. On failure it reports the error
// and returns a nil Env with the exit code to use.
func (d *Dispatcher) openEnv(ctx context.Context, cfg *config.Config, errOut io.Writer) (*commands.Env, int) {
	if err := cfg.Load(); err != nil {
		fmt.Fprintf(errOut, "error: config: %v\n", err)
		return nil, exitcode.AuthError
	}
	if d.factory == nil {
		fmt.Fprintln(errOut, "error: no backend configured")
		return nil, exitcode.AuthError
	}
	env, err := d.factory(ctx, cfg)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		if errors.Is(err, store.ErrStore) {
			return nil, exitcode.StoreError
		}
		return nil, exitcode.AuthError
	}
	return env, exitcode.Success
}
