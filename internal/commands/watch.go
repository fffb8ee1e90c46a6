package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"offtask/internal/config"
	"offtask/internal/connectivity"
	"offtask/internal/exitcode"
	"offtask/internal/output"
)

func init() {
	Register(&WatchCmd{})
}

// WatchCmd implements the watch command.
// It redraws the list on every change until interrupted.
type WatchCmd struct {
	interval time.Duration
}

func (c *WatchCmd) Name() string      { return "watch" }
func (c *WatchCmd) Aliases() []string { return nil }
func (c *WatchCmd) Synopsis() string  { return "Watch connectivity and sync on reconnect" }
func (c *WatchCmd) Usage() string     { return "offtask watch [--interval d]" }
func (c *WatchCmd) NeedsStore() bool  { return true }

func (c *WatchCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.DurationVar(&c.interval, "interval", 0, "probe interval (default from settings)")
}

func (c *WatchCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	renderer := output.NewTaskRenderer(out)
	env.Tasks.SetRenderer(renderer)
	defer env.Tasks.SetRenderer(nil)

	tasks, err := env.Tasks.Tasks(ctx)
	if err != nil {
		return reportError(errOut, err)
	}
	renderer.Render(tasks)

	opts := []connectivity.Option{
		connectivity.WithLogger(env.Logger),
		connectivity.WithStatus(renderer.Status),
	}
	interval := cfg.Settings.ProbeInterval
	if c.interval > 0 {
		interval = c.interval
	}
	if interval > 0 {
		opts = append(opts, connectivity.WithInterval(interval))
	}

	err = connectivity.NewMonitor(env.Probe, env.Tasks, opts...).Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.UserError
	}
	return exitcode.Success
}
