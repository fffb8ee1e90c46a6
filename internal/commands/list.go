package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"offtask/internal/config"
	"offtask/internal/exitcode"
	"offtask/internal/output"
	"offtask/internal/service"
)

func init() {
	Register(&ListCmd{})
}

// ListCmd implements the list command.
// Handles both `offtask` (no args) and `offtask list`.
type ListCmd struct {
	local bool
}

// SetLocal restricts listing to the local store (for testing).
func (c *ListCmd) SetLocal(local bool) {
	c.local = local
}

func (c *ListCmd) Name() string      { return "list" }
func (c *ListCmd) Aliases() []string { return []string{"ls"} }
func (c *ListCmd) Synopsis() string  { return "List tasks" }
func (c *ListCmd) Usage() string     { return "offtask list [--local]" }
func (c *ListCmd) NeedsStore() bool  { return true }

func (c *ListCmd) RegisterFlags(fs *flag.FlagSet) {
	fs.BoolVar(&c.local, "local", false, "")
}

func (c *ListCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if len(args) > 0 {
		fmt.Fprintf(errOut, "error: unexpected argument: %s\n", args[0])
		return exitcode.UserError
	}

	tasks, err := c.fetch(ctx, env)
	if err != nil {
		return reportError(errOut, err)
	}

	if len(tasks) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "no tasks found")
		}
		return exitcode.Success
	}
	output.FormatTasks(out, tasks)
	return exitcode.Success
}

// fetch returns the local list, refreshed from the remote store when it is
// reachable and nothing is left in the queue. A refresh with queued changes
// would replace tasks the remote store has not seen yet.
func (c *ListCmd) fetch(ctx context.Context, env *Env) ([]service.Task, error) {
	if c.local || !env.Probe.Online(ctx) {
		return env.Tasks.Tasks(ctx)
	}
	report, err := env.Tasks.Replay(ctx)
	if err != nil {
		return nil, err
	}
	if report.Remaining() > 0 {
		env.Logger.Info("changes still queued, showing local tasks")
		return env.Tasks.Tasks(ctx)
	}
	return env.Tasks.LoadTasks(ctx)
}
