package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"offtask/internal/config"
	"offtask/internal/exitcode"
	"offtask/internal/output"
)

func init() {
	Register(&SyncCmd{})
}

// SyncCmd implements the sync command.
type SyncCmd struct{}

func (c *SyncCmd) Name() string      { return "sync" }
func (c *SyncCmd) Aliases() []string { return nil }
func (c *SyncCmd) Synopsis() string  { return "Replay queued changes and refresh" }
func (c *SyncCmd) Usage() string     { return "offtask sync" }
func (c *SyncCmd) NeedsStore() bool  { return true }

func (c *SyncCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *SyncCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	if !env.Probe.Online(ctx) {
		pending, err := env.Tasks.Pending(ctx)
		if err != nil {
			return reportError(errOut, err)
		}
		if !cfg.Quiet {
			fmt.Fprintf(out, "offline, %d queued\n", len(pending))
		}
		return exitcode.Success
	}

	report, err := env.Tasks.Replay(ctx)
	if err != nil {
		return reportError(errOut, err)
	}
	if report.Remaining() == 0 {
		if _, err := env.Tasks.LoadTasks(ctx); err != nil {
			return reportError(errOut, err)
		}
	}

	if !cfg.Quiet {
		output.FormatReport(out, report)
	}
	return exitcode.Success
}
