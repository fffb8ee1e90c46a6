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
	Register(&PendingCmd{})
}

// PendingCmd implements the pending command.
type PendingCmd struct{}

func (c *PendingCmd) Name() string      { return "pending" }
func (c *PendingCmd) Aliases() []string { return []string{"queue"} }
func (c *PendingCmd) Synopsis() string  { return "Show queued and dead lettered changes" }
func (c *PendingCmd) Usage() string     { return "offtask pending" }
func (c *PendingCmd) NeedsStore() bool  { return true }

func (c *PendingCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *PendingCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	pending, err := env.Tasks.Pending(ctx)
	if err != nil {
		return reportError(errOut, err)
	}
	dead, err := env.Tasks.DeadLetters(ctx)
	if err != nil {
		return reportError(errOut, err)
	}

	if len(pending) == 0 && len(dead) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(out, "nothing pending")
		}
		return exitcode.Success
	}

	for _, op := range pending {
		output.FormatPending(out, op)
	}
	if len(dead) > 0 {
		output.FormatSectionHeader(out, "dead letter")
		for _, op := range dead {
			output.FormatPending(out, op)
		}
	}
	return exitcode.Success
}
