package commands

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"offtask/internal/config"
	"offtask/internal/exitcode"
)

func init() {
	Register(&AddCmd{})
}

// AddCmd implements the add command.
type AddCmd struct{}

func (c *AddCmd) Name() string      { return "add" }
func (c *AddCmd) Aliases() []string { return []string{"create"} }
func (c *AddCmd) Synopsis() string  { return "Add a task" }
func (c *AddCmd) Usage() string     { return "offtask add <text...>" }
func (c *AddCmd) NeedsStore() bool  { return true }

func (c *AddCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *AddCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		fmt.Fprintln(errOut, "error: text required")
		return exitcode.UserError
	}

	task, err := env.Tasks.AddTask(ctx, text)
	if err != nil {
		return reportError(errOut, err)
	}

	if !cfg.Quiet {
		fmt.Fprintf(out, "ok %d\n", task.ID)
	}
	return exitcode.Success
}
