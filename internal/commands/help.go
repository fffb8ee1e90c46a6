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
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string      { return "help" }
func (c *HelpCmd) Aliases() []string { return nil }
func (c *HelpCmd) Synopsis() string  { return "Print usage" }
func (c *HelpCmd) Usage() string     { return "offtask help" }
func (c *HelpCmd) NeedsStore() bool  { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, env *Env, args []string, out, errOut io.Writer) int {
	writeHelp(out, DefaultRegistry)
	return exitcode.Success
}

func writeHelp(w io.Writer, reg *Registry) {
	taskCmds, otherCmds := reg.Split()
	width := 0
	for _, c := range reg.All() {
		width = max(width, len(c.Usage()))
	}

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintf(w, "  %-*s  %s\n", width, "offtask", "List tasks")
	section := func(title string, cmds []Command) {
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, c := range cmds {
			line := c.Synopsis()
			if aliases := c.Aliases(); len(aliases) > 0 {
				line += " (alias: " + strings.Join(aliases, ", ") + ")"
			}
			fmt.Fprintf(w, "  %-*s  %s\n", width, c.Usage(), line)
		}
	}
	section("Task commands", taskCmds)
	section("Other commands", otherCmds)
	fmt.Fprint(w, commonFlags)
}

const commonFlags = `
Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
  --debug          Print debug logs to stderr
  --offline        Do not contact the remote store; queue every change
`
