package cli_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"offtask/internal/cli"
	"offtask/internal/commands"
	"offtask/internal/config"
	"offtask/internal/connectivity"
	"offtask/internal/exitcode"
	"offtask/internal/reconcile"
	"offtask/internal/store"
	"offtask/internal/testutil"
)

const validSettings = `backend: records
records:
  base_url: https://records.example.test
  app_id: "7"
  api_token: secret
`

// configDir writes settings into a fresh config directory.
func configDir(t *testing.T, settings string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(settings), 0600); err != nil {
		t.Fatalf("failed to write config.yaml: %v", err)
	}
	return dir
}

// fakeFactory builds Envs over one MemoryStore and FakeRemote and remembers
// the last config it saw.
type fakeFactory struct {
	remote *testutil.FakeRemote
	store  *store.MemoryStore
	err    error

	cfg    *config.Config
	closed int
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{remote: testutil.NewFakeRemote(1), store: store.NewMemory()}
}

func (f *fakeFactory) build(ctx context.Context, cfg *config.Config) (*commands.Env, error) {
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	probe := connectivity.ProbeFunc(func(context.Context) bool { return !cfg.Offline })
	env := commands.NewEnv(reconcile.New(f.store, f.remote), probe, nil)
	env.OnClose(func() error { f.closed++; return nil })
	return env, nil
}

func run(d *cli.Dispatcher, args ...string) (stdout, stderr string, code int) {
	var out, errOut bytes.Buffer
	code = d.Run(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), code
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newFakeFactory().build)

	_, stderr, code := run(dispatcher, "unknowncmd")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: unknowncmd\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagBeforeCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newFakeFactory().build)

	_, stderr, code := run(dispatcher, "--quiet")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown command: --quiet\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_HelpCommand(t *testing.T) {
	factory := newFakeFactory()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)

	stdout, stderr, code := run(dispatcher, "help")

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if !strings.Contains(stdout, "Usage:") {
		t.Error("expected help output to contain 'Usage:'")
	}
	if factory.cfg != nil {
		t.Error("help should not build a store")
	}
}

func TestDispatcher_VersionCommand(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newFakeFactory().build)

	stdout, stderr, code := run(dispatcher, "version")

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stderr != "" {
		t.Errorf("expected no stderr, got %q", stderr)
	}
	if stdout != "offtask 0.1.0\n" {
		t.Errorf("expected 'offtask 0.1.0\\n', got %q", stdout)
	}
}

func TestDispatcher_UnknownFlag(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newFakeFactory().build)

	_, stderr, code := run(dispatcher, "help", "--unknown")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: unknown flag: -unknown\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_FlagNeedsArgument(t *testing.T) {
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, newFakeFactory().build)

	_, stderr, code := run(dispatcher, "list", "--config")

	if code != exitcode.UserError {
		t.Errorf("expected exit code %d, got %d", exitcode.UserError, code)
	}
	expected := "error: flag needs an argument: -config\n"
	if stderr != expected {
		t.Errorf("expected %q, got %q", expected, stderr)
	}
}

func TestDispatcher_AddThenList(t *testing.T) {
	factory := newFakeFactory()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)
	dir := configDir(t, validSettings)

	stdout, stderr, code := run(dispatcher, "add", "--config", dir, "buy", "milk")
	if code != exitcode.Success {
		t.Fatalf("add: expected exit code %d, got %d (stderr %q)", exitcode.Success, code, stderr)
	}
	if stdout != "ok 1\n" {
		t.Errorf("expected 'ok 1\\n', got %q", stdout)
	}

	stdout, _, code = run(dispatcher, "ls", "--config", dir)
	if code != exitcode.Success {
		t.Errorf("list: expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "            1  buy milk\n" {
		t.Errorf("unexpected list output %q", stdout)
	}
	if factory.closed != 2 {
		t.Errorf("expected env closed after each command, closed %d times", factory.closed)
	}
}

func TestDispatcher_NoArgsRunsList(t *testing.T) {
	factory := newFakeFactory()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, config.AppName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(validSettings), 0600); err != nil {
		t.Fatal(err)
	}

	stdout, _, code := run(dispatcher)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if stdout != "no tasks found\n" {
		t.Errorf("unexpected output %q", stdout)
	}
	if factory.cfg == nil || factory.cfg.Dir != dir {
		t.Errorf("expected default config dir %s", dir)
	}
}

func TestDispatcher_OfflineFlag(t *testing.T) {
	factory := newFakeFactory()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)
	dir := configDir(t, validSettings)

	stdout, _, code := run(dispatcher, "sync", "--offline", "--config", dir)

	if code != exitcode.Success {
		t.Errorf("expected exit code %d, got %d", exitcode.Success, code)
	}
	if !factory.cfg.Offline {
		t.Error("expected --offline to reach the config")
	}
	if stdout != "offline, 0 queued\n" {
		t.Errorf("unexpected output %q", stdout)
	}
}

func TestDispatcher_InvalidSettings(t *testing.T) {
	factory := newFakeFactory()
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)
	dir := configDir(t, "backend: carrier-pigeon\n")

	_, stderr, code := run(dispatcher, "list", "--config", dir)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
	if !strings.HasPrefix(stderr, "error: config: ") {
		t.Errorf("unexpected stderr %q", stderr)
	}
	if factory.cfg != nil {
		t.Error("factory should not run with invalid settings")
	}
}

func TestDispatcher_StoreOpenFailure(t *testing.T) {
	factory := newFakeFactory()
	factory.err = fmt.Errorf("%w: open bolt: timeout", store.ErrStore)
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)
	dir := configDir(t, validSettings)

	_, stderr, code := run(dispatcher, "pending", "--config", dir)

	if code != exitcode.StoreError {
		t.Errorf("expected exit code %d, got %d", exitcode.StoreError, code)
	}
	if !strings.Contains(stderr, "open bolt: timeout") {
		t.Errorf("unexpected stderr %q", stderr)
	}
}

func TestDispatcher_FactoryAuthFailure(t *testing.T) {
	factory := newFakeFactory()
	factory.err = errors.New("failed to read token.json: no such file")
	dispatcher := cli.NewDispatcher(commands.DefaultRegistry, factory.build)
	dir := configDir(t, validSettings)

	_, _, code := run(dispatcher, "list", "--config", dir)

	if code != exitcode.AuthError {
		t.Errorf("expected exit code %d, got %d", exitcode.AuthError, code)
	}
}
