package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/neomigrate/neomigrate"
)

// openCall captures the arguments of one connection attempt.
type openCall struct {
	address  string
	username string
	password string
	poolSize int
}

// errStopAtOpen lets tests run the full bootstrap without a server: the
// recorder fails every open with it after recording the call.
var errStopAtOpen = errors.New("stop at open")

// newTestApp builds an app whose collaborators are all test doubles and
// returns a pointer to the recorded open calls.
func newTestApp() (*app, *[]openCall) {
	calls := &[]openCall{}
	a := &app{
		readPassword: func() ([]byte, error) { return []byte("prompted"), nil },
		out:          io.Discard,
		logW:         io.Discard,
	}
	a.open = func(ctx context.Context, address, username string, password []byte, poolSize int) (*neomigrate.Connection, error) {
		*calls = append(*calls, openCall{
			address:  address,
			username: username,
			password: string(password),
			poolSize: poolSize,
		})
		return nil, errStopAtOpen
	}
	return a, calls
}

func execute(t *testing.T, a *app, args ...string) error {
	t.Helper()
	root := buildCLI(a)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// TestRootRequiresSubcommand verifies that the root command with
// otherwise-valid options fails deterministically and never attempts a
// connection.
func TestRootRequiresSubcommand(t *testing.T) {
	a, calls := newTestApp()
	err := execute(t, a, "--password=secret")
	if !errors.Is(err, errMissingSubcommand) {
		t.Fatalf("expected missing subcommand error, got %v", err)
	}
	if len(*calls) != 0 {
		t.Errorf("root command must not open a connection, got %d calls", len(*calls))
	}
}

// TestMissingPasswordFails verifies the required credential option.
func TestMissingPasswordFails(t *testing.T) {
	a, calls := newTestApp()
	if err := execute(t, a, "info"); err == nil {
		t.Fatal("expected an error for a missing password flag")
	}
	if len(*calls) != 0 {
		t.Errorf("parse failure must not open a connection, got %d calls", len(*calls))
	}
}

// TestHelpNeedsNoPassword verifies that help and version requests work
// without a credential and without touching the database.
func TestHelpNeedsNoPassword(t *testing.T) {
	a, calls := newTestApp()
	for _, args := range [][]string{{"help"}, {"help", "migrate"}, {"--help"}, {"--version"}} {
		if err := execute(t, a, args...); err != nil {
			t.Errorf("%v: expected success, got %v", args, err)
		}
	}
	if len(*calls) != 0 {
		t.Errorf("help must not open a connection, got %d calls", len(*calls))
	}
}

// TestUnknownOptionFails verifies that parse errors abort before any
// side effect.
func TestUnknownOptionFails(t *testing.T) {
	a, calls := newTestApp()
	if err := execute(t, a, "info", "--password=secret", "--no-such-option"); err == nil {
		t.Fatal("expected an error for an unknown option")
	}
	if len(*calls) != 0 {
		t.Errorf("parse failure must not open a connection, got %d calls", len(*calls))
	}
}

// TestInvalidTransactionModeFails verifies enum validation at parse
// time.
func TestInvalidTransactionModeFails(t *testing.T) {
	a, calls := newTestApp()
	if err := execute(t, a, "info", "--password=secret", "--transaction-mode", "SOMETIMES"); err == nil {
		t.Fatal("expected an error for an invalid transaction mode")
	}
	if len(*calls) != 0 {
		t.Errorf("parse failure must not open a connection, got %d calls", len(*calls))
	}
}

// TestBootstrapOpensWithDefaults runs the scenario address=default,
// username=neo4j, password=secret, no scan lists, unrestricted runtime.
func TestBootstrapOpensWithDefaults(t *testing.T) {
	a, calls := newTestApp()
	err := execute(t, a, "info", "--password=secret")
	if !errors.Is(err, errStopAtOpen) {
		t.Fatalf("expected to stop at open, got %v", err)
	}
	if len(*calls) != 1 {
		t.Fatalf("expected exactly one open call, got %d", len(*calls))
	}
	call := (*calls)[0]
	if call.address != neomigrate.DefaultAddress {
		t.Errorf("expected default address, got %q", call.address)
	}
	if call.username != neomigrate.DefaultUser {
		t.Errorf("expected default user, got %q", call.username)
	}
	if call.password != "secret" {
		t.Errorf("expected the supplied password, got %q", call.password)
	}
	if call.poolSize != 1 {
		t.Errorf("expected pool size 1, got %d", call.poolSize)
	}
}

// TestGuardBlocksPackagesInRestrictedRuntime verifies that a restricted
// runtime rejects package scanning before any connection attempt.
func TestGuardBlocksPackagesInRestrictedRuntime(t *testing.T) {
	a, calls := newTestApp()
	a.env = neomigrate.RuntimeEnvironment{Restricted: true}

	err := execute(t, a, "info", "--password=secret", "--package", "plugins/demo.so")
	var uce *neomigrate.UnsupportedConfigError
	if !errors.As(err, &uce) {
		t.Fatalf("expected UnsupportedConfigError, got %v", err)
	}
	if len(*calls) != 0 {
		t.Errorf("guard failure must not open a connection, got %d calls", len(*calls))
	}
}

// TestPackagesPassInUnrestrictedRuntime is the counterpart: the same
// configuration reaches the open call in an unrestricted runtime.
func TestPackagesPassInUnrestrictedRuntime(t *testing.T) {
	a, calls := newTestApp()
	err := execute(t, a, "info", "--password=secret", "--package", "plugins/demo.so")
	if !errors.Is(err, errStopAtOpen) {
		t.Fatalf("expected to stop at open, got %v", err)
	}
	if len(*calls) != 1 {
		t.Errorf("expected exactly one open call, got %d", len(*calls))
	}
}

// TestPasswordPrompt verifies that -p without a value takes the
// interactive path and both paths converge on the same open call.
func TestPasswordPrompt(t *testing.T) {
	a, calls := newTestApp()
	err := execute(t, a, "info", "-p")
	if !errors.Is(err, errStopAtOpen) {
		t.Fatalf("expected to stop at open, got %v", err)
	}
	if (*calls)[0].password != "prompted" {
		t.Errorf("expected the prompted password, got %q", (*calls)[0].password)
	}
}

// TestPoolSizeFlag verifies the hidden pool size option reaches the
// connection manager.
func TestPoolSizeFlag(t *testing.T) {
	a, calls := newTestApp()
	err := execute(t, a, "info", "--password=secret", "--with-max-connection-pool-size", "5")
	if !errors.Is(err, errStopAtOpen) {
		t.Fatalf("expected to stop at open, got %v", err)
	}
	if (*calls)[0].poolSize != 5 {
		t.Errorf("expected pool size 5, got %d", (*calls)[0].poolSize)
	}
}

// TestNewDoesNotConnect verifies that scaffolding works offline.
func TestNewDoesNotConnect(t *testing.T) {
	a, calls := newTestApp()
	dir := t.TempDir()

	if err := execute(t, a, "new", "add people", "--password=secret", "--location", dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*calls) != 0 {
		t.Errorf("new must not open a connection, got %d calls", len(*calls))
	}
	if _, err := os.Stat(filepath.Join(dir, "V1__Add_people.cypher")); err != nil {
		t.Errorf("expected scaffolded migration: %v", err)
	}
}
