package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/neomigrate/neomigrate"
)

// passwordPromptSentinel marks "-p given without a value": the password
// is then read from the terminal instead of the command line.
const passwordPromptSentinel = "\x00prompt"

// errMissingSubcommand aborts the root command before any configuration
// is validated against the runtime and before any connection is opened.
var errMissingSubcommand = errors.New("missing required subcommand")

// openFunc matches neomigrate.Open; tests substitute a recorder.
type openFunc func(ctx context.Context, address, username string, password []byte, maxPoolSize int) (*neomigrate.Connection, error)

// app wires the CLI to its collaborators so tests can substitute them.
type app struct {
	open         openFunc
	readPassword func() ([]byte, error)
	env          neomigrate.RuntimeEnvironment
	out          io.Writer
	logW         io.Writer

	opts     neomigrate.Options
	username string
	password string
}

func newApp() *app {
	return &app{
		open:         neomigrate.Open,
		readPassword: readPasswordFromTerminal,
		env:          neomigrate.DetectRuntime(),
		out:          os.Stdout,
		logW:         os.Stderr,
	}
}

// buildCLI assembles the root command and its subcommands.  The root
// command itself performs no work; invoking it without a subcommand is
// an error.
func buildCLI(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:     "neomigrate",
		Short:   "Migrates Neo4j databases",
		Long:    "neomigrate applies versioned Cypher and Go based migrations to Neo4j databases,\nrecording the applied chain in the graph itself.",
		Version: neomigrate.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errMissingSubcommand
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.opts.Address, "address", "a", neomigrate.DefaultAddress,
		"The address this migration should connect to. The driver supports bolt, bolt+routing or neo4j as schemes.")
	flags.StringVarP(&a.username, "username", "u", neomigrate.DefaultUser,
		"The login of the user connecting to the database.")
	flags.StringVarP(&a.password, "password", "p", "",
		"The password of the user connecting to the database. Pass it as --password=<value>; -p alone prompts on the terminal.")
	flags.Lookup("password").NoOptDefVal = passwordPromptSentinel
	flags.StringArrayVar(&a.opts.Packages, "package", nil,
		"Plugin to scan for Go based migrations. Repeat for multiple plugins.")
	flags.StringArrayVar(&a.opts.Locations, "location", nil,
		"Location to scan. Repeat for multiple locations.")
	a.opts.TransactionMode = neomigrate.TransactionModePerMigration
	flags.Var(&a.opts.TransactionMode, "transaction-mode",
		"The transaction mode to use (PER_MIGRATION or PER_STATEMENT).")
	flags.StringVarP(&a.opts.Database, "database", "d", "",
		"The database that should be migrated (Neo4j 4.0+).")
	flags.BoolVarP(&a.opts.Verbose, "verbose", "v", false,
		"Log the configuration and a couple of other things.")
	flags.BoolVar(&a.opts.ValidateOnMigrate, "validate-on-migrate", true,
		"Validate that the migrations applied to the database match the ones available locally.")
	flags.BoolVar(&a.opts.Autocrlf, "autocrlf", true,
		"Automatically convert Windows line-endings (CRLF) to LF when reading script based migrations.")
	flags.IntVar(&a.opts.MaxConnectionPoolSize, "with-max-connection-pool-size", 1,
		"Configure the connection pool size, hardly ever needed to change.")
	_ = flags.MarkHidden("with-max-connection-pool-size")

	root.AddCommand(a.infoCmd(), a.migrateCmd(), a.newCmd())
	return root
}

// bootstrap runs the sequence every database-touching subcommand
// shares: freeze the options into a configuration, validate it against
// the runtime, resolve the credential and open a verified connection.
// The returned connection is owned by the caller.
//
// The password flag is enforced here rather than through cobra's
// required-flag mark so that the built-in help subcommand stays usable
// without a credential.
func (a *app) bootstrap(cmd *cobra.Command) (neomigrate.Config, *neomigrate.Connection, error) {
	ctx := cmd.Context()
	if !cmd.Flags().Changed("password") {
		return neomigrate.Config{}, nil, errors.New(`required flag(s) "password" not set`)
	}

	cfg := a.opts.BuildConfig()
	if err := cfg.ValidateEnvironment(a.env); err != nil {
		return neomigrate.Config{}, nil, err
	}
	cfg.LogTo(a.newLogger())

	password, err := a.resolvePassword()
	if err != nil {
		return neomigrate.Config{}, nil, err
	}
	defer wipe(password)

	conn, err := a.open(ctx, cfg.Address(), a.username, password, cfg.MaxConnectionPoolSize())
	if err != nil {
		return neomigrate.Config{}, nil, err
	}
	return cfg, conn, nil
}

// resolvePassword converges both credential paths, direct supply and
// interactive prompt, to the same in-memory value.
func (a *app) resolvePassword() ([]byte, error) {
	if a.password == passwordPromptSentinel {
		return a.readPassword()
	}
	return []byte(a.password), nil
}

func readPasswordFromTerminal() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("no terminal available to prompt for a password, pass it with --password=<value>")
	}
	fmt.Fprint(os.Stderr, "Enter password: ")
	defer fmt.Fprintln(os.Stderr)
	return term.ReadPassword(fd)
}

// wipe zeroes the in-memory credential once the connection owns it.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// newLogger builds the diagnostic logger; the verbose flag raises the
// level to debug.
func (a *app) newLogger() *slog.Logger {
	level := slog.LevelInfo
	if a.opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.logW, &slog.HandlerOptions{Level: level}))
}

func (a *app) infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the applied migration chain and the pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Failures past parsing are not usage errors.
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			cfg, conn, err := a.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)

			info, err := neomigrate.NewMigrator(cfg, conn).Info(ctx)
			if err != nil {
				return err
			}
			a.printChain(info)
			return nil
		},
	}
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()
			cfg, conn, err := a.bootstrap(cmd)
			if err != nil {
				return err
			}
			defer conn.Close(ctx)

			applied, err := neomigrate.NewMigrator(cfg, conn).Apply(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "[%s] Applied %d migration(s):\n", time.Now().Format(time.Kitchen), len(applied))
			for _, m := range applied {
				fmt.Fprintf(a.out, "  - V%s: %s (%s)\n", m.Version, m.Description, m.Source)
			}
			return nil
		},
	}
}

func (a *app) newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <description>",
		Short: "Scaffold an empty Cypher migration in the first location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			dir := "migrations"
			if len(a.opts.Locations) > 0 {
				dir = a.opts.Locations[0]
			}
			path, err := neomigrate.CreateMigration(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Created %s\n", path)
			return nil
		},
	}
}

func (a *app) printChain(info *neomigrate.ChainInfo) {
	current := info.CurrentVersion()
	if current == "" {
		fmt.Fprintln(a.out, "Current database migration version: none")
	} else {
		fmt.Fprintf(a.out, "Current database migration version: %s\n", current)
	}
	for _, ap := range info.Applied {
		annot := ""
		if ap.Version == current {
			annot = " <== current"
		}
		fmt.Fprintf(a.out, "Version %s: %s (applied)%s\n", ap.Version, ap.Description, annot)
	}
	for _, p := range info.Pending {
		fmt.Fprintf(a.out, "Version %s: %s (pending)\n", p.Version, p.Description)
	}
}
