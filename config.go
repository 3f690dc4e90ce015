package neomigrate

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
)

// Defaults mirrored by the CLI flags.
const (
	// DefaultAddress is the Bolt address used when none is supplied.
	DefaultAddress = "bolt://localhost:7687"

	// DefaultUser is the login used when none is supplied.
	DefaultUser = "neo4j"
)

// TransactionMode selects how statements of script migrations are
// grouped into transactions.
type TransactionMode string

const (
	// TransactionModePerMigration runs all statements of one migration
	// in a single explicit transaction.
	TransactionModePerMigration TransactionMode = "PER_MIGRATION"

	// TransactionModePerStatement runs every statement in its own
	// auto-commit transaction.
	TransactionModePerStatement TransactionMode = "PER_STATEMENT"
)

// String implements pflag.Value.
func (m TransactionMode) String() string { return string(m) }

// Set implements pflag.Value, rejecting unknown modes at parse time.
func (m *TransactionMode) Set(v string) error {
	switch TransactionMode(v) {
	case TransactionModePerMigration, TransactionModePerStatement:
		*m = TransactionMode(v)
		return nil
	}
	return fmt.Errorf("must be %s or %s", TransactionModePerMigration, TransactionModePerStatement)
}

// Type implements pflag.Value.
func (m *TransactionMode) Type() string { return "mode" }

// Options is the mutable bag of command-line supplied values prior to
// validation.  It is populated by flag parsing, consumed once by
// BuildConfig and then discarded.  Credentials are deliberately not
// part of Options; they belong to the connection.
type Options struct {
	Address               string
	Packages              []string
	Locations             []string
	TransactionMode       TransactionMode
	Database              string
	Verbose               bool
	ValidateOnMigrate     bool
	Autocrlf              bool
	MaxConnectionPoolSize int
}

// BuildConfig freezes the options into a Configuration, filling in
// defaults for zero values.  It is pure and deterministic: equal
// Options always yield equal Configs.  It never touches the network.
func (o Options) BuildConfig() Config {
	address := o.Address
	if address == "" {
		address = DefaultAddress
	}
	mode := o.TransactionMode
	if mode == "" {
		mode = TransactionModePerMigration
	}
	poolSize := o.MaxConnectionPoolSize
	if poolSize < 1 {
		poolSize = 1
	}
	return Config{
		address:           address,
		packages:          slices.Clone(o.Packages),
		locations:         slices.Clone(o.Locations),
		transactionMode:   mode,
		database:          o.Database,
		verbose:           o.Verbose,
		validateOnMigrate: o.ValidateOnMigrate,
		autocrlf:          o.Autocrlf,
		maxPoolSize:       poolSize,
	}
}

// Config is the immutable runtime configuration.  Once built it is
// never mutated and is safe to hand read-only to any command.
type Config struct {
	address           string
	packages          []string
	locations         []string
	transactionMode   TransactionMode
	database          string
	verbose           bool
	validateOnMigrate bool
	autocrlf          bool
	maxPoolSize       int
}

// Address returns the Bolt address of the target server.
func (c Config) Address() string { return c.address }

// PackagesToScan returns the plugin paths to scan for Go based
// migrations.  The returned slice is a copy.
func (c Config) PackagesToScan() []string { return slices.Clone(c.packages) }

// LocationsToScan returns the directories to scan for script based
// migrations.  The returned slice is a copy.
func (c Config) LocationsToScan() []string { return slices.Clone(c.locations) }

// TransactionMode returns the configured transaction grouping.
func (c Config) TransactionMode() TransactionMode { return c.transactionMode }

// Database returns the target database name; empty selects the server
// default.
func (c Config) Database() string { return c.database }

// Verbose reports whether diagnostic output was requested.
func (c Config) Verbose() bool { return c.verbose }

// ValidateOnMigrate reports whether applied migrations are checked
// against the local ones before migrating.
func (c Config) ValidateOnMigrate() bool { return c.validateOnMigrate }

// Autocrlf reports whether CRLF line endings are normalized to LF when
// reading script migrations.
func (c Config) Autocrlf() bool { return c.autocrlf }

// MaxConnectionPoolSize returns the driver connection pool bound.
func (c Config) MaxConnectionPoolSize() int { return c.maxPoolSize }

// LogTo writes a summary of the configuration to the given logger when
// the verbose flag was set.  The summary contains no sensitive values:
// credentials are not part of a Config at all.
func (c Config) LogTo(logger *slog.Logger) {
	if !c.verbose {
		return
	}
	database := c.database
	if database == "" {
		database = "<default>"
	}
	logger.Info("configuration",
		"address", c.address,
		"locations", c.locations,
		"packages", c.packages,
		"transaction_mode", string(c.transactionMode),
		"database", database,
		"validate_on_migrate", c.validateOnMigrate,
		"autocrlf", c.autocrlf,
		"max_connection_pool_size", c.maxPoolSize,
	)
}

// restrictedRuntime is stamped to "true" via
//
//	-ldflags "-X github.com/neomigrate/neomigrate.restrictedRuntime=true"
//
// when building the static prebuilt distribution, which cannot load Go
// plugins.
var restrictedRuntime = "false"

// RuntimeEnvironment describes the mode the process executes in.  It is
// detected once at startup and passed around as a value so both states
// stay testable.
type RuntimeEnvironment struct {
	// Restricted is true when the binary cannot load Go plugins.
	Restricted bool
}

// DetectRuntime reports the environment of the running binary.
func DetectRuntime() RuntimeEnvironment {
	restricted, _ := strconv.ParseBool(restrictedRuntime)
	return RuntimeEnvironment{Restricted: restricted}
}

// ValidateEnvironment checks the configuration against the runtime.
// Package scanning needs the plugin loader, which restricted builds do
// not have; every other configuration passes unchanged.  Location
// scanning only reads files and is valid in any runtime.
func (c Config) ValidateEnvironment(env RuntimeEnvironment) error {
	if env.Restricted && len(c.packages) != 0 {
		return &UnsupportedConfigError{
			Reason: "Go based migrations are not supported in statically built binaries. Please use a distribution with plugin support.",
		}
	}
	return nil
}
