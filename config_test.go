package neomigrate

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestBuildConfigDefaults verifies that zero-valued options resolve to
// the documented defaults.
func TestBuildConfigDefaults(t *testing.T) {
	cfg := Options{}.BuildConfig()

	if got := cfg.Address(); got != DefaultAddress {
		t.Errorf("address: expected %q, got %q", DefaultAddress, got)
	}
	if got := cfg.TransactionMode(); got != TransactionModePerMigration {
		t.Errorf("transaction mode: expected %q, got %q", TransactionModePerMigration, got)
	}
	if got := cfg.MaxConnectionPoolSize(); got != 1 {
		t.Errorf("pool size: expected 1, got %d", got)
	}
	if len(cfg.PackagesToScan()) != 0 || len(cfg.LocationsToScan()) != 0 {
		t.Errorf("expected empty scan lists, got %v / %v", cfg.PackagesToScan(), cfg.LocationsToScan())
	}
}

// TestBuildConfigDeterminism verifies that equal options always yield
// equal configurations.
func TestBuildConfigDeterminism(t *testing.T) {
	opts := func() Options {
		return Options{
			Address:           "neo4j://db.example.com:7687",
			Packages:          []string{"plugins/a.so"},
			Locations:         []string{"migrations", "extra"},
			TransactionMode:   TransactionModePerStatement,
			Database:          "movies",
			Verbose:           true,
			ValidateOnMigrate: true,
			Autocrlf:          true,
		}
	}

	a := opts().BuildConfig()
	b := opts().BuildConfig()
	if diff := cmp.Diff(a, b, cmp.AllowUnexported(Config{})); diff != "" {
		t.Errorf("configs differ (-a +b):\n%s", diff)
	}
}

// TestConfigImmutable verifies that neither mutating the source options
// nor mutating an accessor result changes a built configuration.
func TestConfigImmutable(t *testing.T) {
	opts := Options{Locations: []string{"migrations"}}
	cfg := opts.BuildConfig()

	opts.Locations[0] = "changed"
	if got := cfg.LocationsToScan()[0]; got != "migrations" {
		t.Errorf("config tracked options mutation: %q", got)
	}

	cfg.LocationsToScan()[0] = "changed"
	if got := cfg.LocationsToScan()[0]; got != "migrations" {
		t.Errorf("config tracked accessor mutation: %q", got)
	}
}

// TestValidateEnvironment covers the capability check between package
// scanning and restricted runtimes.
func TestValidateEnvironment(t *testing.T) {
	withPackages := Options{Packages: []string{"plugins/a.so"}}.BuildConfig()
	without := Options{Locations: []string{"migrations"}}.BuildConfig()
	restricted := RuntimeEnvironment{Restricted: true}
	unrestricted := RuntimeEnvironment{}

	err := withPackages.ValidateEnvironment(restricted)
	var uce *UnsupportedConfigError
	if !errors.As(err, &uce) {
		t.Fatalf("expected UnsupportedConfigError, got %v", err)
	}

	if err := withPackages.ValidateEnvironment(unrestricted); err != nil {
		t.Errorf("unrestricted runtime should accept packages: %v", err)
	}
	if err := without.ValidateEnvironment(restricted); err != nil {
		t.Errorf("restricted runtime should accept location-only config: %v", err)
	}
	if err := without.ValidateEnvironment(unrestricted); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

// TestTransactionModeSet verifies parse-time rejection of unknown
// modes.
func TestTransactionModeSet(t *testing.T) {
	var m TransactionMode
	if err := m.Set("PER_STATEMENT"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m != TransactionModePerStatement {
		t.Errorf("expected %q, got %q", TransactionModePerStatement, m)
	}
	if err := m.Set("EVERY_OTHER_TUESDAY"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

// TestLogTo verifies that the summary is only written in verbose mode
// and stays free of credentials.
func TestLogTo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	Options{Database: "movies"}.BuildConfig().LogTo(logger)
	if buf.Len() != 0 {
		t.Fatalf("non-verbose config should log nothing, got %q", buf.String())
	}

	Options{Database: "movies", Verbose: true}.BuildConfig().LogTo(logger)
	out := buf.String()
	if !strings.Contains(out, DefaultAddress) || !strings.Contains(out, "movies") {
		t.Errorf("summary misses expected fields: %q", out)
	}
	if strings.Contains(strings.ToLower(out), "password") {
		t.Errorf("summary must not mention credentials: %q", out)
	}
}

// TestDetectRuntime checks the build-time default.
func TestDetectRuntime(t *testing.T) {
	if DetectRuntime().Restricted {
		t.Error("default build should not be restricted")
	}
}
