package neomigrate

import (
	"context"
	"fmt"
	"plugin"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// GoMigration is a migration implemented in Go, compiled into a plugin
// with -buildmode=plugin.  Run executes inside a managed write
// transaction against the target database.
type GoMigration interface {
	Version() string
	Description() string
	Run(ctx context.Context, tx neo4j.ManagedTransaction) error
}

// MigrationsSymbol is the symbol a migration plugin must export, with
// type *[]GoMigration.
const MigrationsSymbol = "Migrations"

// loadPluginMigrations opens each plugin given as a package to scan and
// collects the migrations it exports.  Statically built binaries cannot
// open plugins; configurations requesting this are rejected upfront by
// Config.ValidateEnvironment.
func loadPluginMigrations(packages []string) ([]Migration, error) {
	var migrations []Migration
	for _, path := range packages {
		p, err := plugin.Open(path)
		if err != nil {
			return nil, fmt.Errorf("cannot load migration plugin %s: %w", path, err)
		}
		sym, err := p.Lookup(MigrationsSymbol)
		if err != nil {
			return nil, fmt.Errorf("plugin %s does not export %s: %w", path, MigrationsSymbol, err)
		}
		list, ok := sym.(*[]GoMigration)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s has type %T, want *[]GoMigration", path, MigrationsSymbol, sym)
		}
		for _, gm := range *list {
			migrations = append(migrations, Migration{
				Version:     gm.Version(),
				Description: gm.Description(),
				Source:      path,
				code:        gm,
			})
		}
	}
	return migrations, nil
}
