// SPDX-License-Identifier: MIT

// Package neomigrate bootstraps and runs migrations against Neo4j
// databases.  It resolves command-line options into an immutable
// Configuration, verifies a Bolt connection before handing it to any
// command, and applies versioned Cypher migrations while recording the
// applied chain in the graph itself.
//
// # Quick start
//
//	import (
//	    "context"
//
//	    "github.com/neomigrate/neomigrate"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    cfg := neomigrate.Options{
//	        Address:   "bolt://localhost:7687",
//	        Locations: []string{"migrations"},
//	    }.BuildConfig()
//
//	    conn, _ := neomigrate.Open(ctx, cfg.Address(), "neo4j", []byte("secret"), 1)
//	    defer conn.Close(ctx)
//
//	    m := neomigrate.NewMigrator(cfg, conn)
//	    m.Apply(ctx)
//	}
//
// # Configuration
//
// Options carries the raw command-line values and is consumed once;
// BuildConfig freezes them into a Configuration that is safe to share
// read-only.  ValidateEnvironment rejects configurations that request Go
// plugin loading from a statically built distribution, which cannot
// load plugins.
//
// # Migration files
//
// Script migrations are Cypher files named after their version and a
// description, found in the configured scan locations:
//
//	V1__Create_constraints.cypher
//	V1_1__Add_people.cypher
//
// Version segments are separated by underscores and compared
// numerically.  Code based migrations come from Go plugins that export a
// Migrations symbol; list the plugin paths as packages to scan.
//
// # Programmatic API
//
//	Open(ctx, address, user, password, poolSize) → *Connection, error
//	NewMigrator(cfg, conn)                       → *Migrator
//	(*Migrator).Info(ctx)                        → *ChainInfo, error
//	(*Migrator).Apply(ctx)                       → []Migration, error
//
// All operations are context-aware.
//
// # Exit codes
//
// The library returns errors; the CLI under cmd/neomigrate exits with
// non-zero status on any failure.
//
// # Versioning
//
// A semantic version string is exposed as:
//
//	var Version = "vX.Y.Z"
package neomigrate
