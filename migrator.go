package neomigrate

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// The applied chain lives in the graph itself: one __Neo4jMigration
// node per applied migration, linked in application order.
const (
	chainQuery = `MATCH (m:__Neo4jMigration)
RETURN m.version AS version, m.description AS description,
       m.checksum AS checksum, m.installedRank AS installedRank
ORDER BY m.installedRank`

	recordAppliedQuery = `CREATE (m:__Neo4jMigration {version: $version, description: $description,
       checksum: $checksum, installedRank: $rank, appliedAt: datetime()})
WITH m
OPTIONAL MATCH (p:__Neo4jMigration {version: $previous})
FOREACH (x IN CASE WHEN p IS NULL THEN [] ELSE [1] END |
  CREATE (p)-[:MIGRATED_TO]->(m))`
)

// AppliedMigration is one node of the persisted chain.
type AppliedMigration struct {
	Version       string
	Description   string
	Checksum      string
	InstalledRank int64
}

// ChainInfo pairs the applied chain with the locally discovered
// migrations that have not been applied yet.
type ChainInfo struct {
	Applied []AppliedMigration
	Pending []Migration
}

// CurrentVersion returns the version of the last applied migration, or
// the empty string for a pristine database.
func (ci *ChainInfo) CurrentVersion() string {
	if len(ci.Applied) == 0 {
		return ""
	}
	return ci.Applied[len(ci.Applied)-1].Version
}

// Migrator discovers, orders and applies migrations against a verified
// connection.  It holds the Configuration read-only and never mutates
// it.
type Migrator struct {
	cfg  Config
	conn *Connection
}

// NewMigrator creates a Migrator from an immutable configuration and an
// open connection.  The caller keeps ownership of the connection.
func NewMigrator(cfg Config, conn *Connection) *Migrator {
	return &Migrator{cfg: cfg, conn: conn}
}

// Info returns the applied chain and the pending migrations.
func (m *Migrator) Info(ctx context.Context) (*ChainInfo, error) {
	discovered, err := discoverMigrations(m.cfg)
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedChain(ctx)
	if err != nil {
		return nil, err
	}
	return &ChainInfo{
		Applied: applied,
		Pending: pendingMigrations(discovered, applied),
	}, nil
}

// Apply validates the applied chain against the local migrations when
// configured to, then runs all pending migrations in version order,
// recording each in the chain.  It returns the migrations it applied,
// also on error.
func (m *Migrator) Apply(ctx context.Context) ([]Migration, error) {
	discovered, err := discoverMigrations(m.cfg)
	if err != nil {
		return nil, err
	}
	applied, err := m.appliedChain(ctx)
	if err != nil {
		return nil, err
	}
	if m.cfg.ValidateOnMigrate() {
		if err := validateApplied(discovered, applied); err != nil {
			return nil, err
		}
	}
	pending := pendingMigrations(discovered, applied)

	session := m.conn.Session(ctx, m.cfg.Database())
	defer session.Close(ctx)

	rank := int64(len(applied))
	previous := ""
	if len(applied) > 0 {
		previous = applied[len(applied)-1].Version
	}
	var done []Migration
	for _, mig := range pending {
		if err := m.runMigration(ctx, session, mig); err != nil {
			return done, fmt.Errorf("migration V%s (%s) failed: %w", mig.Version, mig.Description, err)
		}
		rank++
		if err := m.recordApplied(ctx, session, mig, rank, previous); err != nil {
			return done, err
		}
		previous = mig.Version
		done = append(done, mig)
	}
	return done, nil
}

// appliedChain reads the chain nodes in application order.
func (m *Migrator) appliedChain(ctx context.Context) ([]AppliedMigration, error) {
	session := m.conn.Session(ctx, m.cfg.Database())
	defer session.Close(ctx)

	result, err := session.Run(ctx, chainQuery, nil)
	if err != nil {
		return nil, err
	}
	var applied []AppliedMigration
	for result.Next(ctx) {
		rec := result.Record()
		applied = append(applied, AppliedMigration{
			Version:       recordString(rec, "version"),
			Description:   recordString(rec, "description"),
			Checksum:      recordString(rec, "checksum"),
			InstalledRank: recordInt(rec, "installedRank"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return applied, nil
}

// runMigration executes one migration according to the transaction
// mode.  Code migrations always run in a single managed transaction.
func (m *Migrator) runMigration(ctx context.Context, session neo4j.SessionWithContext, mig Migration) error {
	if mig.code != nil {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return nil, mig.code.Run(ctx, tx)
		})
		return err
	}
	if m.cfg.TransactionMode() == TransactionModePerStatement {
		for _, stmt := range mig.statements {
			result, err := session.Run(ctx, stmt, nil)
			if err != nil {
				return err
			}
			if _, err := result.Consume(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return err
	}
	for _, stmt := range mig.statements {
		result, err := tx.Run(ctx, stmt, nil)
		if err == nil {
			_, err = result.Consume(ctx)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

// recordApplied persists the chain node for a migration and links it to
// its predecessor.
func (m *Migrator) recordApplied(ctx context.Context, session neo4j.SessionWithContext, mig Migration, rank int64, previous string) error {
	result, err := session.Run(ctx, recordAppliedQuery, map[string]any{
		"version":     mig.Version,
		"description": mig.Description,
		"checksum":    mig.Checksum,
		"rank":        rank,
		"previous":    previous,
	})
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// pendingMigrations returns the discovered migrations newer than the
// last applied version.
func pendingMigrations(discovered []Migration, applied []AppliedMigration) []Migration {
	if len(applied) == 0 {
		return discovered
	}
	last := applied[len(applied)-1].Version
	var pending []Migration
	for _, m := range discovered {
		if compareVersions(m.Version, last) > 0 {
			pending = append(pending, m)
		}
	}
	return pending
}

// validateApplied verifies that already applied script migrations have
// not changed locally by comparing checksums.
func validateApplied(discovered []Migration, applied []AppliedMigration) error {
	local := make(map[string]string, len(discovered))
	for _, m := range discovered {
		local[m.Version] = m.Checksum
	}
	for _, a := range applied {
		sum, found := local[a.Version]
		if !found || a.Checksum == "" || sum == "" {
			continue
		}
		if sum != a.Checksum {
			return fmt.Errorf("checksum failed for migration [%s]: applied %s, local %s", a.Version, a.Checksum, sum)
		}
	}
	return nil
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	n, _ := v.(int64)
	return n
}
