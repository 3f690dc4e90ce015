package neomigrate

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration is a single discovered migration, script or code based.
type Migration struct {
	// Version in canonical dotted form, e.g. "1.2" for V1_2.
	Version string

	// Description derived from the file or plugin.
	Description string

	// Source is the file path of a script migration or the plugin path
	// of a code migration.
	Source string

	// Checksum is the MD5 checksum of the (normalized) script contents.
	// Code migrations have no checksum.
	Checksum string

	statements []string
	code       GoMigration
}

// migrationFilePattern matches V<version>__<description>.cypher where
// version segments are separated by underscores.
var migrationFilePattern = regexp.MustCompile(`^V(\d+(?:_\d+)*)__(.+)\.cypher$`)

// compareVersions orders dotted numeric versions segment by segment, so
// that 1.10 sorts after 1.2.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// sortMigrations sorts migrations in ascending version order.
func sortMigrations(migs []Migration) {
	sort.Slice(migs, func(i, j int) bool {
		return compareVersions(migs[i].Version, migs[j].Version) < 0
	})
}

// normalizeLineEndings converts CRLF to LF, pretty much what the same
// Git option does during checkin.
func normalizeLineEndings(content string) string {
	return strings.ReplaceAll(content, "\r\n", "\n")
}

// checksum computes the MD5 checksum of the content after normalizing
// line endings if autocrlf is set.
func checksum(content string, autocrlf bool) string {
	if autocrlf {
		content = normalizeLineEndings(content)
	}
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// splitStatements splits a Cypher script into statements on semicolons
// that terminate a line.
func splitStatements(script string) []string {
	var stmts []string
	var buf strings.Builder
	flush := func() {
		if s := strings.TrimSpace(buf.String()); s != "" {
			stmts = append(stmts, s)
		}
		buf.Reset()
	}
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimRight(line, " \t\r")
		if strings.HasSuffix(trimmed, ";") {
			buf.WriteString(strings.TrimSuffix(trimmed, ";"))
			flush()
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	flush()
	return stmts
}

// parseMigrationFilename extracts version and description from a
// migration file name.  The second return value is false when the name
// is not a migration.
func parseMigrationFilename(name string) (version, description string, ok bool) {
	m := migrationFilePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	version = strings.ReplaceAll(m[1], "_", ".")
	description = strings.ReplaceAll(m[2], "_", " ")
	return version, description, true
}

// scanLocation loads all script migrations found in one directory.
func scanLocation(dir string, autocrlf bool) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot scan location %s: %w", dir, err)
	}
	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, description, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content := string(data)
		if autocrlf {
			content = normalizeLineEndings(content)
		}
		migrations = append(migrations, Migration{
			Version:     version,
			Description: description,
			Source:      path,
			Checksum:    checksum(content, false),
			statements:  splitStatements(content),
		})
	}
	return migrations, nil
}

// discoverMigrations collects script migrations from all locations and
// code migrations from all packages, sorted by ascending version.
// Duplicate versions are an error.
func discoverMigrations(cfg Config) ([]Migration, error) {
	var migrations []Migration
	for _, dir := range cfg.LocationsToScan() {
		migs, err := scanLocation(dir, cfg.Autocrlf())
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migs...)
	}
	plugged, err := loadPluginMigrations(cfg.PackagesToScan())
	if err != nil {
		return nil, err
	}
	migrations = append(migrations, plugged...)

	seen := make(map[string]string, len(migrations))
	for _, m := range migrations {
		if prev, dup := seen[m.Version]; dup {
			return nil, fmt.Errorf("duplicate migration version %s (%s and %s)", m.Version, prev, m.Source)
		}
		seen[m.Version] = m.Source
	}
	sortMigrations(migrations)
	return migrations, nil
}
