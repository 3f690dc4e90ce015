package neomigrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// CreateMigration scaffolds an empty Cypher migration in dir and
// returns its path.  The new file gets the next major version after the
// highest one already present.
func CreateMigration(dir, description string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("cannot scan location %s: %w", dir, err)
	}
	next := 1
	for _, entry := range entries {
		version, _, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		major, err := strconv.Atoi(strings.SplitN(version, ".", 2)[0])
		if err != nil {
			continue
		}
		if major >= next {
			next = major + 1
		}
	}

	name := fmt.Sprintf("V%d__%s.cypher", next, underscored(description))
	path := filepath.Join(dir, name)
	content := []byte("// Write your Cypher migration here\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to create migration file %s: %w", path, err)
	}
	return path, nil
}

var nonWord = regexp.MustCompile(`[^A-Za-z0-9]+`)

// underscored converts a free-form description into the filename form,
// e.g. "create index" becomes "Create_index".
func underscored(s string) string {
	s = nonWord.ReplaceAllString(strings.TrimSpace(s), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
