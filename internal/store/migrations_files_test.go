package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const testMigrationsDir = "../../db/migrations"

func TestMigrationsArePaired(t *testing.T) {
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_[a-z0-9_]+\.(up|down)\.sql$`)
	seen := map[string]map[string]bool{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			t.Fatalf("unexpected file in migrations dir: %s", entry.Name())
		}
		if seen[match[1]] == nil {
			seen[match[1]] = map[string]bool{}
		}
		seen[match[1]][match[2]] = true
	}

	if len(seen) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, directions := range seen {
		if !directions["up"] || !directions["down"] {
			t.Fatalf("version %s needs both up and down files", version)
		}
	}
}

func TestMigrationsCreateEveryTable(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(testMigrationsDir, "*.up.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	var all strings.Builder
	for _, file := range files {
		contents, err := os.ReadFile(file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		all.Write(contents)
	}

	schema := all.String()
	for _, table := range []string{"clients", "updates", "users", "access", "refresh_sessions", "revoked_access_tokens", "password_resets"} {
		if !strings.Contains(schema, "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Errorf("no migration creates table %s", table)
		}
	}
	if strings.Contains(schema, "REFERENCES clients") {
		t.Error("updates must not reference clients; deleting a client keeps its updates")
	}
}
