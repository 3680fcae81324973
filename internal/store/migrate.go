package store

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrateDB runs all pending migrations while holding a file lock next to the
// database. In-memory databases skip the lock.
func MigrateDB(db *sql.DB, dbPath string) error {
	if !strings.Contains(dbPath, ":memory:") {
		release, err := lockFile(dbPath)
		if err != nil {
			return fmt.Errorf("migration lock: %w", err)
		}
		defer release()
	}
	return RetryWithBackoff(func() error { return RunMigrations(db) })
}

// SchemaVersion returns the current and latest migration versions.
// Returns (0, latest, nil) for a fresh DB.
func SchemaVersion(db *sql.DB) (current int64, latest int64, err error) {
	if err := configureGoose(); err != nil {
		return 0, 0, err
	}

	current, err = goose.GetDBVersion(db)
	if err != nil {
		// Fresh DB with no goose_db_version table.
		current = 0
	}

	latest, err = latestMigrationVersion()
	if err != nil {
		return current, 0, fmt.Errorf("determine latest version: %w", err)
	}
	return current, latest, nil
}

// latestMigrationVersion returns the highest version among the embedded
// migration files, parsed from the "00001_name.sql" prefix.
func latestMigrationVersion() (int64, error) {
	entries, err := embedMigrations.ReadDir("migrations")
	if err != nil {
		return 0, fmt.Errorf("read migrations dir: %w", err)
	}
	var highest int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			continue
		}
		highest = max(highest, v)
	}
	return highest, nil
}

// RunMigrations applies all pending migrations using goose.
func RunMigrations(db *sql.DB) error {
	if err := configureGoose(); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func configureGoose() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false) // keep stdout for the JSON envelope
	goose.SetLogger(goose.NopLogger())

	// goose names the dialect "sqlite3"; the driver is modernc's "sqlite".
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	return nil
}
