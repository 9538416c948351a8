// Package store loads the owner table from a SQL database. A PostgreSQL DSN
// (postgres:// or postgresql://) selects the pgx driver; anything else is
// treated as a SQLite file path.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/flowpbx/callrouter/internal/owners"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// dialect captures the differences between the supported databases.
type dialect struct {
	name           string
	driver         string
	migrationsDir  string
	migrationsDDL  string
	checkMigration string
	markMigration  string
}

var (
	sqliteDialect = dialect{
		name:          "sqlite",
		driver:        "sqlite",
		migrationsDir: "migrations/sqlite",
		migrationsDDL: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT (datetime('now'))
		)`,
		checkMigration: "SELECT COUNT(*) FROM schema_migrations WHERE version = ?",
		markMigration:  "INSERT INTO schema_migrations (version) VALUES (?)",
	}
	postgresDialect = dialect{
		name:          "postgres",
		driver:        "pgx",
		migrationsDir: "migrations/postgres",
		migrationsDDL: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		checkMigration: "SELECT COUNT(*) FROM schema_migrations WHERE version = $1",
		markMigration:  "INSERT INTO schema_migrations (version) VALUES ($1)",
	}
)

// Store reads owner_agents rows.
type Store struct {
	db      *sql.DB
	dialect dialect
}

// Open connects to the database named by dsn and runs pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	d, source := dialectFor(dsn)

	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", d.name, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s: %w", d.name, err)
	}

	if d == sqliteDialect {
		// SQLite performs best with a single writer connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	s := &Store{db: db, dialect: d}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("owner store opened", "dialect", d.name)
	return s, nil
}

// dialectFor picks the dialect for dsn and returns the driver-specific
// data source name.
func dialectFor(dsn string) (dialect, string) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgresDialect, dsn
	}
	path := strings.TrimPrefix(dsn, "sqlite://")
	return sqliteDialect, fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the whole owner table into an immutable map.
func (s *Store) Load(ctx context.Context) (owners.Map, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT owner_id, agent_id, name FROM owner_agents ORDER BY owner_id`)
	if err != nil {
		return owners.Map{}, fmt.Errorf("querying owner_agents: %w", err)
	}
	defer rows.Close()

	var entries []owners.Entry
	for rows.Next() {
		var e owners.Entry
		if err := rows.Scan(&e.OwnerID, &e.AgentID, &e.Name); err != nil {
			return owners.Map{}, fmt.Errorf("scanning owner_agents row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return owners.Map{}, fmt.Errorf("iterating owner_agents: %w", err)
	}

	return owners.NewMap(entries), nil
}

// migrate runs all pending SQL migration files for the dialect in order.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationsDDL); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, s.dialect.migrationsDir)
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		if err := s.db.QueryRowContext(ctx, s.dialect.checkMigration, version).Scan(&count); err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(s.dialect.migrationsDir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.ExecContext(ctx, s.dialect.markMigration, version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "dialect", s.dialect.name, "version", version)
	}

	return nil
}
