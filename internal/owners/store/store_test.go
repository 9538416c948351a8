package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "owners.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpenAndMigrate(t *testing.T) {
	s, path := openTemp(t)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='owner_agents'").Scan(&count)
	if err != nil {
		t.Fatalf("checking owner_agents table: %v", err)
	}
	if count != 1 {
		t.Fatal("owner_agents table not found")
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("counting migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("migration count = %d, want 1", count)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "owners.db")

	s1, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("first Open() error: %v", err)
	}
	s1.Close()

	s2, err := Open(context.Background(), "sqlite://"+path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	s2.Close()
}

func TestLoad(t *testing.T) {
	s, _ := openTemp(t)

	_, err := s.db.Exec(`INSERT INTO owner_agents (owner_id, agent_id, name) VALUES
		('638082', '32094151', 'Oscar'),
		('1739508', '', 'Pol'),
		('804330', '33971907', 'Carlos')`)
	if err != nil {
		t.Fatalf("seeding owner_agents: %v", err)
	}

	m, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if agent, ok := m.AgentFor("638082"); !ok || agent != "32094151" {
		t.Errorf("AgentFor(638082) = (%q, %v), want (32094151, true)", agent, ok)
	}
	if _, ok := m.AgentFor("1739508"); ok {
		t.Error("owner with empty agent_id should not resolve")
	}
	if m.Len() != 3 || m.Mapped() != 2 {
		t.Errorf("Len/Mapped = %d/%d, want 3/2", m.Len(), m.Mapped())
	}
}

func TestLoadEmptyTable(t *testing.T) {
	s, _ := openTemp(t)

	m, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		dsn        string
		wantName   string
		wantSource string
	}{
		{"postgres://u:p@db/routing", "postgres", "postgres://u:p@db/routing"},
		{"postgresql://db/routing?sslmode=disable", "postgres", "postgresql://db/routing?sslmode=disable"},
		{"/var/lib/callrouter/owners.db", "sqlite", "file:/var/lib/callrouter/owners.db?_pragma=busy_timeout(5000)"},
		{"sqlite://owners.db", "sqlite", "file:owners.db?_pragma=busy_timeout(5000)"},
	}

	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			d, source := dialectFor(tt.dsn)
			if d.name != tt.wantName {
				t.Errorf("dialect = %q, want %q", d.name, tt.wantName)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
		})
	}
}

func TestOpenPostgres(t *testing.T) {
	dsn := os.Getenv("CALLROUTER_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CALLROUTER_TEST_POSTGRES_DSN not set")
	}

	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer s.Close()

	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}
