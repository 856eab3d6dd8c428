package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		url    string
		driver string
	}{
		{"postgres://u:p@localhost:5432/sala?sslmode=disable", DriverPostgres},
		{"postgresql://localhost/sala", DriverPostgres},
		{"file:test?mode=memory&cache=shared", DriverSQLite},
	}
	for _, tc := range cases {
		driver, _, err := parseURL(tc.url)
		if err != nil {
			t.Fatalf("parseURL(%q): %v", tc.url, err)
		}
		if driver != tc.driver {
			t.Errorf("parseURL(%q): got %s, want %s", tc.url, driver, tc.driver)
		}
	}
	if _, _, err := parseURL("mysql://localhost"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestNewDBAppliesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sala.db")

	db, err := NewDB("sqlite:///" + path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	tables := []string{"classes", "authorized_codes", "sessions", "attendance", "attempt_log", "teachers", "schema_migrations"}
	for _, tbl := range tables {
		var name string
		err := db.Client.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", tbl, err)
		}
	}

	var n int
	if err := db.Client.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != len(Migrations) {
		t.Fatalf("applied migrations: got %d, want %d", n, len(Migrations))
	}
}

func TestMigrateIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sala.db")

	first, err := NewDB("sqlite:///" + path)
	if err != nil {
		t.Fatalf("first NewDB: %v", err)
	}
	if err := Migrate(context.Background(), first.Client); err != nil {
		t.Fatalf("re-Migrate: %v", err)
	}
	first.Close()

	second, err := NewDB("sqlite:///" + path)
	if err != nil {
		t.Fatalf("second NewDB: %v", err)
	}
	defer second.Close()

	var n int
	if err := second.Client.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != len(Migrations) {
		t.Fatalf("applied migrations: got %d, want %d", n, len(Migrations))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sala.db")
	db, err := NewDB("sqlite:///" + path)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	if _, err := db.Client.Exec(`INSERT INTO classes (id) VALUES ('9A')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	_, err = db.Client.Exec(`INSERT INTO classes (id) VALUES ('9A')`)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	if IsUniqueViolation(nil) {
		t.Fatal("nil is not a violation")
	}
}
