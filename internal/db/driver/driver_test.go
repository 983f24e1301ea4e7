package driver

import (
	"context"
	"testing"
	"testing/fstest"
)

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"sqlite3", DialectSQLite, false},
		{"", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"pg", DialectPostgres, false},
		{"mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSQLitePlaceholder(t *testing.T) {
	d := NewSQLite()
	for i := 1; i <= 3; i++ {
		if got := d.Placeholder(i); got != "?" {
			t.Errorf("Placeholder(%d) = %q, want ?", i, got)
		}
	}
}

func TestPostgresPlaceholder(t *testing.T) {
	d := NewPostgres()
	if got := d.Placeholder(1); got != "$1" {
		t.Errorf("Placeholder(1) = %q, want $1", got)
	}
	if got := d.Placeholder(12); got != "$12" {
		t.Errorf("Placeholder(12) = %q, want $12", got)
	}
}

func TestSQLiteMigrateIdempotent(t *testing.T) {
	d := NewSQLite()
	if err := d.Open(":memory:"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	fsys := fstest.MapFS{
		"schema/001_init.sql": {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"schema/002_more.sql": {Data: []byte("ALTER TABLE widgets ADD COLUMN name TEXT;")},
	}

	ctx := context.Background()
	if err := d.Migrate(ctx, fsys, "schema"); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	// Second run must not re-apply.
	if err := d.Migrate(ctx, fsys, "schema"); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var count int
	if err := d.QueryRow(ctx, "SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("query _migrations: %v", err)
	}
	if count != 2 {
		t.Errorf("applied migrations = %d, want 2", count)
	}

	if _, err := d.Exec(ctx, "INSERT INTO widgets (id, name) VALUES (?, ?)", "w1", "x"); err != nil {
		t.Errorf("schema not usable after migrate: %v", err)
	}
}

func TestSQLitePragmas(t *testing.T) {
	d := NewSQLite()
	if err := d.Open(":memory:"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	var fk int
	if err := d.QueryRow(context.Background(), "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}
