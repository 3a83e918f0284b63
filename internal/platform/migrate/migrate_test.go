package migrate

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestListSQLFiles_SortedAndFlat(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.sql", "001_a.SQL", "notes.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sub := filepath.Join(dir, "old")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "000_ignored.sql"), []byte("--"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := listSQLFiles(dir)
	if err != nil {
		t.Fatalf("listSQLFiles: %v", err)
	}
	want := []string{"001_a.SQL", "002_b.sql"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestResolveMigrationsDir_Explicit(t *testing.T) {
	got, err := resolveMigrationsDir(" ./x/../migrations ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "migrations" {
		t.Fatalf("got %q", got)
	}
}

func TestRepoMigrationsExist(t *testing.T) {
	got, err := listSQLFiles("../../../migrations")
	if err != nil {
		t.Fatalf("listSQLFiles: %v", err)
	}
	if len(got) == 0 || got[0] != "001_create_shortlinks.sql" {
		t.Fatalf("unexpected migrations: %v", got)
	}
}
