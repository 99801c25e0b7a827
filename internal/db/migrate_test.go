package db

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_chat.up.sql":   {Data: []byte("SELECT 2")},
		"0001_init.up.sql":   {Data: []byte("SELECT 1")},
		"0001_init.down.sql": {Data: []byte("SELECT 0")},
		"README.md":          {Data: []byte("docs")},
	}

	got, err := PendingMigrations(fsys, map[string]bool{})
	if err != nil {
		t.Fatalf("PendingMigrations: %v", err)
	}
	if len(got) != 2 || got[0] != "0001_init" || got[1] != "0002_chat" {
		t.Errorf("pending = %v, want [0001_init 0002_chat]", got)
	}

	got, _ = PendingMigrations(fsys, map[string]bool{"0001_init": true})
	if len(got) != 1 || got[0] != "0002_chat" {
		t.Errorf("pending = %v, want [0002_chat]", got)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	got, err := PendingMigrations(Migrations(""), nil)
	if err != nil {
		t.Fatalf("PendingMigrations: %v", err)
	}
	if len(got) == 0 || got[0] != "0001_init" {
		t.Errorf("embedded migrations = %v, want 0001_init first", got)
	}
}
