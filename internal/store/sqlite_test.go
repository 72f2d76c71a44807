package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteUpsertLoadDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Upsert(ctx, TableAlarms, Row{ID: "a1", Data: []byte(`{"id":"a1"}`)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	rows, err := s.LoadAll(ctx, TableAlarms)
	if err != nil {
		t.Fatalf("load_all: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "a1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	if err := s.Upsert(ctx, TableAlarms, Row{ID: "a1", Data: []byte(`{"id":"a1","severity":"warning"}`)}); err != nil {
		t.Fatalf("upsert replace: %v", err)
	}
	rows, _ = s.LoadAll(ctx, TableAlarms)
	if len(rows) != 1 || string(rows[0].Data) != `{"id":"a1","severity":"warning"}` {
		t.Fatalf("expected upsert to replace row, got %+v", rows)
	}

	if err := s.Delete(ctx, TableAlarms, "a1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, _ = s.LoadAll(ctx, TableAlarms)
	if len(rows) != 0 {
		t.Fatalf("expected empty table after delete, got %+v", rows)
	}
}

func TestSQLiteReplaceAll(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenSQLite(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.Upsert(ctx, TableTopology, Row{ID: "old", Data: []byte(`{}`)}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	if err := s.ReplaceAll(ctx, TableTopology, []Row{
		{ID: "e1", Data: []byte(`{"from":"a","to":"b"}`)},
		{ID: "e2", Data: []byte(`{"from":"b","to":"c"}`)},
	}); err != nil {
		t.Fatalf("replace_all: %v", err)
	}

	rows, err := s.LoadAll(ctx, TableTopology)
	if err != nil {
		t.Fatalf("load_all: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after replace_all, got %d", len(rows))
	}
	for _, r := range rows {
		if r.ID == "old" {
			t.Fatalf("replace_all did not clear prior rows: %+v", rows)
		}
	}
}
