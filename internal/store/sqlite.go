package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by a single sqlite file, one table per
// name in store.go, each shaped as (id TEXT PRIMARY KEY, data TEXT). This
// mirrors internal/storage/sqlite's expectation that a "sqlite3" driver
// is already registered via blank import (see DESIGN.md).
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the sqlite file at path and
// ensures every known table exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path))
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, table := range []string{TableAlarms, TableAlarmRules, TableBlackouts, TableTopology} {
		stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)`, table)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, table string, row Row) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`, table),
		row.ID, string(row.Data))
	if err != nil {
		return fmt.Errorf("store: upsert %s/%s: %w", table, row.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table string, id string) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *SQLiteStore) LoadAll(ctx context.Context, table string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, data FROM %s`, table))
	if err != nil {
		return nil, fmt.Errorf("store: load_all %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var data string
		if err := rows.Scan(&r.ID, &data); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", table, err)
		}
		r.Data = []byte(data)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplaceAll deletes every row in table and inserts rows, within one
// transaction so readers never observe a partially-replaced table.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, table string, rows []Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin replace_all %s: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
		return fmt.Errorf("store: clear %s: %w", table, err)
	}
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)`, table),
			row.ID, string(row.Data)); err != nil {
			return fmt.Errorf("store: insert %s/%s: %w", table, row.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
