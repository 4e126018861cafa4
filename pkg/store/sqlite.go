package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"trust-pool/pkg/model"
)

// SQLiteStore backs the scheduler with a local sqlite file, for
// single-binary deployments without a MySQL server.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checks(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	descr TEXT NOT NULL DEFAULT '',
	spacing INTEGER NOT NULL,
	timeout INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results(
	id TEXT PRIMARY KEY,
	check_id INTEGER NOT NULL,
	check_name TEXT NOT NULL,
	node TEXT NOT NULL,
	result TEXT NOT NULL,
	status TEXT NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_ts ON results(ts);
CREATE TABLE IF NOT EXISTS nodes(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	host TEXT UNIQUE NOT NULL,
	addr TEXT NOT NULL DEFAULT '',
	descr TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS audit(
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	target TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	ts INTEGER NOT NULL
);`

// NewSQLiteStore opens (and creates if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite mkdir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CheckGet(name string) (model.Check, error) {
	row := s.db.QueryRow(`SELECT id, name, descr, spacing, timeout, created_at, updated_at FROM checks WHERE name=?`, name)
	return scanCheck(row)
}

func scanCheck(row *sql.Row) (model.Check, error) {
	var c model.Check
	var created, updated int64
	err := row.Scan(&c.ID, &c.Name, &c.Desc, &c.Spacing, &c.Timeout, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Check{}, ErrNotFound
	}
	if err != nil {
		return model.Check{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return c, nil
}

func (s *SQLiteStore) CheckGetAll() ([]model.Check, error) {
	rows, err := s.db.Query(`SELECT id, name, descr, spacing, timeout, created_at, updated_at FROM checks ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []model.Check
	for rows.Next() {
		var c model.Check
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.Name, &c.Desc, &c.Spacing, &c.Timeout, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		c.CreatedAt = time.Unix(created, 0)
		c.UpdatedAt = time.Unix(updated, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CheckCreate(c model.Check) (model.Check, error) {
	if _, err := s.CheckGet(c.Name); err == nil {
		return model.Check{}, ErrConflict
	} else if !errors.Is(err, ErrNotFound) {
		return model.Check{}, err
	}
	now := time.Now()
	res, err := s.db.Exec(`INSERT INTO checks(name, descr, spacing, timeout, created_at, updated_at) VALUES(?,?,?,?,?,?)`,
		c.Name, c.Desc, c.Spacing, c.Timeout, now.Unix(), now.Unix())
	if err != nil {
		return model.Check{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	id, _ := res.LastInsertId()
	c.ID = uint(id)
	c.CreatedAt = now
	c.UpdatedAt = now
	return c, nil
}

func (s *SQLiteStore) CheckUpdate(name string, patch model.CheckPatch) (model.Check, error) {
	c, err := s.CheckGet(name)
	if err != nil {
		return model.Check{}, err
	}
	if patch.Desc != nil {
		c.Desc = *patch.Desc
	}
	if patch.Spacing != nil {
		c.Spacing = *patch.Spacing
	}
	if patch.Timeout != nil {
		c.Timeout = *patch.Timeout
	}
	c.UpdatedAt = time.Now()
	_, err = s.db.Exec(`UPDATE checks SET descr=?, spacing=?, timeout=?, updated_at=? WHERE name=?`,
		c.Desc, c.Spacing, c.Timeout, c.UpdatedAt.Unix(), name)
	if err != nil {
		return model.Check{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c, nil
}

func (s *SQLiteStore) CheckDelete(name string) error {
	res, err := s.db.Exec(`DELETE FROM checks WHERE name=?`, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ResultStore(r model.CheckResult) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO results(id, check_id, check_name, node, result, status, ts) VALUES(?,?,?,?,?,?,?)`,
		r.ID, r.CheckID, r.CheckName, r.Node, string(r.Result), r.Status, r.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) ResultsGet(limit int) ([]model.CheckResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT id, check_id, check_name, node, result, status, ts FROM results ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []model.CheckResult
	for rows.Next() {
		var r model.CheckResult
		var lvl string
		var ts int64
		if err := rows.Scan(&r.ID, &r.CheckID, &r.CheckName, &r.Node, &lvl, &r.Status, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		r.Result = model.TrustLevel(lvl)
		r.Timestamp = time.Unix(0, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) NodeUpsert(n model.Node) (model.Node, error) {
	now := time.Now()
	_, err := s.db.Exec(`INSERT INTO nodes(host, addr, descr, created_at, updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(host) DO UPDATE SET addr=excluded.addr, descr=excluded.descr, updated_at=excluded.updated_at`,
		n.Host, n.Addr, n.Desc, now.Unix(), now.Unix())
	if err != nil {
		return model.Node{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	row := s.db.QueryRow(`SELECT id, created_at FROM nodes WHERE host=?`, n.Host)
	var created int64
	if err := row.Scan(&n.ID, &created); err != nil {
		return model.Node{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n.CreatedAt = time.Unix(created, 0)
	n.UpdatedAt = now
	return n, nil
}

func (s *SQLiteStore) NodeGetAll() ([]model.Node, error) {
	rows, err := s.db.Query(`SELECT id, host, addr, descr, created_at, updated_at FROM nodes ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []model.Node
	for rows.Next() {
		var n model.Node
		var created, updated int64
		if err := rows.Scan(&n.ID, &n.Host, &n.Addr, &n.Desc, &created, &updated); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		n.CreatedAt = time.Unix(created, 0)
		n.UpdatedAt = time.Unix(updated, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AppendAudit(e model.AuditEntry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO audit(actor, action, target, detail, ts) VALUES(?,?,?,?,?)`,
		e.Actor, e.Action, e.Target, e.Detail, e.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) ListAudit(limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`SELECT actor, action, target, detail, ts FROM audit ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var ts int64
		if err := rows.Scan(&e.Actor, &e.Action, &e.Target, &e.Detail, &ts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
