package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "buildrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Store is the sqlite-backed endpoint registry.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

// Open opens (creating if needed) the registry database at cfg.Path and
// applies migrations. Use ":memory:" for an ephemeral store.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("registry: sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Add registers an endpoint. A channel can hold at most one endpoint.
func (s *Store) Add(ctx context.Context, ep Endpoint) error {
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now()
	}
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM endpoints WHERE channel_id = ?`, ep.ChannelID).Scan(&existing)
	switch {
	case err == nil:
		return fmt.Errorf("%w: channel %s has endpoint %s", ErrChannelTaken, ep.ChannelID, existing)
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	active := 0
	if ep.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO endpoints(id, token, channel_id, active, created_at) VALUES(?,?,?,?,?)`,
		ep.ID, ep.Token, ep.ChannelID, active, ep.CreatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM endpoints WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetActive(ctx context.Context, id string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE endpoints SET active = ? WHERE id = ?`, v, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive returns the endpoints that participate in dispatch.
func (s *Store) ListActive(ctx context.Context) ([]Endpoint, error) {
	return s.list(ctx, `SELECT id, token, channel_id, active, created_at FROM endpoints WHERE active = 1 ORDER BY created_at`)
}

func (s *Store) List(ctx context.Context) ([]Endpoint, error) {
	return s.list(ctx, `SELECT id, token, channel_id, active, created_at FROM endpoints ORDER BY created_at`)
}

func (s *Store) list(ctx context.Context, query string) ([]Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		var (
			ep      Endpoint
			active  int
			created string
		)
		if err := rows.Scan(&ep.ID, &ep.Token, &ep.ChannelID, &active, &created); err != nil {
			return nil, err
		}
		ep.Active = active != 0
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			ep.CreatedAt = t
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatch_audit(at, endpoint_id, subject_id, op, ok, err, took_ms) VALUES(?,?,?,?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.EndpointID, e.SubjectID, e.Op, ok, nullStr(e.Error), e.TookMS,
	)
	return err
}

// PruneAudit deletes audit rows older than the cutoff and reports how
// many were removed.
func (s *Store) PruneAudit(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dispatch_audit WHERE at < ?`, olderThan.Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
