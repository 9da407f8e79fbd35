package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/fheroes2/webstage/logging"
	"github.com/fheroes2/webstage/metrics"
	"github.com/fheroes2/webstage/vfs"
)

// SQLite stores every entry as a row keyed by path, content inline.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database file at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := openDBAt(dbPath)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) List(ctx context.Context) (map[string]vfs.EntryMeta, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, `SELECT path, mode, mtime FROM entries`)
	if err != nil {
		metrics.RecordBackendOp(TypeSQLite, "list", time.Since(start), false)
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := make(map[string]vfs.EntryMeta)
	for rows.Next() {
		var (
			p    string
			mode uint32
			m    vfs.EntryMeta
		)
		if err := rows.Scan(&p, &mode, &m.Mtime); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		m.Mode = fs.FileMode(mode)
		out[p] = m
	}
	err = rows.Err()
	metrics.RecordBackendOp(TypeSQLite, "list", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

func (s *SQLite) Load(ctx context.Context, p string) ([]byte, error) {
	start := time.Now()
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM entries WHERE path = ? AND content IS NOT NULL`, key(p)).Scan(&data)
	metrics.RecordBackendOp(TypeSQLite, "load", time.Since(start), err == nil)
	if errors.Is(err, sql.ErrNoRows) {
		if logging.Enabled(slog.LevelDebug) {
			sub("store").Debug("Load", "path", p, "found", false)
		}
		return nil, &fs.PathError{Op: "load", Path: p, Err: fs.ErrNotExist}
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", p, err)
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (s *SQLite) Put(ctx context.Context, e vfs.Entry) error {
	l := sub("store")
	start := time.Now()

	var content any
	if !e.IsDir() {
		content = e.Content
		if e.Content == nil {
			content = []byte{}
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (path, mode, mtime, size, content)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mode    = excluded.mode,
			mtime   = excluded.mtime,
			size    = excluded.size,
			content = excluded.content
	`, key(e.Path), uint32(e.Mode), e.Mtime, len(e.Content), content)
	metrics.RecordBackendOp(TypeSQLite, "put", time.Since(start), err == nil)
	if err != nil {
		l.Error("Put failed", "path", e.Path, "err", err)
		return fmt.Errorf("upsert entry: %w", err)
	}
	if logging.Enabled(slog.LevelDebug) {
		l.Debug("Put", "path", e.Path, "dir", e.IsDir(), "size", len(e.Content))
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, p string) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE path = ?`, key(p))
	metrics.RecordBackendOp(TypeSQLite, "delete", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Commit records the persist time and checkpoints the WAL into the main
// database file.
func (s *SQLite) Commit(ctx context.Context) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('last_commit', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, strconv.FormatInt(time.Now().UnixNano(), 10))
	if err == nil {
		_, err = s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	}
	metrics.RecordBackendOp(TypeSQLite, "commit", time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LastCommit returns when the last persist completed, zero if never.
func (s *SQLite) LastCommit(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'last_commit'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last commit: %w", err)
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last commit: %w", err)
	}
	return time.Unix(0, ns), nil
}

// Usage returns the entry count and total stored bytes.
func (s *SQLite) Usage(ctx context.Context) (entries int, bytes int64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM entries`).Scan(&entries, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("usage: %w", err)
	}
	return entries, bytes, nil
}
