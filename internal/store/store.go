// Package store manages recorded session logs on disk.
//
// Event logs are append-only .jsonl files under <dir>/sessions and are
// never rewritten. A sqlite catalog alongside them carries session
// metadata; listing falls back to a directory scan so log files placed
// there by other tools still show up.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound means the reference matched no stored session.
var ErrNotFound = errors.New("session not found")

// Session is one catalog row.
type Session struct {
	ID             string
	Name           string
	File           string
	StartedAt      time.Time
	Events         uint64
	Duration       time.Duration
	CaptureContext bool
}

type Store struct {
	dir string
	db  *sql.DB
}

// Open prepares the sessions directory and the catalog database.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "sessions"), 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{dir: dir, db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			return fmt.Errorf("record migration %s: %w", f, err)
		}
	}
	return nil
}

// LogPath returns the on-disk path for a session name.
func (s *Store) LogPath(name string) string {
	safe := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '-'
		}
		return r
	}, name)
	return filepath.Join(s.dir, "sessions", safe+".jsonl")
}

// CreateLog opens the append-only log file for a new session.
func (s *Store) CreateLog(name string) (*os.File, string, error) {
	path := s.LogPath(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("create log %s: %w", path, err)
	}
	return f, path, nil
}

// Add records a finished session in the catalog. Re-recording a name
// replaces the previous row for that file.
func (s *Store) Add(sess Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, name, file, started_at, events, duration_ms, capture_context)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file) DO UPDATE SET
			id = excluded.id,
			name = excluded.name,
			started_at = excluded.started_at,
			events = excluded.events,
			duration_ms = excluded.duration_ms,
			capture_context = excluded.capture_context`,
		sess.ID, sess.Name, sess.File, sess.StartedAt.UTC(), sess.Events,
		sess.Duration.Milliseconds(), sess.CaptureContext)
	if err != nil {
		return fmt.Errorf("catalog session: %w", err)
	}
	return nil
}

// List returns cataloged sessions newest first, then any .jsonl files
// in the sessions directory the catalog does not know about.
func (s *Store) List() ([]Session, error) {
	rows, err := s.db.Query(`SELECT id, name, file, started_at, events, duration_ms, capture_context
		FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	known := make(map[string]bool)
	for rows.Next() {
		var sess Session
		var durationMS int64
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.File, &sess.StartedAt,
			&sess.Events, &durationMS, &sess.CaptureContext); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Duration = time.Duration(durationMS) * time.Millisecond
		sessions = append(sessions, sess)
		known[sess.File] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, "sessions"))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("scan sessions dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".jsonl" {
			continue
		}
		path := filepath.Join(s.dir, "sessions", entry.Name())
		if known[path] {
			continue
		}
		sess := Session{
			Name: strings.TrimSuffix(entry.Name(), ".jsonl"),
			File: path,
		}
		if info, err := entry.Info(); err == nil {
			sess.StartedAt = info.ModTime()
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// Resolve maps a session name or a literal path to a log file.
func (s *Store) Resolve(ref string) (string, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		return ref, nil
	}
	path := s.LogPath(strings.TrimSuffix(ref, ".jsonl"))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// Delete removes a session's log file and its catalog row.
func (s *Store) Delete(ref string) error {
	path, err := s.Resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	if _, err := s.db.Exec("DELETE FROM sessions WHERE file = ?", path); err != nil {
		return fmt.Errorf("uncatalog %s: %w", path, err)
	}
	return nil
}
