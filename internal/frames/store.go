// Package frames implements LexMap's temporal memory: timestamped
// work-session snapshots ("frames") persisted in SQLite with FTS5 search.
//
// A frame records which modules a session touched and why. The atlas core
// never imports this package's storage directly — it receives frames
// through an injected fetch callback wired by the composition root.
package frames

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Types ───────────────────────────────────────────────────────────────────

// Session represents a coding session with start/end timestamps.
type Session struct {
	ID        string  `json:"id"`
	Project   string  `json:"project"`
	Directory string  `json:"directory"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
	Summary   *string `json:"summary,omitempty"`
}

// Frame is one temporal memory entry: what a slice of work touched and why
// it happened.
type Frame struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Reason    string   `json:"reason,omitempty"`
	Modules   []string `json:"modules,omitempty"`
	Project   string   `json:"project,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	DeletedAt *string  `json:"deleted_at,omitempty"`
}

// SearchResult embeds a Frame with its FTS5 rank score.
type SearchResult struct {
	Frame
	Rank float64 `json:"rank"`
}

// SearchOptions holds filters for FTS5 search queries.
type SearchOptions struct {
	Project string `json:"project,omitempty"`
	Module  string `json:"module,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// AddFrameParams holds the input for recording a new frame. ID and
// SessionID are generated when empty.
type AddFrameParams struct {
	ID        string   `json:"id,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Reason    string   `json:"reason,omitempty"`
	Modules   []string `json:"modules,omitempty"`
	Project   string   `json:"project,omitempty"`
}

// Stats holds aggregate frame-store statistics.
type Stats struct {
	TotalSessions int      `json:"total_sessions"`
	TotalFrames   int      `json:"total_frames"`
	Projects      []string `json:"projects"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds frame store configuration.
type Config struct {
	DataDir          string
	MaxSummaryLength int
	MaxSearchResults int
}

// DefaultConfig returns the default configuration for the frame store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".lexmap"),
		MaxSummaryLength: 2000,
		MaxSearchResults: 20,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent frame store backed by SQLite + FTS5.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a new Store with the given configuration. It creates the data
// directory if needed, opens SQLite with WAL mode, and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("frames: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "frames.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("frames: open database: %w", err)
	}

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("frames: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("frames: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			project    TEXT NOT NULL,
			directory  TEXT NOT NULL,
			started_at TEXT NOT NULL DEFAULT (datetime('now')),
			ended_at   TEXT,
			summary    TEXT
		);

		CREATE TABLE IF NOT EXISTS frames (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			title      TEXT NOT NULL,
			summary    TEXT NOT NULL,
			reason     TEXT,
			modules    TEXT NOT NULL DEFAULT '[]',
			project    TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			deleted_at TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_frames_session ON frames(session_id);
		CREATE INDEX IF NOT EXISTS idx_frames_project ON frames(project);
		CREATE INDEX IF NOT EXISTS idx_frames_created ON frames(created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_frames_deleted ON frames(deleted_at);

		CREATE VIRTUAL TABLE IF NOT EXISTS frames_fts USING fts5(
			title,
			summary,
			reason,
			modules,
			project,
			content='frames',
			content_rowid='rowid'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS triggers (idempotent)
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='frames_fts_insert'",
	).Scan(&name)

	if err == sql.ErrNoRows {
		triggers := `
			CREATE TRIGGER frames_fts_insert AFTER INSERT ON frames BEGIN
				INSERT INTO frames_fts(rowid, title, summary, reason, modules, project)
				VALUES (new.rowid, new.title, new.summary, new.reason, new.modules, new.project);
			END;

			CREATE TRIGGER frames_fts_delete AFTER DELETE ON frames BEGIN
				INSERT INTO frames_fts(frames_fts, rowid, title, summary, reason, modules, project)
				VALUES ('delete', old.rowid, old.title, old.summary, old.reason, old.modules, old.project);
			END;

			CREATE TRIGGER frames_fts_update AFTER UPDATE ON frames BEGIN
				INSERT INTO frames_fts(frames_fts, rowid, title, summary, reason, modules, project)
				VALUES ('delete', old.rowid, old.title, old.summary, old.reason, old.modules, old.project);
				INSERT INTO frames_fts(rowid, title, summary, reason, modules, project)
				VALUES (new.rowid, new.title, new.summary, new.reason, new.modules, new.project);
			END;
		`
		if _, err := s.db.Exec(triggers); err != nil {
			return err
		}
	} else if err != nil && err != sql.ErrNoRows {
		return err
	}

	return nil
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// CreateSession registers a new coding session. An empty id gets a
// generated UUID; the id actually stored is returned.
func (s *Store) CreateSession(id, project, directory string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, project, directory) VALUES (?, ?, ?)`,
		id, project, directory,
	)
	return id, err
}

// EndSession marks a session as completed with an optional summary.
func (s *Store) EndSession(id string, summary string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = datetime('now'), summary = ? WHERE id = ?`,
		nullableString(summary), id,
	)
	return err
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, project, directory, started_at, ended_at, summary FROM sessions WHERE id = ?`, id,
	)
	var sess Session
	if err := row.Scan(&sess.ID, &sess.Project, &sess.Directory, &sess.StartedAt, &sess.EndedAt, &sess.Summary); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ─── Frames ──────────────────────────────────────────────────────────────────

// AddFrame records a new frame and returns its ID. The summary is truncated
// to the configured maximum; module IDs are normalized and deduplicated.
func (s *Store) AddFrame(p AddFrameParams) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	sessionID := p.SessionID
	if sessionID == "" {
		var err error
		if sessionID, err = s.CreateSession("", p.Project, ""); err != nil {
			return "", fmt.Errorf("frames: create session: %w", err)
		}
	}

	summary := p.Summary
	if len(summary) > s.cfg.MaxSummaryLength {
		summary = summary[:s.cfg.MaxSummaryLength] + "... [truncated]"
	}

	modules, err := encodeModules(p.Modules)
	if err != nil {
		return "", fmt.Errorf("frames: encode modules: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO frames (id, session_id, title, summary, reason, modules, project)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, p.Title, summary, nullableString(p.Reason), modules, nullableString(p.Project),
	)
	if err != nil {
		return "", fmt.Errorf("frames: insert frame: %w", err)
	}
	return id, nil
}

// GetFrame retrieves a single frame by ID (excludes soft-deleted).
func (s *Store) GetFrame(id string) (*Frame, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, title, summary, ifnull(reason, ''), modules, ifnull(project, ''),
		        created_at, updated_at, deleted_at
		 FROM frames WHERE id = ? AND deleted_at IS NULL`, id,
	)
	f, err := scanFrame(row.Scan)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// RecentFrames returns recent frames filtered by project.
func (s *Store) RecentFrames(project string, limit int) ([]Frame, error) {
	if limit <= 0 {
		limit = s.cfg.MaxSearchResults
	}

	query := `
		SELECT id, session_id, title, summary, ifnull(reason, ''), modules, ifnull(project, ''),
		       created_at, updated_at, deleted_at
		FROM frames
		WHERE deleted_at IS NULL
	`
	args := []any{}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	return s.queryFrames(query, args...)
}

// FetchAll returns every non-deleted frame, oldest first. This is the
// injected frame source the atlas rebuild coordinators consume.
func (s *Store) FetchAll() ([]Frame, error) {
	return s.queryFrames(`
		SELECT id, session_id, title, summary, ifnull(reason, ''), modules, ifnull(project, ''),
		       created_at, updated_at, deleted_at
		FROM frames
		WHERE deleted_at IS NULL
		ORDER BY created_at ASC, id ASC
	`)
}

// DeleteFrame soft-deletes (or hard-deletes) a frame by ID.
func (s *Store) DeleteFrame(id string, hardDelete bool) error {
	if hardDelete {
		_, err := s.db.Exec(`DELETE FROM frames WHERE id = ?`, id)
		return err
	}
	_, err := s.db.Exec(
		`UPDATE frames
		 SET deleted_at = datetime('now'),
		     updated_at = datetime('now')
		 WHERE id = ? AND deleted_at IS NULL`,
		id,
	)
	return err
}

// ─── Search (FTS5) ───────────────────────────────────────────────────────────

// Search performs full-text search across frames with filters. An empty or
// whitespace-only query falls back to recent frames (no FTS).
func (s *Store) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return s.searchRecent(opts, limit)
	}

	sqlStr := `
		SELECT f.id, f.session_id, f.title, f.summary, ifnull(f.reason, ''), f.modules, ifnull(f.project, ''),
		       f.created_at, f.updated_at, f.deleted_at,
		       fts.rank
		FROM frames_fts fts
		JOIN frames f ON f.rowid = fts.rowid
		WHERE frames_fts MATCH ? AND f.deleted_at IS NULL
	`
	args := []any{ftsQuery}

	if opts.Project != "" {
		sqlStr += " AND f.project = ?"
		args = append(args, opts.Project)
	}
	if opts.Module != "" {
		sqlStr += " AND f.modules LIKE ?"
		args = append(args, "%"+quoteJSON(opts.Module)+"%")
	}

	sqlStr += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("frames: search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		f, err := scanFrameWithRank(rows.Scan, &sr.Rank)
		if err != nil {
			return nil, err
		}
		sr.Frame = *f
		results = append(results, sr)
	}
	return results, rows.Err()
}

// searchRecent returns the most recent frames without FTS, used as fallback
// when the query is empty or whitespace-only.
func (s *Store) searchRecent(opts SearchOptions, limit int) ([]SearchResult, error) {
	sqlStr := `
		SELECT id, session_id, title, summary, ifnull(reason, ''), modules, ifnull(project, ''),
		       created_at, updated_at, deleted_at,
		       0 AS rank
		FROM frames
		WHERE deleted_at IS NULL
	`
	var args []any

	if opts.Project != "" {
		sqlStr += " AND project = ?"
		args = append(args, opts.Project)
	}
	if opts.Module != "" {
		sqlStr += " AND modules LIKE ?"
		args = append(args, "%"+quoteJSON(opts.Module)+"%")
	}

	sqlStr += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("frames: search recent: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var sr SearchResult
		f, err := scanFrameWithRank(rows.Scan, &sr.Rank)
		if err != nil {
			return nil, err
		}
		sr.Frame = *f
		results = append(results, sr)
	}
	return results, rows.Err()
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats returns aggregate frame-store statistics.
func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{}

	_ = s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.TotalSessions)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM frames WHERE deleted_at IS NULL").Scan(&stats.TotalFrames)

	rows, err := s.db.Query(
		"SELECT project FROM frames WHERE project IS NOT NULL AND deleted_at IS NULL GROUP BY project ORDER BY MAX(created_at) DESC",
	)
	if err != nil {
		return stats, nil
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err == nil {
			stats.Projects = append(stats.Projects, p)
		}
	}

	return stats, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Store) queryFrames(query string, args ...any) ([]Frame, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []Frame
	for rows.Next() {
		f, err := scanFrame(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, *f)
	}
	return results, rows.Err()
}

// scanFrame reads one frame row in the canonical column order.
func scanFrame(scan func(dest ...any) error) (*Frame, error) {
	var f Frame
	var modules string
	if err := scan(
		&f.ID, &f.SessionID, &f.Title, &f.Summary, &f.Reason, &modules, &f.Project,
		&f.CreatedAt, &f.UpdatedAt, &f.DeletedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(modules), &f.Modules); err != nil {
		return nil, fmt.Errorf("frames: decode modules for %s: %w", f.ID, err)
	}
	return &f, nil
}

// scanFrameWithRank reads a frame row followed by an FTS rank column.
func scanFrameWithRank(scan func(dest ...any) error, rank *float64) (*Frame, error) {
	var f Frame
	var modules string
	if err := scan(
		&f.ID, &f.SessionID, &f.Title, &f.Summary, &f.Reason, &modules, &f.Project,
		&f.CreatedAt, &f.UpdatedAt, &f.DeletedAt,
		rank,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(modules), &f.Modules); err != nil {
		return nil, fmt.Errorf("frames: decode modules for %s: %w", f.ID, err)
	}
	return &f, nil
}

// encodeModules normalizes, dedupes, and JSON-encodes a module list for the
// modules column.
func encodeModules(modules []string) (string, error) {
	seen := make(map[string]bool, len(modules))
	cleaned := make([]string, 0, len(modules))
	for _, m := range modules {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		cleaned = append(cleaned, m)
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// quoteJSON wraps a module ID the way it appears inside the JSON-encoded
// modules column, for LIKE matching.
func quoteJSON(module string) string {
	return `"` + module + `"`
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Truncate shortens a string to max length with ellipsis.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.Trim(w, `"`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
