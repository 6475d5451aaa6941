// Package store provides SQLite persistence for finished verification runs.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/abelbrown/refcheck/internal/event"
	"github.com/abelbrown/refcheck/internal/viewmodel"
)

var (
	// ErrNotFound means no run matches the requested ID.
	ErrNotFound = errors.New("run not found")
	// ErrAmbiguous means an ID prefix matches more than one run.
	ErrAmbiguous = errors.New("run id prefix is ambiguous")
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Run is a finished run as saved to history.
type Run struct {
	ID         string             `json:"id"`
	FileName   string             `json:"file_name"`
	Model      string             `json:"model"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Bytes      int64              `json:"bytes"`
	Dropped    int                `json:"dropped_frames"`
	Snapshot   viewmodel.Snapshot `json:"report"`
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	ID           string          `json:"id"`
	FileName     string          `json:"file_name"`
	Model        string          `json:"model"`
	Phase        viewmodel.Phase `json:"phase"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Bytes        int64           `json:"bytes"`
	References   int             `json:"references"`
	Summary      *event.Summary  `json:"summary,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database.
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		file_name TEXT NOT NULL,
		model TEXT NOT NULL,
		phase TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		bytes INTEGER NOT NULL DEFAULT 0,
		dropped INTEGER NOT NULL DEFAULT 0,
		events INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		summary_json TEXT,
		metadata_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS run_references (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		raw_text TEXT NOT NULL,
		status TEXT NOT NULL,
		authors_json TEXT,
		year INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		verified_doi TEXT NOT NULL DEFAULT '',
		verification_score REAL NOT NULL DEFAULT 0,
		format_suggestion TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS run_log (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		line TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveRun writes a run and its rows, replacing any earlier save of the same ID.
func (s *Store) SaveRun(run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, err := nullableJSON(run.Snapshot.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	metadataJSON, err := nullableJSON(run.Snapshot.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	// Children cascade on delete.
	if _, err := tx.Exec("DELETE FROM runs WHERE id = ?", run.ID); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}

	snap := run.Snapshot
	_, err = tx.Exec(`
		INSERT INTO runs (
			id, file_name, model, phase, started_at, finished_at,
			bytes, dropped, events, error_message, summary_json, metadata_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.FileName, run.Model, snap.Phase.String(),
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Bytes, run.Dropped, snap.Events, snap.ErrorMessage,
		summaryJSON, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	refStmt, err := tx.Prepare(`
		INSERT INTO run_references (
			run_id, seq, raw_text, status, authors_json, year, title, source,
			verified_doi, verification_score, format_suggestion, source_url
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer refStmt.Close()

	for i, r := range snap.References {
		authors, err := nullableJSON(r.Authors)
		if err != nil {
			return fmt.Errorf("encode authors: %w", err)
		}
		if _, err := refStmt.Exec(
			run.ID, i, r.RawText, string(r.Status), authors, r.Year, r.Title, r.Source,
			r.VerifiedDOI, r.VerificationScore, r.FormatSuggestion, r.SourceURL,
		); err != nil {
			return fmt.Errorf("insert reference %d: %w", i, err)
		}
	}

	logStmt, err := tx.Prepare("INSERT INTO run_log (run_id, seq, line) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer logStmt.Close()

	for i, line := range snap.Log {
		if _, err := logStmt.Exec(run.ID, i, line); err != nil {
			return fmt.Errorf("insert log line %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT r.id, r.file_name, r.model, r.phase, r.started_at, r.finished_at,
			r.bytes, r.error_message, r.summary_json,
			(SELECT COUNT(*) FROM run_references rr WHERE rr.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		var phase string
		var summaryJSON sql.NullString
		if err := rows.Scan(
			&rs.ID, &rs.FileName, &rs.Model, &phase, &rs.StartedAt, &rs.FinishedAt,
			&rs.Bytes, &rs.ErrorMessage, &summaryJSON, &rs.References,
		); err != nil {
			return nil, err
		}
		if rs.Phase, err = viewmodel.ParsePhase(phase); err != nil {
			return nil, err
		}
		if rs.Summary, err = decodeSummary(summaryJSON); err != nil {
			return nil, err
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// GetRun loads a run by full ID or unique ID prefix.
func (s *Store) GetRun(idOrPrefix string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.resolveID(idOrPrefix)
	if err != nil {
		return nil, err
	}

	run := &Run{ID: id}
	var phase string
	var summaryJSON, metadataJSON sql.NullString
	err = s.db.QueryRow(`
		SELECT file_name, model, phase, started_at, finished_at, bytes, dropped,
			events, error_message, summary_json, metadata_json
		FROM runs WHERE id = ?
	`, id).Scan(
		&run.FileName, &run.Model, &phase, &run.StartedAt, &run.FinishedAt,
		&run.Bytes, &run.Dropped, &run.Snapshot.Events, &run.Snapshot.ErrorMessage,
		&summaryJSON, &metadataJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	snap := &run.Snapshot
	if snap.Phase, err = viewmodel.ParsePhase(phase); err != nil {
		return nil, err
	}
	if snap.Summary, err = decodeSummary(summaryJSON); err != nil {
		return nil, err
	}
	if metadataJSON.Valid {
		var md event.Metadata
		if err := json.Unmarshal([]byte(metadataJSON.String), &md); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		snap.Metadata = &md
	}

	if snap.References, err = s.references(id); err != nil {
		return nil, err
	}
	if snap.Log, err = s.logLines(id); err != nil {
		return nil, err
	}
	return run, nil
}

// RunCount returns the number of saved runs.
func (s *Store) RunCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&n)
	return n, err
}

// resolveID expands a unique prefix to a full ID.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) resolveID(idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", ErrNotFound
	}
	rows, err := s.db.Query("SELECT id FROM runs WHERE id = ? OR substr(id, 1, ?) = ? LIMIT 2",
		idOrPrefix, len(idOrPrefix), idOrPrefix)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", err
		}
		if id == idOrPrefix {
			return id, nil
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", ErrAmbiguous
	}
}

// references loads a run's rows in arrival order.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) references(runID string) ([]event.Reference, error) {
	rows, err := s.db.Query(`
		SELECT raw_text, status, authors_json, year, title, source,
			verified_doi, verification_score, format_suggestion, source_url
		FROM run_references WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []event.Reference{}
	for rows.Next() {
		var r event.Reference
		var status string
		var authors sql.NullString
		if err := rows.Scan(
			&r.RawText, &status, &authors, &r.Year, &r.Title, &r.Source,
			&r.VerifiedDOI, &r.VerificationScore, &r.FormatSuggestion, &r.SourceURL,
		); err != nil {
			return nil, err
		}
		r.Status = event.ReferenceStatus(status)
		if authors.Valid {
			if err := json.Unmarshal([]byte(authors.String), &r.Authors); err != nil {
				return nil, fmt.Errorf("decode authors: %w", err)
			}
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// logLines loads a run's log in order.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) logLines(runID string) ([]string, error) {
	rows, err := s.db.Query("SELECT line FROM run_log WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := []string{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// nullableJSON encodes v, mapping nil pointers and nil slices to SQL NULL.
func nullableJSON[T any](v T) (sql.NullString, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSummary(ns sql.NullString) (*event.Summary, error) {
	if !ns.Valid {
		return nil, nil
	}
	var sum event.Summary
	if err := json.Unmarshal([]byte(ns.String), &sum); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &sum, nil
}
