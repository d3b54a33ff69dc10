// Package artifacts persists manual-artifact descriptors so a fallback
// produced during one session can still be completed by a human later.
//
// The executor only builds descriptors; durable storage is the tool
// layer's duty, and this SQLite store is how the tool layer does it.
package artifacts

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"snowgate/internal/ops"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Config holds artifact store configuration.
type Config struct {
	DataDir string
}

// DefaultConfig stores the database under ~/.snowgate.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{DataDir: filepath.Join(home, ".snowgate")}
}

// Store is the SQLite-backed artifact store.
type Store struct {
	db *sql.DB
}

// New creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("artifacts: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "artifacts.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("artifacts: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("artifacts: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS artifacts (
			id         TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			instance   TEXT NOT NULL,
			descriptor TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_instance
			ON artifacts(instance, created_at);`
	_, err := s.db.Exec(schema)
	return err
}

// Save persists one descriptor. The full descriptor rides as JSON in a
// single column; kind and instance are broken out for listing.
func (s *Store) Save(a *ops.ManualArtifact) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("artifacts: encode descriptor: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO artifacts (id, kind, instance, descriptor, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Instance, string(payload), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("artifacts: save %s: %w", a.ID, err)
	}
	return nil
}

// Get returns one descriptor by ID, or nil when absent.
func (s *Store) Get(id string) (*ops.ManualArtifact, error) {
	var payload string
	err := s.db.QueryRow(`SELECT descriptor FROM artifacts WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: get %s: %w", id, err)
	}
	var a ops.ManualArtifact
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return nil, fmt.Errorf("artifacts: decode %s: %w", id, err)
	}
	return &a, nil
}

// List returns descriptors newest first, optionally filtered by instance.
func (s *Store) List(instanceName string, limit int) ([]*ops.ManualArtifact, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT descriptor FROM artifacts`
	args := []any{}
	if instanceName != "" {
		q += ` WHERE instance = ?`
		args = append(args, instanceName)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*ops.ManualArtifact
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("artifacts: scan: %w", err)
		}
		var a ops.ManualArtifact
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("artifacts: decode: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// RenderYAML formats a descriptor as YAML — the shape handed to humans in
// tool responses, with the completion procedure readable as a checklist.
func RenderYAML(a *ops.ManualArtifact) (string, error) {
	out, err := yaml.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("artifacts: render %s: %w", a.ID, err)
	}
	return string(out), nil
}
