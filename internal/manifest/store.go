// Package manifest persists the names of provisioned resource chains so
// teardown and status can find them again.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	cerrors "github.com/Aman-CERP/corpusctl/internal/errors"
	"github.com/Aman-CERP/corpusctl/internal/provision"
	"github.com/Aman-CERP/corpusctl/internal/schema"
)

// Record is a stored manifest and the last known outcome of its indexer.
type Record struct {
	provision.Manifest
	// JobStatus is empty until a job outcome is saved.
	JobStatus string    `json:"job_status,omitempty"`
	JobError  string    `json:"job_error,omitempty"`
	Polls     int       `json:"polls"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a SQLite-backed manifest store.
type Store struct {
	db *sql.DB
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS manifests (
	prefix          TEXT NOT NULL,
	variant         TEXT NOT NULL,
	index_name      TEXT NOT NULL,
	datasource      TEXT NOT NULL,
	skillset        TEXT NOT NULL DEFAULT '',
	indexer         TEXT NOT NULL,
	container       TEXT NOT NULL DEFAULT '',
	image_container TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	job_status      TEXT NOT NULL DEFAULT '',
	job_error       TEXT NOT NULL DEFAULT '',
	polls           INTEGER NOT NULL DEFAULT 0,
	updated_at      TEXT NOT NULL,
	PRIMARY KEY (prefix, variant)
);
`

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storeError("create state directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storeError("open manifest store", err)
	}
	// A single connection serializes writers across goroutines.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, storeError("configure manifest store", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, storeError("create manifest schema", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save records m, replacing any previous manifest for the same chain.
// job may be nil when the indexer never ran.
func (s *Store) Save(ctx context.Context, m provision.Manifest, job *provision.JobResult) error {
	var status, jobErr string
	var polls int
	if job != nil {
		status = job.Status.String()
		jobErr = job.Detail.ErrorMessage
		polls = job.Polls
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manifests (prefix, variant, index_name, datasource, skillset, indexer,
			container, image_container, created_at, job_status, job_error, polls, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(prefix, variant) DO UPDATE SET
			index_name = excluded.index_name,
			datasource = excluded.datasource,
			skillset = excluded.skillset,
			indexer = excluded.indexer,
			container = excluded.container,
			image_container = excluded.image_container,
			created_at = excluded.created_at,
			job_status = excluded.job_status,
			job_error = excluded.job_error,
			polls = excluded.polls,
			updated_at = excluded.updated_at
	`, m.Prefix, string(m.Variant), m.Index, m.DataSource, m.Skillset, m.Indexer,
		m.Container, m.ImageContainer, formatTime(created), status, jobErr, polls, formatTime(time.Now()))
	if err != nil {
		return storeError(fmt.Sprintf("save manifest %s/%s", m.Prefix, m.Variant), err)
	}
	return nil
}

// UpdateJob records a new job outcome for an existing manifest.
func (s *Store) UpdateJob(ctx context.Context, prefix string, variant schema.Variant, job provision.JobResult) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE manifests SET job_status = ?, job_error = ?, polls = ?, updated_at = ?
		WHERE prefix = ? AND variant = ?
	`, job.Status.String(), job.Detail.ErrorMessage, job.Polls, formatTime(time.Now()), prefix, string(variant))
	if err != nil {
		return storeError("update job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(prefix, variant)
	}
	return nil
}

const selectColumns = `prefix, variant, index_name, datasource, skillset, indexer,
	container, image_container, created_at, job_status, job_error, polls, updated_at`

// Get returns the manifest for prefix and variant.
func (s *Store) Get(ctx context.Context, prefix string, variant schema.Variant) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM manifests WHERE prefix = ? AND variant = ?`,
		prefix, string(variant))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, notFound(prefix, variant)
	}
	if err != nil {
		return Record{}, storeError("read manifest", err)
	}
	return rec, nil
}

// List returns every manifest ordered by prefix, document chain first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM manifests ORDER BY prefix, variant = 'chunk', variant`)
	if err != nil {
		return nil, storeError("list manifests", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeError("scan manifest", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("list manifests", err)
	}
	return out, nil
}

// Delete removes the manifest. Deleting a missing manifest is not an error.
func (s *Store) Delete(ctx context.Context, prefix string, variant schema.Variant) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM manifests WHERE prefix = ? AND variant = ?`, prefix, string(variant)); err != nil {
		return storeError("delete manifest", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var rec Record
	var variant, created, updated string
	if err := sc.Scan(&rec.Prefix, &variant, &rec.Index, &rec.DataSource, &rec.Skillset, &rec.Indexer,
		&rec.Container, &rec.ImageContainer, &created, &rec.JobStatus, &rec.JobError,
		&rec.Polls, &updated); err != nil {
		return Record{}, err
	}
	rec.Variant = schema.Variant(variant)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func notFound(prefix string, variant schema.Variant) error {
	return cerrors.NotFoundError(fmt.Sprintf("no manifest for %s (%s)", prefix, variant), nil).
		WithSuggestion("Run 'corpusctl list' to see provisioned prefixes")
}

func storeError(op string, err error) error {
	return cerrors.New(cerrors.ErrCodeStoreFailed, op, err)
}
