package project

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kandev/agentflow/internal/common/apperr"
)

// MetadataRow is the durable record kept by the optional metadata index —
// never the in-flight turn state, which stays non-durable (§1 Non-goals).
type MetadataRow struct {
	WorkflowID string
	Name       string
	Task       string
	BasePath   string
	CreatedAt  time.Time
}

// Repository is the metadata-index interface with two selectable backends,
// grounded on the teacher's task repository pattern.
type Repository interface {
	Put(ctx context.Context, row MetadataRow) error
	Get(ctx context.Context, workflowID string) (MetadataRow, error)
	List(ctx context.Context) ([]MetadataRow, error)
	Close() error
}

// MemoryRepository is the default metadata-index backend.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]MetadataRow
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory metadata index.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]MetadataRow)}
}

func (r *MemoryRepository) Put(_ context.Context, row MetadataRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[row.WorkflowID] = row
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, workflowID string) (MetadataRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[workflowID]
	if !ok {
		return MetadataRow{}, apperr.NotFound("project", workflowID)
	}
	return row, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]MetadataRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MetadataRow, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}

func (r *MemoryRepository) Close() error { return nil }

// SQLiteRepository persists metadata rows so they survive process restarts.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (and migrates) a SQLite-backed metadata index at path.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, apperr.InternalError("failed to open sqlite metadata index", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS project_metadata (
	workflow_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	task        TEXT NOT NULL,
	base_path   TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperr.InternalError("failed to migrate sqlite metadata index", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, row MetadataRow) error {
	const q = `
INSERT INTO project_metadata (workflow_id, name, task, base_path, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(workflow_id) DO UPDATE SET name=excluded.name, task=excluded.task, base_path=excluded.base_path;`
	if _, err := r.db.ExecContext(ctx, q, row.WorkflowID, row.Name, row.Task, row.BasePath, row.CreatedAt); err != nil {
		return apperr.InternalError("failed to write project metadata row", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, workflowID string) (MetadataRow, error) {
	const q = `SELECT workflow_id, name, task, base_path, created_at FROM project_metadata WHERE workflow_id = ?`
	var row MetadataRow
	err := r.db.QueryRowContext(ctx, q, workflowID).Scan(&row.WorkflowID, &row.Name, &row.Task, &row.BasePath, &row.CreatedAt)
	if err == sql.ErrNoRows {
		return MetadataRow{}, apperr.NotFound("project", workflowID)
	}
	if err != nil {
		return MetadataRow{}, apperr.InternalError("failed to read project metadata row", err)
	}
	return row, nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]MetadataRow, error) {
	const q = `SELECT workflow_id, name, task, base_path, created_at FROM project_metadata`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, apperr.InternalError("failed to list project metadata", err)
	}
	defer rows.Close()

	var out []MetadataRow
	for rows.Next() {
		var row MetadataRow
		if err := rows.Scan(&row.WorkflowID, &row.Name, &row.Task, &row.BasePath, &row.CreatedAt); err != nil {
			return nil, apperr.InternalError("failed to scan project metadata row", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
