package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// MemoryRepo implements store.MemoryRepository over the embedded store.
// Memories are append-only; there is no Update. Vector search is not
// available on this backend.
type MemoryRepo struct {
	s *Store
}

// Create inserts a memory entry. The embedding, if present, is carried
// as an opaque JSON array so a later migration to the document store
// does not need to recompute it.
func (r *MemoryRepo) Create(ctx context.Context, m *store.Memory) (*store.Memory, error) {
	stored := *m
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.CreatedAt = parseTime(fmtTime(stored.CreatedAt))

	if _, err := r.s.Exec(ctx, `
		INSERT INTO memories (id, project_id, session_id, task_id, content, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.ProjectID, stored.SessionID, stored.TaskID, stored.Content,
		encodeVector(stored.Embedding), fmtTime(stored.CreatedAt)); err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return &stored, nil
}

// Get retrieves a memory entry by ID.
func (r *MemoryRepo) Get(ctx context.Context, id string) (*store.Memory, error) {
	var m store.Memory
	var embedding, createdAt string
	err := r.s.QueryRow(ctx, `
		SELECT id, project_id, session_id, task_id, content, embedding, created_at
		FROM memories WHERE id = ?
	`, id).Scan(&m.ID, &m.ProjectID, &m.SessionID, &m.TaskID, &m.Content, &embedding, &createdAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound("memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	m.Embedding = decodeVector(embedding)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// List pages through a project's memories ordered by (created_at, id).
func (r *MemoryRepo) List(ctx context.Context, projectID string, opts store.ListOptions) (*store.Page[*store.Memory], error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	query := `
		SELECT id, project_id, session_id, task_id, content, embedding, created_at
		FROM memories WHERE project_id = ?`
	args := []any{projectID}
	if opts.Cursor != "" {
		cur, err := store.DecodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		query += " AND ((created_at > ?) OR (created_at = ? AND id > ?))"
		at := fmtTime(cur.CreatedAt)
		args = append(args, at, at, cur.ID)
	}
	query += " ORDER BY created_at, id LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*store.Memory
	for rows.Next() {
		var m store.Memory
		var embedding, createdAt string
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.SessionID, &m.TaskID, &m.Content, &embedding, &createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		m.Embedding = decodeVector(embedding)
		m.CreatedAt = parseTime(createdAt)
		items = append(items, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memories: %w", err)
	}

	page := &store.Page[*store.Memory]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Delete removes a memory entry.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.Exec(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	if n == 0 {
		return errs.ErrNotFound("memory", id)
	}
	return nil
}

// Search is unsupported on the relational backend. Callers branch on
// Repositories.SupportsVectorSearch before reaching for similarity
// search, or treat this signal as an empty result.
func (r *MemoryRepo) Search(ctx context.Context, projectID, query string, topK int, minScore float64) ([]store.Match, error) {
	return nil, errs.ErrCapabilityUnsupported("vector search", "local")
}
