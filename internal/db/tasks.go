package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// TaskRepo implements store.TaskRepository over the embedded store.
type TaskRepo struct {
	s *Store
}

// Create inserts a task. Status defaults to todo; history rows start
// with the first transition, not creation.
func (r *TaskRepo) Create(ctx context.Context, t *store.Task) (*store.Task, error) {
	stored := *t
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = store.StatusTodo
	}
	if !store.ValidTaskStatus(stored.Status) {
		return nil, errs.ErrConfigInvalid("status", fmt.Sprintf("unknown task status %q", stored.Status))
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.CreatedAt = parseTime(fmtTime(stored.CreatedAt))
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	stored.UpdatedAt = parseTime(fmtTime(stored.UpdatedAt))

	if _, err := r.s.Exec(ctx, `
		INSERT INTO tasks (id, project_id, status, title, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.ProjectID, string(stored.Status), stored.Title, stored.Description,
		fmtTime(stored.CreatedAt), fmtTime(stored.UpdatedAt)); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &stored, nil
}

// Get retrieves a task by ID.
func (r *TaskRepo) Get(ctx context.Context, id string) (*store.Task, error) {
	var t store.Task
	var status, createdAt, updatedAt string
	err := r.s.QueryRow(ctx, `
		SELECT id, project_id, status, title, description, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id).Scan(&t.ID, &t.ProjectID, &status, &t.Title, &t.Description, &createdAt, &updatedAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	t.Status = store.TaskStatus(status)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// List pages through a project's tasks ordered by (created_at, id).
func (r *TaskRepo) List(ctx context.Context, projectID string, opts store.ListOptions) (*store.Page[*store.Task], error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	query := `
		SELECT id, project_id, status, title, description, created_at, updated_at
		FROM tasks WHERE project_id = ?`
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
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*store.Task
	for rows.Next() {
		var t store.Task
		var status, createdAt, updatedAt string
		if err := rows.Scan(&t.ID, &t.ProjectID, &status, &t.Title, &t.Description, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Status = store.TaskStatus(status)
		t.CreatedAt = parseTime(createdAt)
		t.UpdatedAt = parseTime(updatedAt)
		items = append(items, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	page := &store.Page[*store.Task]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Update applies a partial update. A status change appends the history
// row in the same transaction, so a failure leaves no partial trail.
func (r *TaskRepo) Update(ctx context.Context, id string, patch store.TaskPatch) (*store.Task, error) {
	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prior := t.Status
	if patch.Status != nil {
		if !store.ValidTaskStatus(*patch.Status) {
			return nil, errs.ErrConfigInvalid("status", fmt.Sprintf("unknown task status %q", *patch.Status))
		}
		t.Status = *patch.Status
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	t.UpdatedAt = parseTime(fmtTime(time.Now()))

	err = r.s.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := tx.Exec(`
			UPDATE tasks SET status = ?, title = ?, description = ?, updated_at = ?
			WHERE id = ?
		`, string(t.Status), t.Title, t.Description, fmtTime(t.UpdatedAt), id); err != nil {
			return fmt.Errorf("update task %s: %w", id, err)
		}
		if patch.Status != nil && *patch.Status != prior {
			if _, err := tx.Exec(`
				INSERT INTO task_history (id, task_id, project_id, from_status, to_status, actor, changed_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), id, t.ProjectID, string(prior), string(t.Status),
				patch.Actor, fmtTime(t.UpdatedAt)); err != nil {
				return fmt.Errorf("append task history: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a task and its history.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.Exec(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if n == 0 {
		return errs.ErrNotFound("task", id)
	}
	return nil
}

// TaskHistoryRepo implements store.TaskHistoryRepository. Rows are
// immutable once written; there is no update or single-row delete.
type TaskHistoryRepo struct {
	s *Store
}

// Append writes one history row.
func (r *TaskHistoryRepo) Append(ctx context.Context, h *store.TaskHistory) (*store.TaskHistory, error) {
	stored := *h
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.ChangedAt.IsZero() {
		stored.ChangedAt = time.Now()
	}
	stored.ChangedAt = parseTime(fmtTime(stored.ChangedAt))

	if _, err := r.s.Exec(ctx, `
		INSERT INTO task_history (id, task_id, project_id, from_status, to_status, actor, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.TaskID, stored.ProjectID, string(stored.FromStatus), string(stored.ToStatus),
		stored.Actor, fmtTime(stored.ChangedAt)); err != nil {
		return nil, fmt.Errorf("insert task history: %w", err)
	}
	return &stored, nil
}

// Get retrieves one history row by ID.
func (r *TaskHistoryRepo) Get(ctx context.Context, id string) (*store.TaskHistory, error) {
	var h store.TaskHistory
	var from, to, changedAt string
	err := r.s.QueryRow(ctx, `
		SELECT id, task_id, project_id, from_status, to_status, actor, changed_at
		FROM task_history WHERE id = ?
	`, id).Scan(&h.ID, &h.TaskID, &h.ProjectID, &from, &to, &h.Actor, &changedAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound("task history", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task history %s: %w", id, err)
	}
	h.FromStatus = store.TaskStatus(from)
	h.ToStatus = store.TaskStatus(to)
	h.ChangedAt = parseTime(changedAt)
	return &h, nil
}

// List pages through a project's history ordered by (changed_at, id).
func (r *TaskHistoryRepo) List(ctx context.Context, projectID string, opts store.ListOptions) (*store.Page[*store.TaskHistory], error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	query := `
		SELECT id, task_id, project_id, from_status, to_status, actor, changed_at
		FROM task_history WHERE project_id = ?`
	args := []any{projectID}
	if opts.Cursor != "" {
		cur, err := store.DecodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		query += " AND ((changed_at > ?) OR (changed_at = ? AND id > ?))"
		at := fmtTime(cur.CreatedAt)
		args = append(args, at, at, cur.ID)
	}
	query += " ORDER BY changed_at, id LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list task history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*store.TaskHistory
	for rows.Next() {
		var h store.TaskHistory
		var from, to, changedAt string
		if err := rows.Scan(&h.ID, &h.TaskID, &h.ProjectID, &from, &to, &h.Actor, &changedAt); err != nil {
			return nil, fmt.Errorf("scan task history: %w", err)
		}
		h.FromStatus = store.TaskStatus(from)
		h.ToStatus = store.TaskStatus(to)
		h.ChangedAt = parseTime(changedAt)
		items = append(items, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task history: %w", err)
	}

	page := &store.Page[*store.TaskHistory]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.ChangedAt, last.ID)
	}
	return page, nil
}
