package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// ProjectRepo implements store.ProjectRepository over the embedded
// store. The registry never migrates: the storage mode it holds must be
// readable before any backend can be selected.
type ProjectRepo struct {
	s *Store
}

// NewProjectRepo returns the registry repository for the store.
func NewProjectRepo(s *Store) *ProjectRepo {
	return &ProjectRepo{s: s}
}

// Create registers a project and its default settings row (storage mode
// local) in one transaction.
func (r *ProjectRepo) Create(ctx context.Context, p *store.Project) (*store.Project, error) {
	stored := *p
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.CreatedAt = parseTime(fmtTime(stored.CreatedAt))

	active := 0
	if stored.Active {
		active = 1
	}

	err := r.s.RunInTx(ctx, func(tx *TxOps) error {
		if _, err := tx.Exec(`
			INSERT INTO projects (id, name, path, active, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, stored.ID, stored.Name, stored.Path, active, fmtTime(stored.CreatedAt)); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO project_settings (project_id, storage_mode, updated_at)
			VALUES (?, ?, ?)
		`, stored.ID, string(store.ModeLocal), fmtTime(stored.CreatedAt)); err != nil {
			return fmt.Errorf("insert project settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// Get retrieves a project by ID.
func (r *ProjectRepo) Get(ctx context.Context, id string) (*store.Project, error) {
	return r.scanOne(ctx, "SELECT id, name, path, active, created_at FROM projects WHERE id = ?", id)
}

// GetByPath retrieves a project by its unique filesystem path.
func (r *ProjectRepo) GetByPath(ctx context.Context, path string) (*store.Project, error) {
	return r.scanOne(ctx, "SELECT id, name, path, active, created_at FROM projects WHERE path = ?", path)
}

func (r *ProjectRepo) scanOne(ctx context.Context, query, arg string) (*store.Project, error) {
	var p store.Project
	var active int
	var createdAt string
	err := r.s.QueryRow(ctx, query, arg).Scan(&p.ID, &p.Name, &p.Path, &active, &createdAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound("project", arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", arg, err)
	}
	p.Active = active != 0
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// List pages through all registered projects. This is the global
// listing used by cross-project tooling.
func (r *ProjectRepo) List(ctx context.Context, opts store.ListOptions) (*store.Page[*store.Project], error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	query := "SELECT id, name, path, active, created_at FROM projects"
	args := []any{}
	if opts.Cursor != "" {
		cur, err := store.DecodeCursor(opts.Cursor)
		if err != nil {
			return nil, err
		}
		query += " WHERE (created_at > ?) OR (created_at = ? AND id > ?)"
		at := fmtTime(cur.CreatedAt)
		args = append(args, at, at, cur.ID)
	}
	query += " ORDER BY created_at, id LIMIT ?"
	args = append(args, limit+1)

	rows, err := r.s.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []*store.Project
	for rows.Next() {
		var p store.Project
		var active int
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Path, &active, &createdAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Active = active != 0
		p.CreatedAt = parseTime(createdAt)
		items = append(items, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	page := &store.Page[*store.Project]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Update applies a partial update to a project.
func (r *ProjectRepo) Update(ctx context.Context, id string, patch store.ProjectPatch) (*store.Project, error) {
	p, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}

	active := 0
	if p.Active {
		active = 1
	}
	if _, err := r.s.Exec(ctx, `
		UPDATE projects SET name = ?, active = ? WHERE id = ?
	`, p.Name, active, id); err != nil {
		return nil, fmt.Errorf("update project %s: %w", id, err)
	}
	return p, nil
}

// Delete removes a project. Tasks, history, and memories cascade.
func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	res, err := r.s.Exec(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n == 0 {
		return errs.ErrNotFound("project", id)
	}
	return nil
}

// GetSettings retrieves the settings row for a project.
func (r *ProjectRepo) GetSettings(ctx context.Context, projectID string) (*store.ProjectSettings, error) {
	var s store.ProjectSettings
	var mode, metadata, updatedAt string
	err := r.s.QueryRow(ctx, `
		SELECT project_id, storage_mode, embedding_model, metadata, updated_at
		FROM project_settings WHERE project_id = ?
	`, projectID).Scan(&s.ProjectID, &mode, &s.EmbeddingModel, &metadata, &updatedAt)
	if isNoRows(err) {
		return nil, errs.ErrNotFound("project settings", projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("get settings %s: %w", projectID, err)
	}

	s.StorageMode = store.StorageMode(mode)
	s.UpdatedAt = parseTime(updatedAt)
	if metadata != "" {
		_ = json.Unmarshal([]byte(metadata), &s.Metadata)
	}
	return &s, nil
}

// SetStorageMode flips the project's storage mode. This is the
// migration cutover: a single-statement update so a reader observes
// either the old or the new mode, never an intermediate state.
func (r *ProjectRepo) SetStorageMode(ctx context.Context, projectID string, mode store.StorageMode) error {
	if !mode.Valid() {
		return errs.ErrConfigInvalid("storage_mode", fmt.Sprintf("unknown mode %q", mode))
	}
	res, err := r.s.Exec(ctx, `
		UPDATE project_settings SET storage_mode = ?, updated_at = ? WHERE project_id = ?
	`, string(mode), fmtTime(time.Now()), projectID)
	if err != nil {
		return fmt.Errorf("set storage mode %s: %w", projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set storage mode %s: %w", projectID, err)
	}
	if n == 0 {
		return errs.ErrNotFound("project settings", projectID)
	}
	return nil
}
