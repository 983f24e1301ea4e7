// Package store defines the backend-agnostic repository contract for
// taskvault entities. Callers program against these interfaces; the
// concrete implementation (embedded relational store or cloud document
// store) is selected per project by the storage factory based on the
// project's persisted storage mode.
package store

import "context"

// Backend identifies a concrete repository implementation.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendCloud Backend = "cloud"
)

// ListOptions controls pagination for List operations.
// Cursor is an opaque token returned by a previous page; an empty
// cursor starts from the beginning. Limit <= 0 applies DefaultPageSize.
type ListOptions struct {
	Cursor string
	Limit  int
}

// DefaultPageSize is applied when ListOptions.Limit is unset.
const DefaultPageSize = 100

// Page is one page of an ordered listing. Records are ordered by
// creation time then ID so pagination is deterministic under ties.
// NextCursor is empty on the final page.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Match is one vector-search result.
type Match struct {
	Memory *Memory
	Score  float64
}

// ProjectRepository persists the cross-project registry. Projects and
// their settings always live in the embedded store: the storage mode
// must be readable before a backend can be selected, so the registry
// itself never migrates.
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) (*Project, error)
	Get(ctx context.Context, id string) (*Project, error)
	GetByPath(ctx context.Context, path string) (*Project, error)
	List(ctx context.Context, opts ListOptions) (*Page[*Project], error)
	Update(ctx context.Context, id string, patch ProjectPatch) (*Project, error)
	Delete(ctx context.Context, id string) error

	// Settings operations. SetStorageMode is the migration cutover
	// write and must be a single-statement update.
	GetSettings(ctx context.Context, projectID string) (*ProjectSettings, error)
	SetStorageMode(ctx context.Context, projectID string, mode StorageMode) error
}

// TaskRepository persists tasks for one project scope.
// A status change appends a TaskHistory row atomically with the update.
type TaskRepository interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, projectID string, opts ListOptions) (*Page[*Task], error)
	Update(ctx context.Context, id string, patch TaskPatch) (*Task, error)
	Delete(ctx context.Context, id string) error
}

// TaskHistoryRepository persists the append-only status trail.
// History rows are immutable once written; there is no update or
// single-row delete.
type TaskHistoryRepository interface {
	Append(ctx context.Context, h *TaskHistory) (*TaskHistory, error)
	Get(ctx context.Context, id string) (*TaskHistory, error)
	List(ctx context.Context, projectID string, opts ListOptions) (*Page[*TaskHistory], error)
}

// MemoryRepository persists append-only conversation memory.
// Search is only available on backends with vector support; others
// fail with CAPABILITY_UNSUPPORTED.
type MemoryRepository interface {
	Create(ctx context.Context, m *Memory) (*Memory, error)
	Get(ctx context.Context, id string) (*Memory, error)
	List(ctx context.Context, projectID string, opts ListOptions) (*Page[*Memory], error)
	Delete(ctx context.Context, id string) error

	// Search returns up to topK matches for query within the project,
	// ordered by similarity descending, ties broken by most recent
	// CreatedAt. All returned scores are >= minScore.
	Search(ctx context.Context, projectID, query string, topK int, minScore float64) ([]Match, error)
}

// Repositories bundles the per-family repositories served by one
// backend for one project's data.
type Repositories interface {
	Tasks() TaskRepository
	TaskHistory() TaskHistoryRepository
	Memories() MemoryRepository

	// Backend identifies the implementation serving this bundle.
	Backend() Backend

	// SupportsVectorSearch reports whether Memories().Search can
	// succeed on this backend. Callers of similarity search branch on
	// this instead of probing with a throwaway query.
	SupportsVectorSearch() bool

	Close() error
}
