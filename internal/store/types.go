package store

import "time"

// StorageMode selects which repository implementation serves a project.
type StorageMode string

const (
	// ModeLocal stores entities in the embedded relational store.
	ModeLocal StorageMode = "local"
	// ModeCloud stores entities in the cloud document store.
	ModeCloud StorageMode = "cloud"
)

// Valid reports whether the mode is a known value.
func (m StorageMode) Valid() bool {
	return m == ModeLocal || m == ModeCloud
}

// Other returns the opposite mode. Used by the migration tool to
// resolve the target backend from the source.
func (m StorageMode) Other() StorageMode {
	if m == ModeLocal {
		return ModeCloud
	}
	return ModeLocal
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
	StatusCancelled  TaskStatus = "cancelled"
)

// ValidTaskStatus reports whether s is a known status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusBlocked, StatusDone, StatusCancelled:
		return true
	}
	return false
}

// Project is a registered project. Path is unique across the registry.
type Project struct {
	ID        string
	Name      string
	Path      string
	Active    bool
	CreatedAt time.Time
}

// ProjectSettings is the 1:1 settings record owned by a project.
// StorageMode is the single source of truth for backend selection;
// it changes only through a verified migration cutover or an
// administrative override on an empty project.
type ProjectSettings struct {
	ProjectID      string
	StorageMode    StorageMode
	EmbeddingModel string
	Metadata       map[string]string
	UpdatedAt      time.Time
}

// Task is the one mutable entity besides settings. Status transitions
// append TaskHistory rows in the same transaction as the update.
type Task struct {
	ID          string
	ProjectID   string
	Status      TaskStatus
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskHistory records one status transition. Immutable once written.
type TaskHistory struct {
	ID         string
	TaskID     string
	ProjectID  string
	FromStatus TaskStatus
	ToStatus   TaskStatus
	Actor      string
	ChangedAt  time.Time
}

// Memory is an append-only conversation memory entry. Embedding may be
// empty when no provider was available at write time; such records are
// retrievable but invisible to similarity search. Corrections are new
// entries, never in-place updates.
type Memory struct {
	ID        string
	ProjectID string
	SessionID string
	TaskID    string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// ProjectPatch carries partial updates for a project record.
// Nil fields are left unchanged.
type ProjectPatch struct {
	Name   *string
	Active *bool
}

// TaskPatch carries partial updates for a task. Actor attributes the
// history row written when Status changes.
type TaskPatch struct {
	Status      *TaskStatus
	Title       *string
	Description *string
	Actor       string
}
