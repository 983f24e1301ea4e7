package db

import (
	"context"
	"testing"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

func newTestProject(t *testing.T, s *Store) *store.Project {
	t.Helper()
	p, err := NewProjectRepo(s).Create(context.Background(), &store.Project{
		Name:   "demo",
		Path:   "/" + t.Name(),
		Active: true,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func TestTaskRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	repo := &TaskRepo{s: s}
	ctx := context.Background()

	created, err := repo.Create(ctx, &store.Task{
		ProjectID:   p.ID,
		Title:       "wire the schema",
		Description: "tables plus indexes",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != store.StatusTodo {
		t.Errorf("default status = %s, want todo", created.Status)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *created {
		t.Errorf("Get = %+v, want %+v", got, created)
	}
}

func TestTaskUpdateAppendsHistory(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	tasks := &TaskRepo{s: s}
	history := &TaskHistoryRepo{s: s}
	ctx := context.Background()

	task, err := tasks.Create(ctx, &store.Task{ProjectID: p.ID, Title: "t"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	inProgress := store.StatusInProgress
	if _, err := tasks.Update(ctx, task.ID, store.TaskPatch{Status: &inProgress, Actor: "alex"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	page, err := history.List(ctx, p.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("List history: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("history rows = %d, want 1", len(page.Items))
	}
	h := page.Items[0]
	if h.FromStatus != store.StatusTodo || h.ToStatus != store.StatusInProgress || h.Actor != "alex" {
		t.Errorf("history = %+v, want todo->in_progress by alex", h)
	}

	// A title-only update must not append history.
	title := "renamed"
	if _, err := tasks.Update(ctx, task.ID, store.TaskPatch{Title: &title}); err != nil {
		t.Fatalf("title Update: %v", err)
	}
	page, err = history.List(ctx, p.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("List history: %v", err)
	}
	if len(page.Items) != 1 {
		t.Errorf("history rows after title update = %d, want 1", len(page.Items))
	}
}

func TestTaskUpdateNotFound(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := &TaskRepo{s: s}

	title := "x"
	_, err := repo.Update(context.Background(), "missing", store.TaskPatch{Title: &title})
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("Update(missing) error = %v, want NOT_FOUND", err)
	}
}

func TestTaskInvalidStatusRejected(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	repo := &TaskRepo{s: s}
	ctx := context.Background()

	_, err := repo.Create(ctx, &store.Task{ProjectID: p.ID, Title: "t", Status: "sideways"})
	if !errs.HasCode(err, errs.CodeConfigInvalid) {
		t.Errorf("Create with bad status error = %v, want CONFIG_INVALID", err)
	}
}

func TestTaskListScopedToProject(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := &TaskRepo{s: s}
	projects := NewProjectRepo(s)
	ctx := context.Background()

	p1, _ := projects.Create(ctx, &store.Project{Name: "a", Path: "/a"})
	p2, _ := projects.Create(ctx, &store.Project{Name: "b", Path: "/b"})

	for i := 0; i < 3; i++ {
		if _, err := repo.Create(ctx, &store.Task{ProjectID: p1.ID, Title: "t"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := repo.Create(ctx, &store.Task{ProjectID: p2.ID, Title: "other"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	page, err := repo.List(ctx, p1.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 3 {
		t.Errorf("tasks in p1 = %d, want 3", len(page.Items))
	}
	for _, task := range page.Items {
		if task.ProjectID != p1.ID {
			t.Errorf("task %s leaked from project %s", task.ID, task.ProjectID)
		}
	}
}

func TestHistoryAppendAndGet(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	tasks := &TaskRepo{s: s}
	history := &TaskHistoryRepo{s: s}
	ctx := context.Background()

	task, err := tasks.Create(ctx, &store.Task{ProjectID: p.ID, Title: "t"})
	if err != nil {
		t.Fatalf("Create task: %v", err)
	}

	h, err := history.Append(ctx, &store.TaskHistory{
		TaskID:     task.ID,
		ProjectID:  p.ID,
		FromStatus: store.StatusTodo,
		ToStatus:   store.StatusDone,
		Actor:      "ci",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := history.Get(ctx, h.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *h {
		t.Errorf("Get = %+v, want %+v", got, h)
	}
}
