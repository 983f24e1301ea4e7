package migrate

import (
	"context"
	"fmt"
	"testing"

	"github.com/taskvault/taskvault/internal/db"
	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// testResolver serves the registry from one in-memory store and
// entity bundles from two independent in-memory stores standing in
// for the two backends.
type testResolver struct {
	registry *db.Store
	bundles  map[store.StorageMode]store.Repositories
}

func (r *testResolver) Projects() store.ProjectRepository {
	return db.NewProjectRepo(r.registry)
}

func (r *testResolver) ForMode(mode store.StorageMode) (store.Repositories, error) {
	b, ok := r.bundles[mode]
	if !ok {
		return nil, errs.ErrBackendUnavailable("")
	}
	return b, nil
}

type fixture struct {
	resolver *testResolver
	source   store.Repositories
	target   store.Repositories
	project  *store.Project
}

// newFixture seeds a local-mode project with 3 tasks, 5 history rows
// and 10 memories on the source side.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := db.NewTestStore(t)
	sourceStore := registry
	targetStore := db.NewTestStore(t)

	resolver := &testResolver{
		registry: registry,
		bundles: map[store.StorageMode]store.Repositories{
			store.ModeLocal: sourceStore.Repositories(),
			store.ModeCloud: targetStore.Repositories(),
		},
	}

	project, err := resolver.Projects().Create(ctx, &store.Project{Name: "demo", Path: "/tmp/demo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	// The target store enforces the same referential schema, so it
	// needs the project row the way a production local store would
	// have it from the shared registry.
	if _, err := db.NewProjectRepo(targetStore).Create(ctx, project); err != nil {
		t.Fatalf("create project in target: %v", err)
	}

	source := resolver.bundles[store.ModeLocal]
	var lastTask *store.Task
	for i := 0; i < 3; i++ {
		task, err := source.Tasks().Create(ctx, &store.Task{
			ProjectID: project.ID,
			Title:     fmt.Sprintf("task %d", i),
		})
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		lastTask = task
		if i < 2 {
			// First transition, 2 rows.
			status := store.StatusInProgress
			if _, err := source.Tasks().Update(ctx, task.ID, store.TaskPatch{Status: &status, Actor: "alice"}); err != nil {
				t.Fatalf("update task: %v", err)
			}
		}
	}
	// 3 more direct rows for a total of 5.
	for i := 0; i < 3; i++ {
		if _, err := source.TaskHistory().Append(ctx, &store.TaskHistory{
			TaskID:     lastTask.ID,
			ProjectID:  project.ID,
			FromStatus: store.StatusInProgress,
			ToStatus:   store.StatusDone,
			Actor:      "bob",
		}); err != nil {
			t.Fatalf("append history: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		mem := &store.Memory{
			ProjectID: project.ID,
			SessionID: "s-1",
			Content:   fmt.Sprintf("memory %d", i),
		}
		if i%2 == 0 {
			mem.Embedding = []float32{0.1, 0.2, 0.3}
		}
		if _, err := source.Memories().Create(ctx, mem); err != nil {
			t.Fatalf("create memory: %v", err)
		}
	}

	return &fixture{
		resolver: resolver,
		source:   source,
		target:   resolver.bundles[store.ModeCloud],
		project:  project,
	}
}

func (f *fixture) mode(t *testing.T) store.StorageMode {
	t.Helper()
	settings, err := f.resolver.Projects().GetSettings(context.Background(), f.project.ID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	return settings.StorageMode
}

func TestRunFullMigration(t *testing.T) {
	f := newFixture(t)
	m := New(f.resolver, nil, nil)

	report, err := m.Run(context.Background(), Options{ProjectID: f.project.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Tasks.Copied != 3 || report.History.Copied != 5 || report.Memories.Copied != 10 {
		t.Errorf("copied = %d/%d/%d, want 3/5/10",
			report.Tasks.Copied, report.History.Copied, report.Memories.Copied)
	}
	if report.TotalFailed() != 0 {
		t.Errorf("failed = %d, want 0", report.TotalFailed())
	}
	if !report.CutOver {
		t.Error("CutOver = false after verified copy")
	}
	if got := f.mode(t); got != store.ModeCloud {
		t.Errorf("storage mode = %s, want cloud", got)
	}

	page, err := f.target.Memories().List(context.Background(), f.project.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("list target memories: %v", err)
	}
	if len(page.Items) != 10 {
		t.Errorf("target has %d memories, want 10", len(page.Items))
	}
}

func TestRunPreservesIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := New(f.resolver, nil, nil)

	sourcePage, err := f.source.Tasks().List(ctx, f.project.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("list source tasks: %v", err)
	}

	if _, err := m.Run(ctx, Options{ProjectID: f.project.ID}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, want := range sourcePage.Items {
		got, err := f.target.Tasks().Get(ctx, want.ID)
		if err != nil {
			t.Fatalf("get migrated task %s: %v", want.ID, err)
		}
		if got.Title != want.Title || got.Status != want.Status {
			t.Errorf("task %s = %+v, want %+v", want.ID, got, want)
		}
		if !got.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("task %s CreatedAt = %v, want %v", want.ID, got.CreatedAt, want.CreatedAt)
		}
	}
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := New(f.resolver, nil, nil)

	report, err := m.Run(ctx, Options{ProjectID: f.project.ID, DryRun: true})
	if err != nil {
		t.Fatalf("Run dry: %v", err)
	}
	if report.Tasks.Copied != 3 || report.History.Copied != 5 || report.Memories.Copied != 10 {
		t.Errorf("would-copy = %d/%d/%d, want 3/5/10",
			report.Tasks.Copied, report.History.Copied, report.Memories.Copied)
	}
	if report.CutOver {
		t.Error("dry run cut over")
	}
	if got := f.mode(t); got != store.ModeLocal {
		t.Errorf("storage mode = %s, want local after dry run", got)
	}

	page, err := f.target.Tasks().List(ctx, f.project.ID, store.ListOptions{})
	if err != nil {
		t.Fatalf("list target tasks: %v", err)
	}
	if len(page.Items) != 0 {
		t.Errorf("dry run wrote %d tasks to target", len(page.Items))
	}
}

func TestRunResumesPartialCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := New(f.resolver, nil, nil)

	// Simulate an interrupted earlier run: one task already landed.
	sourcePage, err := f.source.Tasks().List(ctx, f.project.ID, store.ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("list source tasks: %v", err)
	}
	if _, err := f.target.Tasks().Create(ctx, sourcePage.Items[0]); err != nil {
		t.Fatalf("pre-copy task: %v", err)
	}

	report, err := m.Run(ctx, Options{ProjectID: f.project.ID})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Tasks.Copied != 2 || report.Tasks.Skipped != 1 {
		t.Errorf("tasks copied/skipped = %d/%d, want 2/1", report.Tasks.Copied, report.Tasks.Skipped)
	}
	if !report.CutOver {
		t.Error("CutOver = false on resumed run")
	}
}

func TestRunIdempotentAfterFullCopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := New(f.resolver, nil, nil)

	if _, err := m.Run(ctx, Options{ProjectID: f.project.ID}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Put the mode back so a second run retries the same direction,
	// as if the first run died after copying but before cutover.
	if err := f.resolver.Projects().SetStorageMode(ctx, f.project.ID, store.ModeLocal); err != nil {
		t.Fatalf("reset mode: %v", err)
	}

	report, err := m.Run(ctx, Options{ProjectID: f.project.ID})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	total := report.Tasks.Copied + report.History.Copied + report.Memories.Copied
	if total != 0 {
		t.Errorf("second run copied %d records, want 0", total)
	}
	if report.Tasks.Skipped != 3 || report.History.Skipped != 5 || report.Memories.Skipped != 10 {
		t.Errorf("skipped = %d/%d/%d, want 3/5/10",
			report.Tasks.Skipped, report.History.Skipped, report.Memories.Skipped)
	}
	if !report.CutOver {
		t.Error("CutOver = false on idempotent re-run")
	}
}

func TestRunCountMismatchBlocksCutover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := New(f.resolver, nil, nil)

	// A stray record on the target makes the tallies disagree.
	if _, err := f.target.Tasks().Create(ctx, &store.Task{
		ProjectID: f.project.ID,
		Title:     "stray",
	}); err != nil {
		t.Fatalf("create stray task: %v", err)
	}

	report, err := m.Run(ctx, Options{ProjectID: f.project.ID})
	if !errs.HasCode(err, errs.CodeCountMismatch) {
		t.Fatalf("Run error = %v, want COUNT_MISMATCH", err)
	}
	if report.CutOver {
		t.Error("cut over despite count mismatch")
	}
	if got := f.mode(t); got != store.ModeLocal {
		t.Errorf("storage mode = %s, want local after blocked cutover", got)
	}
}

func TestRunUnknownProject(t *testing.T) {
	f := newFixture(t)
	m := New(f.resolver, nil, nil)

	_, err := m.Run(context.Background(), Options{ProjectID: "nope"})
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("Run error = %v, want NOT_FOUND", err)
	}
}

func TestRunTargetUnavailable(t *testing.T) {
	f := newFixture(t)
	delete(f.resolver.bundles, store.ModeCloud)
	m := New(f.resolver, nil, nil)

	_, err := m.Run(context.Background(), Options{ProjectID: f.project.ID})
	if !errs.HasCode(err, errs.CodeBackendUnavailable) {
		t.Errorf("Run error = %v, want BACKEND_UNAVAILABLE", err)
	}
}

func TestRunSmallPageSize(t *testing.T) {
	f := newFixture(t)
	m := New(f.resolver, nil, nil)

	report, err := m.Run(context.Background(), Options{ProjectID: f.project.ID, PageSize: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Memories.Copied != 10 {
		t.Errorf("memories copied = %d with page size 2, want 10", report.Memories.Copied)
	}
	if !report.CutOver {
		t.Error("CutOver = false")
	}
}

func TestRunHeldLock(t *testing.T) {
	f := newFixture(t)
	locker := NewLocker(t.TempDir(), "me@here")
	other := NewLocker(locker.dir, "other@there")
	if err := other.Acquire(f.project.ID); err != nil {
		t.Fatalf("acquire as other: %v", err)
	}

	m := New(f.resolver, locker, nil)
	_, err := m.Run(context.Background(), Options{ProjectID: f.project.ID})
	if !errs.HasCode(err, errs.CodeMigrationLocked) {
		t.Errorf("Run error = %v, want MIGRATION_LOCKED", err)
	}
	if got := f.mode(t); got != store.ModeLocal {
		t.Errorf("storage mode = %s, want local", got)
	}
}
