package db

import (
	"context"
	"testing"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

func TestProjectRoundTrip(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := NewProjectRepo(s)
	ctx := context.Background()

	created, err := repo.Create(ctx, &store.Project{
		Name:   "demo",
		Path:   "/home/dev/demo",
		Active: true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create should assign an ID")
	}
	if created.CreatedAt.IsZero() {
		t.Fatal("Create should stamp CreatedAt")
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *got != *created {
		t.Errorf("Get = %+v, want %+v", got, created)
	}

	byPath, err := repo.GetByPath(ctx, "/home/dev/demo")
	if err != nil {
		t.Fatalf("GetByPath: %v", err)
	}
	if byPath.ID != created.ID {
		t.Errorf("GetByPath ID = %s, want %s", byPath.ID, created.ID)
	}
}

func TestProjectGetNotFound(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := NewProjectRepo(s)

	_, err := repo.Get(context.Background(), "nope")
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("Get(nope) error = %v, want NOT_FOUND", err)
	}
}

func TestProjectDefaultSettings(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := NewProjectRepo(s)
	ctx := context.Background()

	p, err := repo.Create(ctx, &store.Project{Name: "demo", Path: "/p"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	settings, err := repo.GetSettings(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.StorageMode != store.ModeLocal {
		t.Errorf("default StorageMode = %s, want local", settings.StorageMode)
	}
}

func TestSetStorageMode(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := NewProjectRepo(s)
	ctx := context.Background()

	p, err := repo.Create(ctx, &store.Project{Name: "demo", Path: "/p"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.SetStorageMode(ctx, p.ID, store.ModeCloud); err != nil {
		t.Fatalf("SetStorageMode: %v", err)
	}

	settings, err := repo.GetSettings(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.StorageMode != store.ModeCloud {
		t.Errorf("StorageMode = %s, want cloud", settings.StorageMode)
	}

	if err := repo.SetStorageMode(ctx, p.ID, store.StorageMode("tape")); !errs.HasCode(err, errs.CodeConfigInvalid) {
		t.Errorf("invalid mode error = %v, want CONFIG_INVALID", err)
	}
	if err := repo.SetStorageMode(ctx, "missing", store.ModeCloud); !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("missing project error = %v, want NOT_FOUND", err)
	}
}

func TestProjectUpdateAndDelete(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := NewProjectRepo(s)
	ctx := context.Background()

	p, err := repo.Create(ctx, &store.Project{Name: "old", Path: "/p", Active: true})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	name := "new"
	inactive := false
	updated, err := repo.Update(ctx, p.ID, store.ProjectPatch{Name: &name, Active: &inactive})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "new" || updated.Active {
		t.Errorf("Update = %+v, want name=new active=false", updated)
	}

	if err := repo.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, p.ID); !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("second Delete error = %v, want NOT_FOUND", err)
	}
}

func TestProjectListPagination(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := NewProjectRepo(s)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := repo.Create(ctx, &store.Project{
			Name: "p",
			Path: "/p" + string(rune('a'+i)),
		}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := repo.List(ctx, store.ListOptions{Cursor: cursor, Limit: 2})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, p := range page.Items {
			if seen[p.ID] {
				t.Errorf("project %s returned twice", p.ID)
			}
			seen[p.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(seen) != 5 {
		t.Errorf("paged through %d projects, want 5", len(seen))
	}
}
