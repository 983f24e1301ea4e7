package db

import (
	"context"
	"testing"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

func TestMemoryRoundTripWithVector(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	repo := &MemoryRepo{s: s}
	ctx := context.Background()

	created, err := repo.Create(ctx, &store.Memory{
		ProjectID: p.ID,
		SessionID: "sess-1",
		Content:   "decided to keep the registry local",
		Embedding: []float32{0.1, -0.5, 0.25},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Content != created.Content || got.SessionID != created.SessionID {
		t.Errorf("Get = %+v, want %+v", got, created)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != -0.5 {
		t.Errorf("Embedding = %v, want [0.1 -0.5 0.25]", got.Embedding)
	}
}

func TestMemoryWithoutVector(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	repo := &MemoryRepo{s: s}
	ctx := context.Background()

	created, err := repo.Create(ctx, &store.Memory{ProjectID: p.ID, Content: "no provider today"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Embedding != nil {
		t.Errorf("Embedding = %v, want nil", got.Embedding)
	}
}

func TestMemorySearchUnsupported(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := &MemoryRepo{s: s}

	_, err := repo.Search(context.Background(), "p", "query", 5, 0)
	if !errs.HasCode(err, errs.CodeCapabilityUnsupported) {
		t.Errorf("Search error = %v, want CAPABILITY_UNSUPPORTED", err)
	}
}

func TestMemoryListPagination(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	p := newTestProject(t, s)
	repo := &MemoryRepo{s: s}
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if _, err := repo.Create(ctx, &store.Memory{ProjectID: p.ID, Content: "note"}); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	var all []*store.Memory
	cursor := ""
	pages := 0
	for {
		page, err := repo.List(ctx, p.ID, store.ListOptions{Cursor: cursor, Limit: 3})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		all = append(all, page.Items...)
		pages++
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	if len(all) != 7 {
		t.Errorf("paged %d memories, want 7", len(all))
	}
	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
	// Order must be deterministic: (created_at, id) ascending.
	for i := 1; i < len(all); i++ {
		prev, cur := all[i-1], all[i]
		if cur.CreatedAt.Before(prev.CreatedAt) {
			t.Errorf("page order regressed at %d", i)
		}
		if cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID <= prev.ID {
			t.Errorf("tie-break order violated at %d: %s after %s", i, cur.ID, prev.ID)
		}
	}
}

func TestMemoryDeleteNotFound(t *testing.T) {
	t.Parallel()
	s := NewTestStore(t)
	repo := &MemoryRepo{s: s}

	if err := repo.Delete(context.Background(), "missing"); !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("Delete(missing) error = %v, want NOT_FOUND", err)
	}
}
