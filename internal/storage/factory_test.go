package storage

import (
	"context"
	"testing"

	"github.com/taskvault/taskvault/internal/cloud"
	"github.com/taskvault/taskvault/internal/config"
	"github.com/taskvault/taskvault/internal/db"
	"github.com/taskvault/taskvault/internal/embedding"
	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

func newTestFactory(t *testing.T) *Factory {
	t.Helper()
	s := db.NewTestStore(t)
	mgr := cloud.NewManager(config.MongoConfig{}, nil)
	return NewFactory(s, mgr, embedding.NewDisabled(0), nil)
}

func TestForProjectLocalMode(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	p, err := f.Projects().Create(ctx, &store.Project{Name: "demo", Path: "/tmp/demo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	repos, err := f.ForProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("ForProject: %v", err)
	}
	if repos.Backend() != store.BackendLocal {
		t.Errorf("Backend() = %s, want local", repos.Backend())
	}
	if repos.SupportsVectorSearch() {
		t.Error("local backend claims vector search support")
	}
}

func TestForProjectCloudModeUnavailable(t *testing.T) {
	f := newTestFactory(t)
	ctx := context.Background()

	p, err := f.Projects().Create(ctx, &store.Project{Name: "demo", Path: "/tmp/demo"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if err := f.Projects().SetStorageMode(ctx, p.ID, store.ModeCloud); err != nil {
		t.Fatalf("set storage mode: %v", err)
	}

	_, err = f.ForProject(ctx, p.ID)
	if !errs.HasCode(err, errs.CodeBackendUnavailable) {
		t.Errorf("ForProject error = %v, want BACKEND_UNAVAILABLE", err)
	}
}

func TestForProjectUnknownProject(t *testing.T) {
	f := newTestFactory(t)

	_, err := f.ForProject(context.Background(), "nope")
	if !errs.HasCode(err, errs.CodeNotFound) {
		t.Errorf("ForProject error = %v, want NOT_FOUND", err)
	}
}

func TestForModeBypassesRegistry(t *testing.T) {
	f := newTestFactory(t)

	repos, err := f.ForMode(store.ModeLocal)
	if err != nil {
		t.Fatalf("ForMode(local): %v", err)
	}
	if repos.Backend() != store.BackendLocal {
		t.Errorf("Backend() = %s, want local", repos.Backend())
	}

	if _, err := f.ForMode(store.ModeCloud); !errs.HasCode(err, errs.CodeBackendUnavailable) {
		t.Errorf("ForMode(cloud) error = %v, want BACKEND_UNAVAILABLE", err)
	}

	if _, err := f.ForMode("tape"); !errs.HasCode(err, errs.CodeConfigInvalid) {
		t.Errorf("ForMode(tape) error = %v, want CONFIG_INVALID", err)
	}
}

func TestCloudAvailable(t *testing.T) {
	f := newTestFactory(t)
	if f.CloudAvailable() {
		t.Error("CloudAvailable() = true with disconnected manager")
	}
}
