// Package storage selects the repository backend serving a project.
// The registry (projects and settings) always lives in the embedded
// relational store; per-project entity data is served from the backend
// named by the project's persisted storage mode.
package storage

import (
	"context"
	"log/slog"

	"github.com/taskvault/taskvault/internal/cloud"
	"github.com/taskvault/taskvault/internal/db"
	"github.com/taskvault/taskvault/internal/embedding"
	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// Factory resolves repository bundles. One factory serves the whole
// process; it holds the shared relational store, the cloud connection
// manager, and the embedding provider.
type Factory struct {
	local    *db.Store
	cloud    *cloud.Manager
	provider embedding.Provider
	logger   *slog.Logger
}

// NewFactory creates a factory over an open relational store and a
// cloud manager. The manager may be unconfigured or disconnected; in
// that case only local-mode projects are servable.
func NewFactory(local *db.Store, mgr *cloud.Manager, provider embedding.Provider, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{local: local, cloud: mgr, provider: provider, logger: logger}
}

// Projects returns the registry repository. Always relational,
// regardless of any project's storage mode.
func (f *Factory) Projects() store.ProjectRepository {
	return db.NewProjectRepo(f.local)
}

// ForProject resolves the bundle serving the given project's entity
// data by reading its persisted storage mode. A cloud-mode project
// with no live cloud connection fails with BACKEND_UNAVAILABLE; there
// is no silent fallback to local, which would split the dataset.
func (f *Factory) ForProject(ctx context.Context, projectID string) (store.Repositories, error) {
	settings, err := f.Projects().GetSettings(ctx, projectID)
	if err != nil {
		return nil, err
	}
	repos, err := f.ForMode(settings.StorageMode)
	if err != nil && errs.HasCode(err, errs.CodeBackendUnavailable) {
		return nil, errs.ErrBackendUnavailable(projectID)
	}
	return repos, err
}

// ForMode resolves the bundle for an explicit mode, bypassing the
// registry. The migration tool uses this to address the target backend
// before any project points at it.
func (f *Factory) ForMode(mode store.StorageMode) (store.Repositories, error) {
	switch mode {
	case store.ModeLocal:
		return f.local.Repositories(), nil
	case store.ModeCloud:
		if f.cloud == nil || !f.cloud.Connected() {
			return nil, errs.ErrBackendUnavailable("")
		}
		return f.cloud.Repositories(f.provider), nil
	default:
		return nil, errs.ErrConfigInvalid("storage_mode", "unknown mode "+string(mode))
	}
}

// CloudAvailable reports whether cloud-mode projects are servable.
func (f *Factory) CloudAvailable() bool {
	return f.cloud != nil && f.cloud.Connected()
}
