package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"

	"github.com/taskvault/taskvault/internal/cloud"
	"github.com/taskvault/taskvault/internal/config"
	"github.com/taskvault/taskvault/internal/db"
	"github.com/taskvault/taskvault/internal/db/driver"
	"github.com/taskvault/taskvault/internal/embedding"
	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/storage"
	"github.com/taskvault/taskvault/internal/store"
)

// app wires the process-wide pieces every command needs: config, the
// embedded store, the cloud manager and the backend factory.
type app struct {
	cfg      *config.Config
	store    *db.Store
	manager  *cloud.Manager
	provider embedding.Provider
	factory  *storage.Factory
}

// openApp loads configuration and opens the embedded store. The cloud
// connection is attempted when configured; failure is logged and the
// process continues in relational-only mode.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		return nil, err
	}

	dialect, err := driver.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	st, err := db.OpenWithDialect(cfg.DatabaseDSN(), dialect)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	manager := cloud.NewManager(cfg.Mongo, slog.Default())
	if manager.Configured() {
		if err := manager.Connect(ctx); err != nil {
			slog.Warn("cloud backend unavailable", "error", err)
		}
	}

	provider := embedding.FromConfig(cfg)
	return &app{
		cfg:      cfg,
		store:    st,
		manager:  manager,
		provider: provider,
		factory:  storage.NewFactory(st, manager, provider, slog.Default()),
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.manager.Disconnect(ctx); err != nil {
		slog.Warn("disconnect cloud backend", "error", err)
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("close database", "error", err)
	}
}

// resolveProject accepts a project ID or a filesystem path and returns
// the matching registry record.
func resolveProject(ctx context.Context, a *app, ref string) (*store.Project, error) {
	projects := a.factory.Projects()
	p, err := projects.Get(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errs.HasCode(err, errs.CodeNotFound) {
		return nil, err
	}

	abs, pathErr := filepath.Abs(ref)
	if pathErr != nil {
		return nil, err
	}
	p, pathErr = projects.GetByPath(ctx, abs)
	if pathErr != nil {
		return nil, err
	}
	return p, nil
}

// lockOwner identifies this user and host in migration lock files.
func lockOwner() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return username + "@" + host
}
