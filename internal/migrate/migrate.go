// Package migrate copies a project's entity data between storage
// backends and cuts the project's storage mode over once the copy is
// verified. Runs are idempotent and resumable: records already present
// in the target are skipped, so an interrupted run is finished by
// running again.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// BackendResolver resolves the registry and per-mode repository
// bundles. storage.Factory satisfies it.
type BackendResolver interface {
	Projects() store.ProjectRepository
	ForMode(mode store.StorageMode) (store.Repositories, error)
}

// Options configures one migration run.
type Options struct {
	ProjectID string
	DryRun    bool

	// PageSize bounds each source read. Zero applies the contract
	// default.
	PageSize int
}

// FamilyReport is the per-entity-family outcome of a run.
type FamilyReport struct {
	Family  string
	Copied  int
	Skipped int
	Failed  int

	// Post-copy verification counts. Equal counts are required for
	// cutover.
	SourceCount int
	TargetCount int
}

// Report is the outcome of one migration run.
type Report struct {
	ProjectID string
	From      store.StorageMode
	To        store.StorageMode
	DryRun    bool

	Tasks    FamilyReport
	History  FamilyReport
	Memories FamilyReport

	// Completed reports that the copy and verification phases ran to
	// the end, even if individual records failed.
	Completed bool

	// CutOver reports that the project's storage mode was switched.
	// Always false for dry runs.
	CutOver bool
}

// TotalFailed sums per-record failures across families.
func (r *Report) TotalFailed() int {
	return r.Tasks.Failed + r.History.Failed + r.Memories.Failed
}

func (r *Report) families() []*FamilyReport {
	return []*FamilyReport{&r.Tasks, &r.History, &r.Memories}
}

// Migrator copies project data between backends.
type Migrator struct {
	factory BackendResolver
	locker  *Locker
	logger  *slog.Logger
}

// New creates a migrator. The locker serializes runs per project; a
// nil locker is allowed for tests.
func New(factory BackendResolver, locker *Locker, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{factory: factory, locker: locker, logger: logger}
}

// Run migrates one project from its current backend to the other.
// Families copy sequentially (tasks, then history, then memories) so a
// partially migrated target never has history rows for absent tasks.
// Cutover happens only when every record copied and source and target
// counts agree; otherwise the report explains what blocked it and the
// returned error carries the reason.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.ProjectID == "" {
		return nil, errs.ErrConfigInvalid("project", "project ID is required")
	}

	projects := m.factory.Projects()
	if _, err := projects.Get(ctx, opts.ProjectID); err != nil {
		return nil, err
	}
	settings, err := projects.GetSettings(ctx, opts.ProjectID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProjectID: opts.ProjectID,
		From:      settings.StorageMode,
		To:        settings.StorageMode.Other(),
		DryRun:    opts.DryRun,
		Tasks:     FamilyReport{Family: "tasks"},
		History:   FamilyReport{Family: "task_history"},
		Memories:  FamilyReport{Family: "memories"},
	}

	source, err := m.factory.ForMode(report.From)
	if err != nil {
		return nil, err
	}
	target, err := m.factory.ForMode(report.To)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun && m.locker != nil {
		if err := m.locker.Acquire(opts.ProjectID); err != nil {
			return nil, err
		}
		defer func() {
			if err := m.locker.Release(opts.ProjectID); err != nil {
				m.logger.Warn("release migration lock", "project", opts.ProjectID, "error", err)
			}
		}()
		stopHeartbeat := m.startHeartbeat(opts.ProjectID)
		defer stopHeartbeat()
	}

	m.logger.Info("migration starting",
		"project", opts.ProjectID, "from", report.From, "to", report.To, "dry_run", opts.DryRun)

	if err := m.copyTasks(ctx, source, target, opts, &report.Tasks); err != nil {
		return report, err
	}
	if err := m.copyHistory(ctx, source, target, opts, &report.History); err != nil {
		return report, err
	}
	if err := m.copyMemories(ctx, source, target, opts, &report.Memories); err != nil {
		return report, err
	}

	if err := m.verifyCounts(ctx, source, target, opts, report); err != nil {
		return report, err
	}
	report.Completed = true

	if failed := report.TotalFailed(); failed > 0 {
		m.logger.Error("migration completed with failures",
			"project", opts.ProjectID, "failed", failed)
		return report, fmt.Errorf("%d records failed to copy; storage mode unchanged", failed)
	}

	if opts.DryRun {
		m.logger.Info("dry run complete; no records written, storage mode unchanged",
			"project", opts.ProjectID)
		return report, nil
	}

	// A dry run skips this: it writes nothing, so counts cannot agree.
	for _, fam := range report.families() {
		if fam.SourceCount != fam.TargetCount {
			return report, errs.ErrCountMismatch(fam.Family, fam.SourceCount, fam.TargetCount)
		}
	}

	if err := projects.SetStorageMode(ctx, opts.ProjectID, report.To); err != nil {
		return report, fmt.Errorf("cutover: %w", err)
	}
	report.CutOver = true
	m.logger.Info("migration complete",
		"project", opts.ProjectID, "mode", report.To,
		"tasks", report.Tasks.Copied, "history", report.History.Copied, "memories", report.Memories.Copied)
	return report, nil
}

func (m *Migrator) startHeartbeat(projectID string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := m.locker.Heartbeat(projectID); err != nil {
					m.logger.Warn("migration lock heartbeat", "project", projectID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

func (m *Migrator) copyTasks(ctx context.Context, source, target store.Repositories, opts Options, rep *FamilyReport) error {
	return copyFamily(ctx, m.logger, opts, rep,
		func(cursor string) (*store.Page[*store.Task], error) {
			return source.Tasks().List(ctx, opts.ProjectID, store.ListOptions{Cursor: cursor, Limit: opts.PageSize})
		},
		func(t *store.Task) string { return t.ID },
		func(id string) error { _, err := target.Tasks().Get(ctx, id); return err },
		func(t *store.Task) error { _, err := target.Tasks().Create(ctx, t); return err },
	)
}

func (m *Migrator) copyHistory(ctx context.Context, source, target store.Repositories, opts Options, rep *FamilyReport) error {
	return copyFamily(ctx, m.logger, opts, rep,
		func(cursor string) (*store.Page[*store.TaskHistory], error) {
			return source.TaskHistory().List(ctx, opts.ProjectID, store.ListOptions{Cursor: cursor, Limit: opts.PageSize})
		},
		func(h *store.TaskHistory) string { return h.ID },
		func(id string) error { _, err := target.TaskHistory().Get(ctx, id); return err },
		func(h *store.TaskHistory) error { _, err := target.TaskHistory().Append(ctx, h); return err },
	)
}

// copyMemories relies on the target repository to compute embeddings
// for vectorless records; when the provider is unavailable the record
// still copies, just without a vector.
func (m *Migrator) copyMemories(ctx context.Context, source, target store.Repositories, opts Options, rep *FamilyReport) error {
	return copyFamily(ctx, m.logger, opts, rep,
		func(cursor string) (*store.Page[*store.Memory], error) {
			return source.Memories().List(ctx, opts.ProjectID, store.ListOptions{Cursor: cursor, Limit: opts.PageSize})
		},
		func(mem *store.Memory) string { return mem.ID },
		func(id string) error { _, err := target.Memories().Get(ctx, id); return err },
		func(mem *store.Memory) error { _, err := target.Memories().Create(ctx, mem); return err },
	)
}

// copyFamily pages through the source and copies records absent from
// the target. Records already present are skipped, which is what makes
// re-running idempotent. A record-level get or create failure is
// logged and counted but does not abort the run; a page-level list
// failure does.
func copyFamily[T any](
	ctx context.Context,
	logger *slog.Logger,
	opts Options,
	rep *FamilyReport,
	list func(cursor string) (*store.Page[T], error),
	id func(T) string,
	probe func(id string) error,
	create func(T) error,
) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := list(cursor)
		if err != nil {
			return fmt.Errorf("list %s: %w", rep.Family, err)
		}

		for _, rec := range page.Items {
			recID := id(rec)
			err := probe(recID)
			switch {
			case err == nil:
				rep.Skipped++
				continue
			case !errs.HasCode(err, errs.CodeNotFound):
				logger.Error("probe target record", "family", rep.Family, "id", recID, "error", err)
				rep.Failed++
				continue
			}

			if opts.DryRun {
				rep.Copied++
				continue
			}
			if err := create(rec); err != nil {
				logger.Error("copy record", "family", rep.Family, "id", recID, "error", err)
				rep.Failed++
				continue
			}
			rep.Copied++
		}

		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// verifyCounts tallies source and target per family. Families count
// concurrently; each goroutine writes only its own report fields. For
// dry runs the target tally reflects pre-existing records only.
func (m *Migrator) verifyCounts(ctx context.Context, source, target store.Repositories, opts Options, report *Report) error {
	g, ctx := errgroup.WithContext(ctx)
	listOpts := func(c string) store.ListOptions {
		return store.ListOptions{Cursor: c, Limit: opts.PageSize}
	}

	tallies := []struct {
		rep            *FamilyReport
		source, target func(cursor string) (string, int, error)
	}{
		{
			rep: &report.Tasks,
			source: pager(func(c string) (*store.Page[*store.Task], error) {
				return source.Tasks().List(ctx, opts.ProjectID, listOpts(c))
			}),
			target: pager(func(c string) (*store.Page[*store.Task], error) {
				return target.Tasks().List(ctx, opts.ProjectID, listOpts(c))
			}),
		},
		{
			rep: &report.History,
			source: pager(func(c string) (*store.Page[*store.TaskHistory], error) {
				return source.TaskHistory().List(ctx, opts.ProjectID, listOpts(c))
			}),
			target: pager(func(c string) (*store.Page[*store.TaskHistory], error) {
				return target.TaskHistory().List(ctx, opts.ProjectID, listOpts(c))
			}),
		},
		{
			rep: &report.Memories,
			source: pager(func(c string) (*store.Page[*store.Memory], error) {
				return source.Memories().List(ctx, opts.ProjectID, listOpts(c))
			}),
			target: pager(func(c string) (*store.Page[*store.Memory], error) {
				return target.Memories().List(ctx, opts.ProjectID, listOpts(c))
			}),
		},
	}

	for _, tl := range tallies {
		g.Go(func() error {
			var err error
			if tl.rep.SourceCount, err = countPages(tl.source); err != nil {
				return fmt.Errorf("count source %s: %w", tl.rep.Family, err)
			}
			if tl.rep.TargetCount, err = countPages(tl.target); err != nil {
				return fmt.Errorf("count target %s: %w", tl.rep.Family, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// pager adapts a List call to the (nextCursor, pageLen) shape
// countPages walks.
func pager[T any](list func(cursor string) (*store.Page[T], error)) func(string) (string, int, error) {
	return func(c string) (string, int, error) {
		page, err := list(c)
		if err != nil {
			return "", 0, err
		}
		return page.NextCursor, len(page.Items), nil
	}
}

func countPages(next func(cursor string) (string, int, error)) (int, error) {
	total := 0
	cursor := ""
	for {
		nextCursor, n, err := next(cursor)
		if err != nil {
			return 0, err
		}
		total += n
		if nextCursor == "" {
			return total, nil
		}
		cursor = nextCursor
	}
}
