package cloud

import (
	"time"

	"github.com/taskvault/taskvault/internal/embedding"
	"github.com/taskvault/taskvault/internal/store"
)

// cloudRepos bundles the document-store repositories.
type cloudRepos struct {
	m        *Manager
	provider embedding.Provider
}

func (r *cloudRepos) Tasks() store.TaskRepository {
	return &TaskRepo{m: r.m}
}

func (r *cloudRepos) TaskHistory() store.TaskHistoryRepository {
	return &TaskHistoryRepo{m: r.m}
}

func (r *cloudRepos) Memories() store.MemoryRepository {
	return &MemoryRepo{m: r.m, provider: r.provider}
}

func (r *cloudRepos) Backend() store.Backend { return store.BackendCloud }

func (r *cloudRepos) SupportsVectorSearch() bool { return true }

// Close is a no-op for the bundle: the manager owns the client and
// disconnects it at process shutdown.
func (r *cloudRepos) Close() error { return nil }

// BSON datetimes carry millisecond precision; stamping with anything
// finer would make a round-tripped record compare unequal.
func stamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}
