// Package cloud implements the repository contract against the cloud
// document store (MongoDB Atlas) and owns the process-wide connection
// lifecycle. Cloud support is an optional capability: when no
// connection string is configured, or the initial connect fails, the
// process keeps running in relational-only mode.
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/taskvault/taskvault/internal/config"
	"github.com/taskvault/taskvault/internal/embedding"
	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// VectorIndexName is the Atlas vector search index expected on the
// memories collection. The index is an operator-managed artifact
// (path: embedding, similarity: cosine, dimensions matching the
// embedding provider); the manager verifies it but never provisions it.
const VectorIndexName = "memory_vector_index"

// Collection names.
const (
	collTasks    = "tasks"
	collHistory  = "task_history"
	collMemories = "memories"
)

// Manager owns the document-store client lifecycle: connect once at
// startup, verify indexes, disconnect at shutdown. The client is
// pooled and safe for concurrent use; only Connect and Disconnect
// require exclusivity, which running them solely at process
// startup/shutdown provides.
type Manager struct {
	cfg    config.MongoConfig
	logger *slog.Logger

	mu        sync.RWMutex
	client    *mongo.Client
	db        *mongo.Database
	connected bool

	vectorMu       sync.Mutex
	vectorVerified bool
}

// NewManager creates a manager for the given configuration. No
// connection is attempted until Connect.
func NewManager(cfg config.MongoConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Configured reports whether a connection string is present. Without
// one Connect is a no-op and every project must stay in local mode.
func (m *Manager) Configured() bool {
	return m.cfg.URI != ""
}

// Connect establishes the pooled client, pings the deployment, and
// idempotently ensures secondary indexes. Call once at startup; a
// failure leaves the manager disconnected and the process in
// relational-only mode.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.Configured() {
		return nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(m.cfg.URI))
	if err != nil {
		return fmt.Errorf("connect document store: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ping document store: %w", err)
	}

	db := client.Database(m.cfg.Database)
	if err := ensureIndexes(ctx, db); err != nil {
		_ = client.Disconnect(ctx)
		return fmt.Errorf("ensure indexes: %w", err)
	}

	m.mu.Lock()
	m.client = client
	m.db = db
	m.connected = true
	m.mu.Unlock()

	m.logger.Info("document store connected", "database", m.cfg.Database)
	return nil
}

// Connected reports whether Connect succeeded.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Database returns the active database handle, or nil when not
// connected.
func (m *Manager) Database() *mongo.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// Disconnect releases the connection pool. Call once at shutdown.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil
	}
	m.connected = false
	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect document store: %w", err)
	}
	m.logger.Info("document store disconnected")
	return nil
}

// VerifyVectorIndex checks that the operator-managed vector index
// exists on the memories collection. The result is cached after the
// first success; a missing index fails loudly with
// VECTOR_INDEX_MISSING since it indicates misconfiguration, not an
// empty dataset.
func (m *Manager) VerifyVectorIndex(ctx context.Context) error {
	m.vectorMu.Lock()
	defer m.vectorMu.Unlock()
	if m.vectorVerified {
		return nil
	}

	db := m.Database()
	if db == nil {
		return errs.ErrBackendUnavailable("")
	}

	cursor, err := db.Collection(collMemories).SearchIndexes().List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list search indexes: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	for cursor.Next(ctx) {
		var idx struct {
			Name string `bson:"name"`
		}
		if err := cursor.Decode(&idx); err != nil {
			return fmt.Errorf("decode search index: %w", err)
		}
		if idx.Name == VectorIndexName {
			m.vectorVerified = true
			return nil
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("iterate search indexes: %w", err)
	}

	return errs.ErrVectorIndexMissing(VectorIndexName)
}

// Repositories returns the document-store bundle. The embedding
// provider populates memory vectors at write time and embeds search
// queries.
func (m *Manager) Repositories(provider embedding.Provider) store.Repositories {
	return &cloudRepos{m: m, provider: provider}
}

// ensureIndexes idempotently creates the secondary indexes the
// repositories query by. CreateMany is a no-op for indexes that
// already exist.
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	collections := map[string][]mongo.IndexModel{
		collTasks: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
		},
		collHistory: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "changed_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "task_id", Value: 1}}},
		},
		collMemories: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "session_id", Value: 1}}},
		},
	}

	for name, indexes := range collections {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes for %s: %w", name, err)
		}
	}
	return nil
}
