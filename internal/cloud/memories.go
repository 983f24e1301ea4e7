package cloud

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/taskvault/taskvault/internal/embedding"
	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

// numCandidatesFactor oversizes the approximate nearest-neighbor
// candidate pool relative to topK. Atlas recommends 10-20x for recall.
const numCandidatesFactor = 15

type memoryDoc struct {
	ID        string    `bson:"_id"`
	ProjectID string    `bson:"project_id"`
	SessionID string    `bson:"session_id"`
	TaskID    string    `bson:"task_id,omitempty"`
	Content   string    `bson:"content"`
	Embedding []float32 `bson:"embedding,omitempty"`
	CreatedAt time.Time `bson:"created_at"`

	// Populated only by the search pipeline via $meta.
	Score float64 `bson:"score,omitempty"`
}

func (d *memoryDoc) toMemory() *store.Memory {
	return &store.Memory{
		ID:        d.ID,
		ProjectID: d.ProjectID,
		SessionID: d.SessionID,
		TaskID:    d.TaskID,
		Content:   d.Content,
		Embedding: d.Embedding,
		CreatedAt: d.CreatedAt.UTC(),
	}
}

// MemoryRepo implements store.MemoryRepository over the document
// store, including native vector search.
type MemoryRepo struct {
	m        *Manager
	provider embedding.Provider
}

func (r *MemoryRepo) coll() (*mongo.Collection, error) {
	db := r.m.Database()
	if db == nil {
		return nil, errs.ErrBackendUnavailable("")
	}
	return db.Collection(collMemories), nil
}

// Create persists a memory entry. When the caller did not supply a
// vector, one is computed synchronously; provider unavailability and
// rate limiting are soft failures and the record is written without a
// vector so content is never lost. Caller-supplied vectors must match
// the provider's dimensionality.
func (r *MemoryRepo) Create(ctx context.Context, mem *store.Memory) (*store.Memory, error) {
	if got, want := len(mem.Embedding), r.provider.Dimensions(); got > 0 && got != want {
		return nil, errs.ErrDimensionMismatch(got, want)
	}

	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	stored := *mem
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.CreatedAt = stamp(stored.CreatedAt)

	if len(stored.Embedding) == 0 {
		vec, err := r.provider.Embed(ctx, stored.Content)
		switch {
		case err == nil:
			stored.Embedding = vec
		case errs.HasCode(err, errs.CodeProviderUnavailable), errs.HasCode(err, errs.CodeRateLimited):
			r.m.logger.Warn("memory stored without vector",
				"memory_id", stored.ID, "reason", err)
		default:
			return nil, fmt.Errorf("embed memory content: %w", err)
		}
	}

	doc := memoryDoc{
		ID:        stored.ID,
		ProjectID: stored.ProjectID,
		SessionID: stored.SessionID,
		TaskID:    stored.TaskID,
		Content:   stored.Content,
		Embedding: stored.Embedding,
		CreatedAt: stored.CreatedAt,
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return &stored, nil
}

// Get retrieves a memory by ID.
func (r *MemoryRepo) Get(ctx context.Context, id string) (*store.Memory, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	var doc memoryDoc
	err = coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound("memory", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return doc.toMemory(), nil
}

// List pages through a project's memories ordered by (created_at, _id).
// Vectorless records are included; they are only invisible to Search.
func (r *MemoryRepo) List(ctx context.Context, projectID string, opts store.ListOptions) (*store.Page[*store.Memory], error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	filter, err := keysetFilter(projectID, "created_at", opts.Cursor)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit+1)))
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []memoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode memories: %w", err)
	}

	items := make([]*store.Memory, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toMemory())
	}

	page := &store.Page[*store.Memory]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Delete removes a memory by ID.
func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	coll, err := r.coll()
	if err != nil {
		return err
	}

	res, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound("memory", id)
	}
	return nil
}

// Search runs native vector search scoped to one project. The vector
// index is verified lazily on first use. An unavailable or rate-limited
// embedding provider degrades to zero results rather than an error: search is
// best-effort retrieval, and a missing index is the only hard
// misconfiguration.
func (r *MemoryRepo) Search(ctx context.Context, projectID, query string, topK int, minScore float64) ([]store.Match, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	if err := r.m.VerifyVectorIndex(ctx); err != nil {
		return nil, err
	}

	vec, ok, err := r.queryVector(ctx, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	queryVector := make(bson.A, len(vec))
	for i, v := range vec {
		queryVector[i] = v
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: VectorIndexName},
			{Key: "path", Value: "embedding"},
			{Key: "queryVector", Value: queryVector},
			{Key: "numCandidates", Value: topK * numCandidatesFactor},
			{Key: "limit", Value: topK},
			{Key: "filter", Value: bson.D{{Key: "project_id", Value: projectID}}},
		}}},
		{{Key: "$addFields", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "score", Value: bson.D{{Key: "$gte", Value: minScore}}},
		}}},
	}

	cur, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []memoryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	matches := make([]store.Match, 0, len(docs))
	for i := range docs {
		matches = append(matches, store.Match{
			Memory: docs[i].toMemory(),
			Score:  docs[i].Score,
		})
	}
	sortMatches(matches)
	return matches, nil
}

// queryVector embeds the search query. ok reports whether a vector was
// produced: an unavailable or rate-limited provider returns ok=false
// with no error, so that search degrades to empty results.
func (r *MemoryRepo) queryVector(ctx context.Context, query string) (vec []float32, ok bool, err error) {
	vec, err = r.provider.Embed(ctx, query)
	switch {
	case err == nil:
		return vec, true, nil
	case errs.HasCode(err, errs.CodeProviderUnavailable), errs.HasCode(err, errs.CodeRateLimited):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("embed search query: %w", err)
	}
}

// sortMatches orders by score descending, ties broken by most recent
// CreatedAt. The pipeline already returns score order; the tie-break
// is ours.
func sortMatches(matches []store.Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Memory.CreatedAt.After(matches[j].Memory.CreatedAt)
	})
}
