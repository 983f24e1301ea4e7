package cloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	errs "github.com/taskvault/taskvault/internal/errors"
	"github.com/taskvault/taskvault/internal/store"
)

type historyDoc struct {
	ID         string    `bson:"_id"`
	TaskID     string    `bson:"task_id"`
	ProjectID  string    `bson:"project_id"`
	FromStatus string    `bson:"from_status"`
	ToStatus   string    `bson:"to_status"`
	Actor      string    `bson:"actor"`
	ChangedAt  time.Time `bson:"changed_at"`
}

func (d *historyDoc) toHistory() *store.TaskHistory {
	return &store.TaskHistory{
		ID:         d.ID,
		TaskID:     d.TaskID,
		ProjectID:  d.ProjectID,
		FromStatus: store.TaskStatus(d.FromStatus),
		ToStatus:   store.TaskStatus(d.ToStatus),
		Actor:      d.Actor,
		ChangedAt:  d.ChangedAt.UTC(),
	}
}

// TaskHistoryRepo implements the append-only status trail over the
// document store.
type TaskHistoryRepo struct {
	m *Manager
}

func (r *TaskHistoryRepo) coll() (*mongo.Collection, error) {
	db := r.m.Database()
	if db == nil {
		return nil, errs.ErrBackendUnavailable("")
	}
	return db.Collection(collHistory), nil
}

// Append writes one immutable transition record.
func (r *TaskHistoryRepo) Append(ctx context.Context, h *store.TaskHistory) (*store.TaskHistory, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	stored := *h
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.ChangedAt = stamp(stored.ChangedAt)

	doc := historyDoc{
		ID:         stored.ID,
		TaskID:     stored.TaskID,
		ProjectID:  stored.ProjectID,
		FromStatus: string(stored.FromStatus),
		ToStatus:   string(stored.ToStatus),
		Actor:      stored.Actor,
		ChangedAt:  stored.ChangedAt,
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert task history: %w", err)
	}
	return &stored, nil
}

// Get retrieves one transition record by ID.
func (r *TaskHistoryRepo) Get(ctx context.Context, id string) (*store.TaskHistory, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	var doc historyDoc
	err = coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound("task history", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task history %s: %w", id, err)
	}
	return doc.toHistory(), nil
}

// List pages through a project's transitions ordered by (changed_at, _id).
func (r *TaskHistoryRepo) List(ctx context.Context, projectID string, opts store.ListOptions) (*store.Page[*store.TaskHistory], error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultPageSize
	}

	filter, err := keysetFilter(projectID, "changed_at", opts.Cursor)
	if err != nil {
		return nil, err
	}

	cur, err := coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "changed_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit+1)))
	if err != nil {
		return nil, fmt.Errorf("list task history: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode task history: %w", err)
	}

	items := make([]*store.TaskHistory, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toHistory())
	}

	page := &store.Page[*store.TaskHistory]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.ChangedAt, last.ID)
	}
	return page, nil
}
