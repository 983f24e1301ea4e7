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

type taskDoc struct {
	ID          string    `bson:"_id"`
	ProjectID   string    `bson:"project_id"`
	Status      string    `bson:"status"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

func (d *taskDoc) toTask() *store.Task {
	return &store.Task{
		ID:          d.ID,
		ProjectID:   d.ProjectID,
		Status:      store.TaskStatus(d.Status),
		Title:       d.Title,
		Description: d.Description,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
}

// TaskRepo implements store.TaskRepository over the document store.
type TaskRepo struct {
	m *Manager
}

func (r *TaskRepo) coll() (*mongo.Collection, error) {
	db := r.m.Database()
	if db == nil {
		return nil, errs.ErrBackendUnavailable("")
	}
	return db.Collection(collTasks), nil
}

// Create inserts a task document.
func (r *TaskRepo) Create(ctx context.Context, t *store.Task) (*store.Task, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	stored := *t
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Status == "" {
		stored.Status = store.StatusTodo
	}
	if !store.ValidTaskStatus(stored.Status) {
		return nil, errs.ErrConfigInvalid("status", fmt.Sprintf("unknown task status %q", stored.Status))
	}
	stored.CreatedAt = stamp(stored.CreatedAt)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	stored.UpdatedAt = stamp(stored.UpdatedAt)

	doc := taskDoc{
		ID:          stored.ID,
		ProjectID:   stored.ProjectID,
		Status:      string(stored.Status),
		Title:       stored.Title,
		Description: stored.Description,
		CreatedAt:   stored.CreatedAt,
		UpdatedAt:   stored.UpdatedAt,
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &stored, nil
}

// Get retrieves a task by ID.
func (r *TaskRepo) Get(ctx context.Context, id string) (*store.Task, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	var doc taskDoc
	err = coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrNotFound("task", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return doc.toTask(), nil
}

// List pages through a project's tasks ordered by (created_at, _id).
// The cursor is an opaque keyset token, never an offset, so pages stay
// correct under concurrent inserts.
func (r *TaskRepo) List(ctx context.Context, projectID string, opts store.ListOptions) (*store.Page[*store.Task], error) {
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
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	items := make([]*store.Task, 0, len(docs))
	for i := range docs {
		items = append(items, docs[i].toTask())
	}

	page := &store.Page[*store.Task]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = store.EncodeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// Update applies a partial update and appends a history document when
// the status changes.
func (r *TaskRepo) Update(ctx context.Context, id string, patch store.TaskPatch) (*store.Task, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	t, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	prior := t.Status
	if patch.Status != nil {
		if !store.ValidTaskStatus(*patch.Status) {
			return nil, errs.ErrConfigInvalid("status", fmt.Sprintf("unknown task status %q", *patch.Status))
		}
		t.Status = *patch.Status
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	t.UpdatedAt = stamp(time.Now())

	res, err := coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: string(t.Status)},
		{Key: "title", Value: t.Title},
		{Key: "description", Value: t.Description},
		{Key: "updated_at", Value: t.UpdatedAt},
	}}})
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return nil, errs.ErrNotFound("task", id)
	}

	if patch.Status != nil && *patch.Status != prior {
		history := &TaskHistoryRepo{m: r.m}
		if _, err := history.Append(ctx, &store.TaskHistory{
			TaskID:     id,
			ProjectID:  t.ProjectID,
			FromStatus: prior,
			ToStatus:   t.Status,
			Actor:      patch.Actor,
			ChangedAt:  t.UpdatedAt,
		}); err != nil {
			return nil, fmt.Errorf("append task history: %w", err)
		}
	}
	return t, nil
}

// Delete removes a task and its history trail.
func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	coll, err := r.coll()
	if err != nil {
		return err
	}

	res, err := coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return errs.ErrNotFound("task", id)
	}

	// No FK cascade in a document store; drop the trail explicitly.
	if _, err := r.m.Database().Collection(collHistory).DeleteMany(ctx, bson.D{{Key: "task_id", Value: id}}); err != nil {
		return fmt.Errorf("delete task history for %s: %w", id, err)
	}
	return nil
}

// keysetFilter builds a project-scoped filter continuing after the
// cursor position on (timeField, _id).
func keysetFilter(projectID, timeField, cursor string) (bson.D, error) {
	filter := bson.D{{Key: "project_id", Value: projectID}}
	if cursor == "" {
		return filter, nil
	}

	cur, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	filter = append(filter, bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: timeField, Value: bson.D{{Key: "$gt", Value: cur.CreatedAt}}}},
		bson.D{
			{Key: timeField, Value: cur.CreatedAt},
			{Key: "_id", Value: bson.D{{Key: "$gt", Value: cur.ID}}},
		},
	}})
	return filter, nil
}
