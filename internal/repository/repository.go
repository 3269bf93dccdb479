package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/cursor"
	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
	"github.com/forgo/catalog/internal/filter"
)

// ErrNilEntity is returned when a nil entity is saved.
var ErrNilEntity = errors.New("nil entity")

// Repository handles data access for one entity kind
type Repository[T entity.Model] struct {
	db   *database.Manager
	kind string
	newT func() T
	log  *slog.Logger
}

// New creates a repository for the kind newT produces.
func New[T entity.Model](db *database.Manager, newT func() T) *Repository[T] {
	kind := newT().Base().Kind()
	return &Repository[T]{
		db:   db,
		kind: kind,
		newT: newT,
		log:  db.Logger().With(slog.String("kind", kind)),
	}
}

// ForKind creates a repository for a kind registered with the entity
// registry. It serves callers that only know the kind by name.
func ForKind(db *database.Manager, kind string) (*Repository[entity.Model], error) {
	if _, ok := entity.SchemaOf(kind); !ok {
		return nil, fmt.Errorf("%w: %q", entity.ErrUnknownKind, kind)
	}
	return New(db, func() entity.Model {
		m, _ := entity.NewOf(kind)
		return m
	}), nil
}

// Kind returns the kind name, which is also the collection name.
func (r *Repository[T]) Kind() string { return r.kind }

// New returns an empty entity of the repository's kind.
func (r *Repository[T]) New() T { return r.newT() }

func isNil(m any) bool {
	if m == nil {
		return true
	}
	v := reflect.ValueOf(m)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func (r *Repository[T]) wrap(doc bson.D) T {
	t := r.newT()
	t.Base().SetDocument(doc)
	return t
}

// Find returns a cursor over every entity of the kind.
func (r *Repository[T]) Find(ctx context.Context) *cursor.Cursor[T] {
	return r.FindWhere(ctx, bson.D{})
}

// FindWhere returns a cursor over the entities matching f. Nothing is
// queried until the cursor is read.
func (r *Repository[T]) FindWhere(ctx context.Context, f any) *cursor.Cursor[T] {
	if f == nil {
		f = bson.D{}
	}
	sess := r.db.Session(ctx)
	return cursor.New(func(ctx context.Context, opts database.FindOptions) (cursor.Rows, error) {
		st, err := sess.Query(ctx, r.kind, f, opts)
		if err != nil {
			return nil, err
		}
		return st, nil
	}, r.kind, r.newT)
}

// FindOne counts the matches of f first and fetches one only when there
// are any. No match yields database.ErrNotFound.
func (r *Repository[T]) FindOne(ctx context.Context, f any) (T, error) {
	var zero T
	n, err := r.CountWhere(ctx, f)
	if err != nil {
		return zero, err
	}
	if n == 0 {
		return zero, fmt.Errorf("%w: no %s matched", database.ErrNotFound, r.kind)
	}
	return r.FindWhere(ctx, f).Limit(1).First(ctx)
}

// Get fetches an entity by the hex form of its identity. A malformed id
// yields database.ErrInvalidID.
func (r *Repository[T]) Get(ctx context.Context, hex string) (T, error) {
	id, err := database.ParseID(hex)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.GetByObjectID(ctx, id)
}

// FindByID is Get.
func (r *Repository[T]) FindByID(ctx context.Context, hex string) (T, error) {
	return r.Get(ctx, hex)
}

// GetByObjectID fetches an entity by identity.
func (r *Repository[T]) GetByObjectID(ctx context.Context, id bson.ObjectID) (T, error) {
	doc, err := r.db.Session(ctx).Get(ctx, r.kind, id)
	if err != nil {
		var zero T
		return zero, err
	}
	return r.wrap(doc), nil
}

// Save upserts m by its unique filter. When a persisted counterpart
// exists, m is merged onto it (see entity.Entity.Update) and the merged
// copy is stored and returned; otherwise m is inserted, receiving an
// identity if it has none.
func (r *Repository[T]) Save(ctx context.Context, m T) (T, error) {
	var zero T
	if isNil(m) {
		return zero, ErrNilEntity
	}
	sess := r.db.Session(ctx)

	target := m
	var previous entity.Model
	if f := m.UniqueFilter(); len(f) > 0 {
		existing, err := r.FindOne(ctx, f)
		switch {
		case err == nil:
			previous = r.wrap(filter.Clone(existing.Base().Document()))
			if err := existing.Base().Update(m); err != nil {
				return zero, err
			}
			target = existing
		case errors.Is(err, database.ErrNotFound):
		default:
			return zero, err
		}
	}

	b := target.Base()
	b.EnsureIdentity()
	r.prepare(target, previous)
	if err := b.SetUpdateDate(time.Now()); err != nil {
		return zero, err
	}

	saved, err := sess.Save(ctx, r.kind, b.Document())
	if err != nil {
		return zero, err
	}
	b.SetDocument(saved)
	return target, nil
}

func (r *Repository[T]) prepare(m T, previous entity.Model) {
	m.Base().UpdateBeforeSave(previous)
	if bs, ok := any(m).(entity.BeforeSaver); ok {
		bs.BeforeSave(previous)
	}
}

// Clean assigns an identity and applies the pre-save normalization
// without storing m. Exports of unsaved entities use it.
func (r *Repository[T]) Clean(m T) {
	if isNil(m) {
		return
	}
	m.Base().EnsureIdentity()
	r.prepare(m, nil)
}

// Remove deletes m by identity. A nil entity or one without identity is
// a no-op.
func (r *Repository[T]) Remove(ctx context.Context, m T) (int64, error) {
	if isNil(m) {
		return 0, nil
	}
	id, ok := m.Base().ObjectID()
	if !ok {
		return 0, nil
	}
	return r.db.Session(ctx).Delete(ctx, r.kind, bson.D{{Key: entity.FieldObjectID, Value: id}})
}

// RemoveWhere deletes every entity matching f. A nil filter is a no-op.
func (r *Repository[T]) RemoveWhere(ctx context.Context, f any) (int64, error) {
	if f == nil {
		return 0, nil
	}
	return r.db.Session(ctx).DeleteMany(ctx, r.kind, f)
}

// Count counts every entity of the kind.
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.CountWhere(ctx, bson.D{})
}

// CountWhere counts the entities matching f.
func (r *Repository[T]) CountWhere(ctx context.Context, f any) (int64, error) {
	if f == nil {
		f = bson.D{}
	}
	return r.db.Session(ctx).Count(ctx, r.kind, f)
}

// UpdateOne applies update to the first entity matching f.
func (r *Repository[T]) UpdateOne(ctx context.Context, f, update any) (database.UpdateResult, error) {
	return r.db.Session(ctx).UpdateOne(ctx, r.kind, f, update)
}

// UpdateMany applies update to every entity matching f.
func (r *Repository[T]) UpdateMany(ctx context.Context, f, update any) (database.UpdateResult, error) {
	return r.db.Session(ctx).UpdateMany(ctx, r.kind, f, update)
}

// Aggregate runs pipeline over the kind's collection.
func (r *Repository[T]) Aggregate(ctx context.Context, pipeline []bson.D) ([]bson.D, error) {
	return r.db.Session(ctx).Aggregate(ctx, r.kind, pipeline)
}
