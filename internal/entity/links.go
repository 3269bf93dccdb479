package entity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/filter"
)

// Fetcher loads one document by identity. *database.Session and
// *database.Manager implement it.
type Fetcher interface {
	Get(ctx context.Context, coll string, id bson.ObjectID) (bson.D, error)
}

func asObjectID(v any) (bson.ObjectID, bool) {
	switch x := v.(type) {
	case bson.ObjectID:
		return x, !x.IsZero()
	case string:
		id, err := bson.ObjectIDFromHex(x)
		return id, err == nil
	}
	return bson.ObjectID{}, false
}

// LinkID returns the identity stored in the link field name. A hex string
// is accepted.
func (e *Entity) LinkID(name string) (bson.ObjectID, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return bson.ObjectID{}, false
	}
	id, ok := asObjectID(v)
	if !ok {
		e.readFailed(name, KindLink, v)
	}
	return id, ok
}

// LinkIDs returns the identities stored in the link list name. Elements
// that are not identities are skipped.
func (e *Entity) LinkIDs(name string) []bson.ObjectID {
	list, _ := e.List(name)
	ids := make([]bson.ObjectID, 0, len(list))
	for _, v := range list {
		if id, ok := asObjectID(v); ok {
			ids = append(ids, id)
		} else {
			e.readFailed(name, KindLink, v)
		}
	}
	return ids
}

// SetLink stores the identity of target under name. A target without an
// identity clears the link.
func (e *Entity) SetLink(name string, target Model) error {
	if target == nil {
		return e.set(name, nil)
	}
	id, ok := target.Base().ObjectID()
	if !ok {
		return e.set(name, nil)
	}
	return e.set(name, id)
}

// SetLinks stores the identities of targets under name. Targets without
// an identity are skipped.
func (e *Entity) SetLinks(name string, targets ...Model) error {
	list := make(bson.A, 0, len(targets))
	for _, t := range targets {
		if t == nil {
			continue
		}
		if id, ok := t.Base().ObjectID(); ok {
			list = append(list, id)
		}
	}
	return e.set(name, list)
}

// refKind returns kind, or the Ref declared for name when kind is empty.
func (e *Entity) refKind(name, kind string) (string, error) {
	if kind != "" {
		return kind, nil
	}
	if e.schema != nil {
		if f, ok := e.schema.Field(name); ok && f.Ref != "" {
			return f.Ref, nil
		}
	}
	return "", fmt.Errorf("%w: no target kind for %s.%s", ErrUnknownKind, e.Kind(), name)
}

func load(ctx context.Context, f Fetcher, kind string, id bson.ObjectID) (Model, error) {
	m, err := NewOf(kind)
	if err != nil {
		return nil, err
	}
	doc, err := f.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	m.Base().SetDocument(doc)
	return m, nil
}

// Link resolves the link field name to an entity of kind with one round
// trip. The result is never cached. An empty kind uses the field's Ref.
func (e *Entity) Link(ctx context.Context, f Fetcher, name, kind string) (Model, error) {
	kind, err := e.refKind(name, kind)
	if err != nil {
		return nil, err
	}
	id, ok := e.LinkID(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no link", database.ErrNotFound, e.Kind(), name)
	}
	return load(ctx, f, kind, id)
}

// Links resolves every identity in the link list name, one round trip
// each, in order. Targets that no longer exist are logged and skipped;
// any other fault stops the resolution.
func (e *Entity) Links(ctx context.Context, f Fetcher, name, kind string) ([]Model, error) {
	kind, err := e.refKind(name, kind)
	if err != nil {
		return nil, err
	}
	ids := e.LinkIDs(name)
	out := make([]Model, 0, len(ids))
	for _, id := range ids {
		m, err := load(ctx, f, kind, id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				slog.WarnContext(ctx, "dangling link",
					"kind", e.Kind(),
					"field", name,
					"id", e.ID(),
					"target", id.Hex())
				continue
			}
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}

func as[T Model](m Model) (T, error) {
	t, ok := m.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: registry returned %T, want %T", ErrUnknownKind, m, zero)
	}
	return t, nil
}

// LinkAs resolves the link field name to its declared Ref kind.
func LinkAs[T Model](ctx context.Context, f Fetcher, e *Entity, name string) (T, error) {
	m, err := e.Link(ctx, f, name, "")
	if err != nil {
		var zero T
		return zero, err
	}
	return as[T](m)
}

// LinksAs resolves the link list name to its declared Ref kind.
func LinksAs[T Model](ctx context.Context, f Fetcher, e *Entity, name string) ([]T, error) {
	ms, err := e.Links(ctx, f, name, "")
	out := make([]T, 0, len(ms))
	for _, m := range ms {
		t, terr := as[T](m)
		if terr != nil {
			return out, terr
		}
		out = append(out, t)
	}
	return out, err
}

// EmbeddedList materializes the sub-documents stored under name as
// entities of the field's Ref kind. Embedded entities carry no identity.
func EmbeddedList[T Model](e *Entity, name string) ([]T, error) {
	kind, err := e.refKind(name, "")
	if err != nil {
		return nil, err
	}
	list, _ := e.List(name)
	out := make([]T, 0, len(list))
	for _, v := range list {
		d, ok := filter.AsDoc(v)
		if !ok {
			e.readFailed(name, KindEmbeddedList, v)
			continue
		}
		m, err := NewOf(kind)
		if err != nil {
			return out, err
		}
		m.Base().SetDocument(filter.Clone(d))
		t, err := as[T](m)
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

// SetEmbeddedList flattens items into sub-documents stored under name,
// dropping their identity and creation date.
// A nil slice leaves the field untouched; an empty one stores an empty
// list.
func SetEmbeddedList[T Model](e *Entity, name string, items []T) error {
	if items == nil {
		return nil
	}
	list := make(bson.A, 0, len(items))
	for _, it := range items {
		b := it.Base()
		d := make(bson.D, 0, len(b.doc))
		for _, el := range filter.Clone(b.doc) {
			if el.Key == FieldObjectID || el.Key == FieldID || el.Key == FieldCreationDate {
				continue
			}
			d = append(d, el)
		}
		list = append(list, d)
	}
	return e.set(name, list)
}
