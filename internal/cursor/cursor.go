// Package cursor provides a lazy, single-pass sequence of entities decoded
// from a store query.
//
// A Cursor does not touch the store until the first element is requested.
// Narrowing calls (Sort, Limit, Skip, Project) must come before that:
//
//	c := cursor.New(open, "product", newProduct).
//	    Sort(bson.D{{Key: "name", Value: 1}}).
//	    Limit(20)
//	defer c.Close(ctx)
//	for p := range c.All(ctx) {
//	    ...
//	}
//	if err := c.Err(); err != nil { ... }
//
// A document that fails to decode is logged and skipped; the traversal
// continues.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
)

// ErrStarted is recorded when a narrowing call is made after iteration
// began. The call has no effect.
var ErrStarted = errors.New("cursor already started")

// Rows is the server-side cursor a Cursor reads from. *database.Stream
// implements it.
type Rows interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// Opener runs the query with the narrowing options collected so far.
type Opener func(ctx context.Context, opts database.FindOptions) (Rows, error)

// Cursor is a lazy sequence of entities of one kind. It is not safe for
// concurrent use.
type Cursor[T entity.Model] struct {
	open    Opener
	kind    string
	newT    func() T
	opts    database.FindOptions
	rows    Rows
	started bool
	done    bool
	skipped int
	err     error
}

// New returns a cursor over the rows open produces, decoding each into a
// value from newT.
func New[T entity.Model](open Opener, kind string, newT func() T) *Cursor[T] {
	return &Cursor[T]{open: open, kind: kind, newT: newT}
}

// Failed returns a cursor that yields nothing and reports err.
func Failed[T entity.Model](kind string, err error) *Cursor[T] {
	return &Cursor[T]{kind: kind, started: true, done: true, err: err}
}

func (c *Cursor[T]) narrow(what string) bool {
	if !c.started {
		return true
	}
	slog.Warn("cursor narrowed after start", "kind", c.kind, "call", what)
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s", ErrStarted, what)
	}
	return false
}

// Sort orders the results by spec, e.g. {name: 1}.
func (c *Cursor[T]) Sort(spec bson.D) *Cursor[T] {
	if c.narrow("sort") {
		c.opts.Sort = spec
	}
	return c
}

// Limit caps the number of results. Zero means no limit.
func (c *Cursor[T]) Limit(n int64) *Cursor[T] {
	if c.narrow("limit") {
		c.opts.Limit = n
	}
	return c
}

// Skip drops the first n results.
func (c *Cursor[T]) Skip(n int64) *Cursor[T] {
	if c.narrow("skip") {
		c.opts.Skip = n
	}
	return c
}

// Project restricts the returned fields, e.g. {name: 1}.
func (c *Cursor[T]) Project(spec bson.D) *Cursor[T] {
	if c.narrow("project") {
		c.opts.Projection = spec
	}
	return c
}

func (c *Cursor[T]) start(ctx context.Context) bool {
	if c.started {
		return !c.done
	}
	c.started = true
	rows, err := c.open(ctx, c.opts)
	if err != nil {
		c.err = err
		c.done = true
		return false
	}
	c.rows = rows
	return true
}

// Next advances and decodes the next entity. It returns false once the
// cursor is exhausted or failed; Err distinguishes the two.
func (c *Cursor[T]) Next(ctx context.Context) (T, bool) {
	var zero T
	if !c.start(ctx) {
		return zero, false
	}
	for c.rows.Next(ctx) {
		var doc bson.D
		if err := c.rows.Decode(&doc); err != nil {
			c.skipped++
			slog.WarnContext(ctx, "skipping undecodable document",
				"kind", c.kind,
				"error", err)
			continue
		}
		t := c.newT()
		t.Base().SetDocument(doc)
		return t, true
	}
	if err := c.rows.Err(); err != nil && c.err == nil {
		c.err = err
	}
	_ = c.finish(ctx)
	return zero, false
}

// First returns the first entity and closes the cursor. An empty result
// yields database.ErrNotFound.
func (c *Cursor[T]) First(ctx context.Context) (T, error) {
	defer c.Close(ctx)
	t, ok := c.Next(ctx)
	if ok {
		return t, nil
	}
	if c.err != nil {
		return t, c.err
	}
	return t, fmt.Errorf("%w: no %s matched", database.ErrNotFound, c.kind)
}

// All yields every remaining entity. Breaking out of the loop closes the
// cursor.
func (c *Cursor[T]) All(ctx context.Context) iter.Seq[T] {
	return func(yield func(T) bool) {
		defer c.Close(ctx)
		for {
			t, ok := c.Next(ctx)
			if !ok || !yield(t) {
				return
			}
		}
	}
}

// Collect drains the cursor into a slice.
func (c *Cursor[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for t := range c.All(ctx) {
		out = append(out, t)
	}
	return out, c.Err()
}

// Skipped returns how many documents failed to decode so far.
func (c *Cursor[T]) Skipped() int { return c.skipped }

// Err returns the first fault the cursor hit, including misuse.
func (c *Cursor[T]) Err() error { return c.err }

func (c *Cursor[T]) finish(ctx context.Context) error {
	c.done = true
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close(ctx)
	c.rows = nil
	if err != nil && c.err == nil {
		c.err = err
	}
	return err
}

// Close releases the underlying cursor and its connection hold. It is
// safe to call more than once.
func (c *Cursor[T]) Close(ctx context.Context) error {
	c.started = true
	return c.finish(ctx)
}
