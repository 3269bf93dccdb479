package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgo/catalog/internal/filter"
)

// Session owns at most one open connection. Operations and cursors hold
// the connection while they run; it is closed when the last hold is
// released and batch mode is off. A Session is not safe for concurrent
// use.
type Session struct {
	id     string
	m      *Manager
	creds  Credentials
	conn   Conn
	holds  int
	batch  bool
	closed bool
	log    *slog.Logger
}

func newSession(m *Manager, creds Credentials) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		m:     m,
		creds: creds,
		log:   m.log.With(slog.String("session", id)),
	}
}

// ID returns the session's correlation id.
func (s *Session) ID() string { return s.id }

// IsOpen reports whether a connection is currently open.
func (s *Session) IsOpen() bool { return s.conn != nil }

// InBatch reports whether batch mode is on.
func (s *Session) InBatch() bool { return s.batch }

// Acquire opens the connection if needed and adds a hold on it. With force
// set an open connection is closed and reopened first.
func (s *Session) Acquire(ctx context.Context, force bool) error {
	if s.closed {
		return ErrNoSession
	}
	if force && s.conn != nil {
		s.closeConn(ctx)
	}
	if s.conn == nil {
		if s.m.sem != nil {
			if err := s.m.sem.Acquire(ctx, 1); err != nil {
				return fmt.Errorf("%w: %v", ErrConnection, err)
			}
		}
		openCtx := ctx
		if s.m.cfg.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			openCtx, cancel = context.WithTimeout(ctx, s.m.cfg.ConnectTimeout)
			defer cancel()
		}
		conn, err := s.m.driver.Open(openCtx, s.creds)
		if err != nil {
			if s.m.sem != nil {
				s.m.sem.Release(1)
			}
			s.log.Error("failed to open connection", "error", err)
			return err
		}
		s.conn = conn
		s.log.Debug("connection opened")
	}
	s.holds++
	return nil
}

// Release drops one hold. The connection closes when no holds remain and
// batch mode is off.
func (s *Session) Release(ctx context.Context) {
	if s.holds > 0 {
		s.holds--
	}
	if s.holds == 0 && !s.batch {
		s.closeConn(ctx)
	}
}

func (s *Session) closeConn(ctx context.Context) {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(ctx); err != nil {
		s.log.Warn("failed to close connection", "error", err)
	}
	s.conn = nil
	if s.m.sem != nil {
		s.m.sem.Release(1)
	}
	s.log.Debug("connection closed")
}

// Close ends batch mode, drops all holds and closes the connection. The
// session cannot be used afterwards.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.batch = false
	s.holds = 0
	s.closeConn(ctx)
	s.closed = true
	return nil
}

// StartBatch keeps the connection open across operations until EndBatch.
func (s *Session) StartBatch(ctx context.Context) error {
	if err := s.Acquire(ctx, false); err != nil {
		return err
	}
	s.batch = true
	s.Release(ctx)
	return nil
}

// EndBatch leaves batch mode, closing the connection if nothing holds it.
func (s *Session) EndBatch(ctx context.Context) {
	s.batch = false
	if s.holds == 0 {
		s.closeConn(ctx)
	}
}

// Batch runs fn in batch mode.
func (s *Session) Batch(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.batch {
		return fn(ctx)
	}
	if err := s.StartBatch(ctx); err != nil {
		return err
	}
	defer s.EndBatch(ctx)
	return fn(ctx)
}

// roundTrip runs fn against an acquired connection with retry. When keep is
// set and fn succeeds the hold is handed to the caller.
func roundTrip[T any](ctx context.Context, s *Session, op, coll string, keep bool, fn func(ctx context.Context, c Conn) (T, error)) (T, error) {
	ctx, span := s.m.tracer.Start(ctx, "db."+op, trace.WithAttributes(
		attribute.String("db.system", s.m.driver.Name()),
		attribute.String("db.collection", coll),
		attribute.String("db.session", s.id),
	))
	defer span.End()

	notify := func(err error, wait time.Duration) {
		s.log.Warn("retrying database operation",
			"op", op,
			"collection", coll,
			"wait", wait,
			"error", err)
	}
	v, err := retry(ctx, s.m.retry, notify, func(attempt int) (T, error) {
		var zero T
		if err := s.Acquire(ctx, attempt > 1 && s.holds == 0); err != nil {
			return zero, err
		}
		v, err := fn(ctx, s.conn)
		if err != nil || !keep {
			s.Release(ctx)
		}
		return v, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lvl := slog.LevelError
		if errors.Is(err, ErrNotFound) {
			lvl = slog.LevelDebug
		}
		s.log.Log(ctx, lvl, "database operation failed",
			"op", op,
			"collection", coll,
			"error", err)
		return v, &OpError{Op: op, Kind: coll, Err: err}
	}
	return v, nil
}

func normalize(f any) (bson.D, error) {
	d, err := filter.Normalize(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return d, nil
}

// Get fetches one document by identity.
func (s *Session) Get(ctx context.Context, coll string, id bson.ObjectID) (bson.D, error) {
	return roundTrip(ctx, s, "get", coll, false, func(ctx context.Context, c Conn) (bson.D, error) {
		cur, err := c.Find(ctx, coll, bson.D{{Key: "_id", Value: id}}, FindOptions{Limit: 1})
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)
		if !cur.Next(ctx) {
			if err := cur.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id.Hex())
		}
		var doc bson.D
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		return doc, nil
	})
}

// Query opens a stream over the documents matching filter. The stream
// holds the connection until it is closed or exhausted.
func (s *Session) Query(ctx context.Context, coll string, f any, opts FindOptions) (*Stream, error) {
	q, err := normalize(f)
	if err != nil {
		return nil, &OpError{Op: "query", Kind: coll, Err: err}
	}
	cur, err := roundTrip(ctx, s, "query", coll, true, func(ctx context.Context, c Conn) (DocCursor, error) {
		return c.Find(ctx, coll, q, opts)
	})
	if err != nil {
		return nil, err
	}
	return &Stream{cur: cur, s: s}, nil
}

// Count counts the documents matching filter.
func (s *Session) Count(ctx context.Context, coll string, f any) (int64, error) {
	q, err := normalize(f)
	if err != nil {
		return 0, &OpError{Op: "count", Kind: coll, Err: err}
	}
	return roundTrip(ctx, s, "count", coll, false, func(ctx context.Context, c Conn) (int64, error) {
		return c.Count(ctx, coll, q)
	})
}

// Aggregate runs pipeline over coll and collects the results.
func (s *Session) Aggregate(ctx context.Context, coll string, pipeline []bson.D) ([]bson.D, error) {
	return roundTrip(ctx, s, "aggregate", coll, false, func(ctx context.Context, c Conn) ([]bson.D, error) {
		cur, err := c.Aggregate(ctx, coll, pipeline)
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)
		var out []bson.D
		for cur.Next(ctx) {
			var doc bson.D
			if err := cur.Decode(&doc); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			out = append(out, doc)
		}
		return out, cur.Err()
	})
}

// UpdateOne applies update to the first document matching filter.
func (s *Session) UpdateOne(ctx context.Context, coll string, f, update any) (UpdateResult, error) {
	return s.update(ctx, "update_one", coll, f, update, false)
}

// UpdateMany applies update to every document matching filter.
func (s *Session) UpdateMany(ctx context.Context, coll string, f, update any) (UpdateResult, error) {
	return s.update(ctx, "update_many", coll, f, update, true)
}

func (s *Session) update(ctx context.Context, op, coll string, f, update any, many bool) (UpdateResult, error) {
	q, err := normalize(f)
	if err != nil {
		return UpdateResult{}, &OpError{Op: op, Kind: coll, Err: err}
	}
	u, err := normalize(update)
	if err != nil {
		return UpdateResult{}, &OpError{Op: op, Kind: coll, Err: err}
	}
	return roundTrip(ctx, s, op, coll, false, func(ctx context.Context, c Conn) (UpdateResult, error) {
		if many {
			return c.UpdateMany(ctx, coll, q, u)
		}
		return c.UpdateOne(ctx, coll, q, u)
	})
}

// Save replaces doc when it carries an _id, inserting it if absent from
// the store; otherwise it inserts doc under a newly generated identity.
// The stored document is returned.
func (s *Session) Save(ctx context.Context, coll string, doc bson.D) (bson.D, error) {
	if id, ok := lookupID(doc); ok && id != nil {
		return roundTrip(ctx, s, "save", coll, false, func(ctx context.Context, c Conn) (bson.D, error) {
			return doc, c.Replace(ctx, coll, doc)
		})
	}
	withID := append(bson.D{{Key: "_id", Value: bson.NewObjectID()}}, withoutKey(doc, "_id")...)
	return roundTrip(ctx, s, "insert", coll, false, func(ctx context.Context, c Conn) (bson.D, error) {
		return withID, c.Insert(ctx, coll, withID)
	})
}

// Delete removes the first document matching filter.
func (s *Session) Delete(ctx context.Context, coll string, f any) (int64, error) {
	q, err := normalize(f)
	if err != nil {
		return 0, &OpError{Op: "delete", Kind: coll, Err: err}
	}
	return roundTrip(ctx, s, "delete", coll, false, func(ctx context.Context, c Conn) (int64, error) {
		return c.DeleteOne(ctx, coll, q)
	})
}

// DeleteMany removes every document matching filter.
func (s *Session) DeleteMany(ctx context.Context, coll string, f any) (int64, error) {
	q, err := normalize(f)
	if err != nil {
		return 0, &OpError{Op: "delete_many", Kind: coll, Err: err}
	}
	return roundTrip(ctx, s, "delete_many", coll, false, func(ctx context.Context, c Conn) (int64, error) {
		return c.DeleteMany(ctx, coll, q)
	})
}

// Ping verifies the store is reachable.
func (s *Session) Ping(ctx context.Context) error {
	_, err := roundTrip(ctx, s, "ping", "", false, func(ctx context.Context, c Conn) (struct{}, error) {
		return struct{}{}, c.Ping(ctx)
	})
	return err
}

func lookupID(doc bson.D) (any, bool) {
	for _, e := range doc {
		if e.Key == "_id" {
			return e.Value, true
		}
	}
	return nil, false
}

func withoutKey(doc bson.D, key string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}
