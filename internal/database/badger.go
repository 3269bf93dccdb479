package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/filter"
)

// BadgerDriver stores documents in an embedded badger database. Keys are
// "<kind>/<id>" and values are BSON. The database is opened on first use
// and shared by every connection; connections are lightweight handles.
type BadgerDriver struct {
	config Config
	mu     sync.Mutex
	db     *badger.DB
}

// NewBadgerDriver creates a new badger driver
func NewBadgerDriver(cfg Config) *BadgerDriver {
	return &BadgerDriver{config: cfg}
}

func (d *BadgerDriver) Name() string { return DriverBadger }

// Open returns a handle on the shared database, opening it if needed.
// Credentials are ignored.
func (d *BadgerDriver) Open(ctx context.Context, _ Credentials) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		var opts badger.Options
		if d.config.InMemory || d.config.Path == "" {
			opts = badger.DefaultOptions("").WithInMemory(true)
		} else {
			opts = badger.DefaultOptions(d.config.Path)
		}
		db, err := badger.Open(opts.WithLogger(nil))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		d.db = db
	}
	return &badgerConn{db: d.db}, nil
}

// Close closes the shared database.
func (d *BadgerDriver) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

type badgerConn struct {
	db     *badger.DB
	closed bool
}

func badgerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrQuery), errors.Is(err, ErrUnsupported), errors.Is(err, ErrSerialization):
		return err
	case errors.Is(err, badger.ErrConflict):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("%w: %v", ErrConnection, err)
	case errors.Is(err, filter.ErrUnsupportedOperator):
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return fmt.Errorf("%w: %v", ErrQuery, err)
}

func docKey(coll string, id any) []byte {
	switch v := id.(type) {
	case bson.ObjectID:
		return []byte(coll + "/" + v.Hex())
	case string:
		return []byte(coll + "/" + v)
	}
	return []byte(fmt.Sprintf("%s/%v", coll, id))
}

type badgerDoc struct {
	key []byte
	doc bson.D
}

// scan visits every document of coll matching f.
func scan(txn *badger.Txn, coll string, f bson.D, fn func(d badgerDoc) (bool, error)) error {
	prefix := []byte(coll + "/")
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		var doc bson.D
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrSerialization, item.Key(), err)
		}
		ok, err := filter.Match(doc, f)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrQuery, err)
		}
		if !ok {
			continue
		}
		more, err := fn(badgerDoc{key: item.KeyCopy(nil), doc: doc})
		if err != nil || !more {
			return err
		}
	}
	return nil
}

func (c *badgerConn) check() error {
	if c.closed {
		return fmt.Errorf("%w: connection closed", ErrConnection)
	}
	return nil
}

func (c *badgerConn) collect(coll string, f bson.D, limit int) ([]badgerDoc, error) {
	var out []badgerDoc
	err := c.db.View(func(txn *badger.Txn) error {
		return scan(txn, coll, f, func(d badgerDoc) (bool, error) {
			out = append(out, d)
			return limit <= 0 || len(out) < limit, nil
		})
	})
	return out, badgerError(err)
}

func (c *badgerConn) Find(ctx context.Context, coll string, f bson.D, opts FindOptions) (DocCursor, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	limit := 0
	if len(opts.Sort) == 0 && opts.Limit > 0 {
		limit = int(opts.Skip + opts.Limit)
	}
	found, err := c.collect(coll, f, limit)
	if err != nil {
		return nil, err
	}

	docs := make([]bson.D, len(found))
	for i, d := range found {
		docs[i] = d.doc
	}
	filter.Sort(docs, opts.Sort)
	if opts.Skip > 0 {
		if int(opts.Skip) >= len(docs) {
			docs = nil
		} else {
			docs = docs[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int(opts.Limit) < len(docs) {
		docs = docs[:opts.Limit]
	}
	if len(opts.Projection) > 0 {
		for i := range docs {
			docs[i] = filter.Project(docs[i], opts.Projection)
		}
	}
	return &sliceCursor{docs: docs, pos: -1}, nil
}

func (c *badgerConn) Count(ctx context.Context, coll string, f bson.D) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	var n int64
	err := c.db.View(func(txn *badger.Txn) error {
		return scan(txn, coll, f, func(badgerDoc) (bool, error) {
			n++
			return true, nil
		})
	})
	return n, badgerError(err)
}

func (c *badgerConn) Aggregate(ctx context.Context, coll string, pipeline []bson.D) (DocCursor, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	found, err := c.collect(coll, nil, 0)
	if err != nil {
		return nil, err
	}
	docs := make([]bson.D, len(found))
	for i, d := range found {
		docs[i] = d.doc
	}
	out, err := filter.Aggregate(docs, pipeline)
	if err != nil {
		return nil, badgerError(err)
	}
	return &sliceCursor{docs: out, pos: -1}, nil
}

func (c *badgerConn) update(coll string, f, update bson.D, many bool) (UpdateResult, error) {
	var res UpdateResult
	err := c.db.Update(func(txn *badger.Txn) error {
		var matched []badgerDoc
		err := scan(txn, coll, f, func(d badgerDoc) (bool, error) {
			matched = append(matched, d)
			return many, nil
		})
		if err != nil {
			return err
		}
		for _, d := range matched {
			res.Matched++
			updated, err := filter.ApplyUpdate(d.doc, update)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrQuery, err)
			}
			if filter.Equal(updated, d.doc) {
				continue
			}
			raw, err := bson.Marshal(updated)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSerialization, err)
			}
			if err := txn.Set(d.key, raw); err != nil {
				return err
			}
			res.Modified++
		}
		return nil
	})
	return res, badgerError(err)
}

func (c *badgerConn) UpdateOne(ctx context.Context, coll string, f, update bson.D) (UpdateResult, error) {
	if err := c.check(); err != nil {
		return UpdateResult{}, err
	}
	return c.update(coll, f, update, false)
}

func (c *badgerConn) UpdateMany(ctx context.Context, coll string, f, update bson.D) (UpdateResult, error) {
	if err := c.check(); err != nil {
		return UpdateResult{}, err
	}
	return c.update(coll, f, update, true)
}

func (c *badgerConn) put(coll string, doc bson.D, insert bool) error {
	if err := c.check(); err != nil {
		return err
	}
	id, ok := lookupID(doc)
	if !ok || id == nil {
		return fmt.Errorf("%w: document has no _id", ErrQuery)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	key := docKey(coll, id)
	err = c.db.Update(func(txn *badger.Txn) error {
		if insert {
			_, err := txn.Get(key)
			if err == nil {
				return fmt.Errorf("%w: %s", ErrDuplicate, key)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return txn.Set(key, raw)
	})
	return badgerError(err)
}

func (c *badgerConn) Replace(ctx context.Context, coll string, doc bson.D) error {
	return c.put(coll, doc, false)
}

func (c *badgerConn) Insert(ctx context.Context, coll string, doc bson.D) error {
	return c.put(coll, doc, true)
}

func (c *badgerConn) delete(coll string, f bson.D, many bool) (int64, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	var n int64
	err := c.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		err := scan(txn, coll, f, func(d badgerDoc) (bool, error) {
			keys = append(keys, d.key)
			return many, nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, badgerError(err)
}

func (c *badgerConn) DeleteOne(ctx context.Context, coll string, f bson.D) (int64, error) {
	return c.delete(coll, f, false)
}

func (c *badgerConn) DeleteMany(ctx context.Context, coll string, f bson.D) (int64, error) {
	return c.delete(coll, f, true)
}

func (c *badgerConn) Ping(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	if c.db.IsClosed() {
		return fmt.Errorf("%w: database closed", ErrConnection)
	}
	return nil
}

func (c *badgerConn) Close(ctx context.Context) error {
	c.closed = true
	return nil
}

// sliceCursor iterates documents already loaded into memory.
type sliceCursor struct {
	docs []bson.D
	pos  int
	err  error
}

func (c *sliceCursor) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		if c.err == nil {
			c.err = err
		}
		c.pos = len(c.docs)
		return false
	}
	if c.pos+1 >= len(c.docs) {
		c.pos = len(c.docs)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Decode(v any) error {
	if c.pos < 0 || c.pos >= len(c.docs) {
		return errors.New("no current document")
	}
	doc := c.docs[c.pos]
	if d, ok := v.(*bson.D); ok {
		*d = filter.Clone(doc)
		return nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, v)
}

func (c *sliceCursor) Err() error { return c.err }

func (c *sliceCursor) Close(ctx context.Context) error {
	c.docs = nil
	return nil
}
