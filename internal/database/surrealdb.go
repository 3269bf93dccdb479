package database

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/filter"
)

// SurrealDriver stores each kind in a SurrealDB table. Record ids are the
// hex identity; the identity is also kept in the _oid field so filters on
// _id can be translated. The document field "id" is stored as _ext_id
// because SurrealDB reserves id.
type SurrealDriver struct {
	config Config
}

// NewSurrealDriver creates a new SurrealDB driver
func NewSurrealDriver(cfg Config) *SurrealDriver {
	return &SurrealDriver{config: cfg}
}

func (d *SurrealDriver) Name() string { return DriverSurrealDB }

func (d *SurrealDriver) endpoint() string {
	if d.config.URI != "" {
		return d.config.URI
	}
	return fmt.Sprintf("ws://%s:%s", d.config.Host, d.config.Port)
}

// Open establishes a connection to SurrealDB
func (d *SurrealDriver) Open(ctx context.Context, creds Credentials) (Conn, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, d.endpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if creds.User != "" {
		_, err = db.SignIn(ctx, &surrealdb.Auth{
			Username: creds.User,
			Password: creds.Password,
		})
		if err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("%w: signin failed: %v", ErrConnection, err)
		}
	}

	if err := db.Use(ctx, d.config.Namespace, d.config.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("%w: use failed: %v", ErrConnection, err)
	}

	return &surrealConn{db: db}, nil
}

// Close is a no-op; clients are owned by connections.
func (d *SurrealDriver) Close(ctx context.Context) error { return nil }

type surrealConn struct {
	db *surrealdb.DB
}

// isDuplicateError checks if an error is a unique constraint violation
func isDuplicateError(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}

func surrealError(err error) error {
	var netErr net.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &netErr), errors.Is(err, net.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case isDuplicateError(err.Error()):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return fmt.Errorf("%w: %v", ErrQuery, err)
}

// query runs one or more statements and returns the rows of the last one.
func (c *surrealConn) query(ctx context.Context, q string, vars map[string]any) ([]any, error) {
	results, err := surrealdb.Query[any](ctx, c.db, q, vars)
	if err != nil {
		return nil, surrealError(err)
	}
	if results == nil {
		return nil, nil
	}

	var last any
	for _, r := range *results {
		if r.Status != "OK" {
			if r.Error != nil {
				if isDuplicateError(r.Error.Message) {
					return nil, fmt.Errorf("%w: %s", ErrDuplicate, r.Error.Message)
				}
				return nil, fmt.Errorf("%w: %s", ErrQuery, r.Error.Message)
			}
			return nil, ErrQuery
		}
		last = r.Result
	}
	rows, ok := last.([]any)
	if !ok && last != nil {
		return []any{last}, nil
	}
	return rows, nil
}

// surrealMapper renames reserved fields and converts BSON values.
type surrealMapper struct{}

func (surrealMapper) Field(path string) string {
	switch path {
	case "_id":
		return "_oid"
	case "id":
		return "_ext_id"
	}
	return path
}

func (surrealMapper) Value(v any) any { return toSurreal(v) }

func toSurreal(v any) any {
	switch x := v.(type) {
	case bson.ObjectID:
		return x.Hex()
	case bson.DateTime:
		return x.Time().UTC()
	case bson.D:
		m := make(map[string]any, len(x))
		for _, e := range x {
			m[e.Key] = toSurreal(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[k] = toSurreal(val)
		}
		return m
	case bson.A:
		out := make([]any, len(x))
		for i := range x {
			out[i] = toSurreal(x[i])
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = toSurreal(x[i])
		}
		return out
	}
	return v
}

func fromSurreal(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return sortedDoc(x)
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = val
		}
		return sortedDoc(m)
	case []any:
		out := make(bson.A, len(x))
		for i := range x {
			out[i] = fromSurreal(x[i])
		}
		return out
	case models.CustomDateTime:
		return bson.NewDateTimeFromTime(x.Time)
	case *models.CustomDateTime:
		if x == nil {
			return nil
		}
		return bson.NewDateTimeFromTime(x.Time)
	case time.Time:
		return bson.NewDateTimeFromTime(x)
	case models.RecordID:
		return x.String()
	case *models.RecordID:
		if x == nil {
			return nil
		}
		return x.String()
	case uint64:
		return int64(x)
	case uint32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

func sortedDoc(m map[string]any) bson.D {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: fromSurreal(m[k])})
	}
	return doc
}

// toRecord splits doc into its record id and SurrealDB content.
func toRecord(doc bson.D) (string, map[string]any, error) {
	id, ok := lookupID(doc)
	if !ok {
		return "", nil, fmt.Errorf("%w: document has no _id", ErrQuery)
	}
	oid, ok := id.(bson.ObjectID)
	if !ok {
		return "", nil, fmt.Errorf("%w: _id must be an ObjectID", ErrUnsupported)
	}

	content := make(map[string]any, len(doc))
	for _, e := range doc {
		switch e.Key {
		case "_id":
			content["_oid"] = oid.Hex()
		case "id":
			content["_ext_id"] = toSurreal(e.Value)
		default:
			content[e.Key] = toSurreal(e.Value)
		}
	}
	return oid.Hex(), content, nil
}

// fromRecord rebuilds a document from a SurrealDB row.
func fromRecord(row any) (bson.D, error) {
	var m map[string]any
	switch r := row.(type) {
	case map[string]any:
		m = r
	case map[any]any:
		m = make(map[string]any, len(r))
		for k, v := range r {
			m[fmt.Sprint(k)] = v
		}
	default:
		return nil, fmt.Errorf("%w: unexpected row %T", ErrSerialization, row)
	}

	doc := bson.D{}
	if hex, ok := m["_oid"].(string); ok {
		oid, err := bson.ObjectIDFromHex(hex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
		doc = append(doc, bson.E{Key: "_id", Value: oid})
	}
	rest := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "_oid", "id":
		case "_ext_id":
			rest["id"] = v
		default:
			rest[k] = v
		}
	}
	return append(doc, sortedDoc(rest)...), nil
}

func (c *surrealConn) selectRows(ctx context.Context, coll string, f bson.D, opts FindOptions) ([]bson.D, error) {
	cond, vars, err := filter.SurrealQL(f, surrealMapper{})
	if err != nil {
		return nil, surrealFilterError(err)
	}
	vars["tb"] = coll

	var sb strings.Builder
	sb.WriteString("SELECT * FROM type::table($tb) WHERE ")
	sb.WriteString(cond)
	if len(opts.Sort) > 0 {
		order, err := filter.SurrealOrder(opts.Sort, surrealMapper{})
		if err != nil {
			return nil, surrealFilterError(err)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	}
	if opts.Skip > 0 {
		fmt.Fprintf(&sb, " START %d", opts.Skip)
	}

	rows, err := c.query(ctx, sb.String(), vars)
	if err != nil {
		return nil, err
	}
	docs := make([]bson.D, 0, len(rows))
	for _, row := range rows {
		doc, err := fromRecord(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func surrealFilterError(err error) error {
	if errors.Is(err, filter.ErrUnsupportedOperator) {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return fmt.Errorf("%w: %v", ErrQuery, err)
}

func (c *surrealConn) Find(ctx context.Context, coll string, f bson.D, opts FindOptions) (DocCursor, error) {
	docs, err := c.selectRows(ctx, coll, f, opts)
	if err != nil {
		return nil, err
	}
	if len(opts.Projection) > 0 {
		for i := range docs {
			docs[i] = filter.Project(docs[i], opts.Projection)
		}
	}
	return &sliceCursor{docs: docs, pos: -1}, nil
}

func (c *surrealConn) Count(ctx context.Context, coll string, f bson.D) (int64, error) {
	cond, vars, err := filter.SurrealQL(f, surrealMapper{})
	if err != nil {
		return 0, surrealFilterError(err)
	}
	vars["tb"] = coll

	rows, err := c.query(ctx, "SELECT count() AS n FROM type::table($tb) WHERE "+cond+" GROUP ALL", vars)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	doc, ok := fromSurreal(rows[0]).(bson.D)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected count row %T", ErrSerialization, rows[0])
	}
	n, _ := filter.Lookup(doc, "n")
	switch v := n.(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	}
	return 0, fmt.Errorf("%w: unexpected count value %T", ErrSerialization, n)
}

// Aggregate pushes a leading $match down as a WHERE clause and evaluates
// the remaining stages locally.
func (c *surrealConn) Aggregate(ctx context.Context, coll string, pipeline []bson.D) (DocCursor, error) {
	var where bson.D
	if len(pipeline) > 0 && len(pipeline[0]) == 1 && pipeline[0][0].Key == "$match" {
		if m, ok := filter.AsDoc(pipeline[0][0].Value); ok {
			where = m
			pipeline = pipeline[1:]
		}
	}
	docs, err := c.selectRows(ctx, coll, where, FindOptions{})
	if err != nil {
		return nil, err
	}
	out, err := filter.Aggregate(docs, pipeline)
	if err != nil {
		return nil, surrealFilterError(err)
	}
	return &sliceCursor{docs: out, pos: -1}, nil
}

// update applies the operators locally and writes the changed documents
// back in one transaction.
func (c *surrealConn) update(ctx context.Context, coll string, f, update bson.D, many bool) (UpdateResult, error) {
	opts := FindOptions{}
	if !many {
		opts.Limit = 1
	}
	docs, err := c.selectRows(ctx, coll, f, opts)
	if err != nil {
		return UpdateResult{}, err
	}

	res := UpdateResult{Matched: int64(len(docs))}
	tb := NewTxBuilder()
	for _, doc := range docs {
		updated, err := filter.ApplyUpdate(doc, update)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("%w: %v", ErrQuery, err)
		}
		if filter.Equal(updated, doc) {
			continue
		}
		rid, content, err := toRecord(updated)
		if err != nil {
			return UpdateResult{}, err
		}
		tb.Add("UPSERT type::thing($tb, $rid) CONTENT $doc", map[string]any{
			"tb":  coll,
			"rid": rid,
			"doc": content,
		})
		res.Modified++
	}
	if tb.Len() == 0 {
		return res, nil
	}
	q, vars := tb.Build()
	if _, err := c.query(ctx, q, vars); err != nil {
		return UpdateResult{}, err
	}
	return res, nil
}

func (c *surrealConn) UpdateOne(ctx context.Context, coll string, f, update bson.D) (UpdateResult, error) {
	return c.update(ctx, coll, f, update, false)
}

func (c *surrealConn) UpdateMany(ctx context.Context, coll string, f, update bson.D) (UpdateResult, error) {
	return c.update(ctx, coll, f, update, true)
}

func (c *surrealConn) write(ctx context.Context, stmt, coll string, doc bson.D) error {
	rid, content, err := toRecord(doc)
	if err != nil {
		return err
	}
	_, err = c.query(ctx, stmt+" type::thing($tb, $rid) CONTENT $doc", map[string]any{
		"tb":  coll,
		"rid": rid,
		"doc": content,
	})
	return err
}

func (c *surrealConn) Replace(ctx context.Context, coll string, doc bson.D) error {
	return c.write(ctx, "UPSERT", coll, doc)
}

func (c *surrealConn) Insert(ctx context.Context, coll string, doc bson.D) error {
	return c.write(ctx, "CREATE", coll, doc)
}

func (c *surrealConn) DeleteOne(ctx context.Context, coll string, f bson.D) (int64, error) {
	docs, err := c.selectRows(ctx, coll, f, FindOptions{Limit: 1})
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	id, _ := lookupID(docs[0])
	oid, ok := id.(bson.ObjectID)
	if !ok {
		return 0, fmt.Errorf("%w: stored document has no identity", ErrSerialization)
	}
	rows, err := c.query(ctx, "DELETE type::thing($tb, $rid) RETURN BEFORE", map[string]any{
		"tb":  coll,
		"rid": oid.Hex(),
	})
	return int64(len(rows)), err
}

func (c *surrealConn) DeleteMany(ctx context.Context, coll string, f bson.D) (int64, error) {
	cond, vars, err := filter.SurrealQL(f, surrealMapper{})
	if err != nil {
		return 0, surrealFilterError(err)
	}
	vars["tb"] = coll
	rows, err := c.query(ctx, "DELETE type::table($tb) WHERE "+cond+" RETURN BEFORE", vars)
	return int64(len(rows)), err
}

// Ping checks the database connection
func (c *surrealConn) Ping(ctx context.Context) error {
	if _, err := c.db.Version(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return nil
}

func (c *surrealConn) Close(ctx context.Context) error {
	return c.db.Close(ctx)
}
