package cursor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
	"github.com/forgo/catalog/internal/testing/testdb"
)

var itemSchema = entity.NewSchema("item",
	entity.Field{Name: "n", Kind: entity.KindInt32},
	entity.Field{Name: "tag", Kind: entity.KindString},
)

type item struct{ entity.Entity }

func newItem() *item { return &item{entity.New(itemSchema)} }

// ============================================================================
// Mock Rows
// ============================================================================

type mockRows struct {
	docs   []bson.D // nil element fails to decode
	pos    int
	closed int
	err    error
}

func (r *mockRows) Next(ctx context.Context) bool {
	if r.pos >= len(r.docs) {
		return false
	}
	r.pos++
	return true
}

func (r *mockRows) Decode(v any) error {
	d := r.docs[r.pos-1]
	if d == nil {
		return errors.New("corrupt document")
	}
	*(v.(*bson.D)) = d
	return nil
}

func (r *mockRows) Err() error { return r.err }

func (r *mockRows) Close(ctx context.Context) error {
	r.closed++
	return nil
}

func openRows(rows *mockRows, opens *int, seen *database.FindOptions) Opener {
	return func(ctx context.Context, opts database.FindOptions) (Rows, error) {
		*opens++
		if seen != nil {
			*seen = opts
		}
		return rows, nil
	}
}

func doc(n int32) bson.D {
	return bson.D{{Key: "_id", Value: bson.NewObjectID()}, {Key: "n", Value: n}}
}

// ============================================================================
// Tests
// ============================================================================

func TestCursor_LazyOpen(t *testing.T) {
	opens := 0
	var seen database.FindOptions
	rows := &mockRows{docs: []bson.D{doc(1)}}
	c := New(openRows(rows, &opens, &seen), "item", newItem).
		Sort(bson.D{{Key: "n", Value: -1}}).
		Skip(2).
		Limit(5).
		Project(bson.D{{Key: "n", Value: 1}})
	assert.Zero(t, opens)

	_, ok := c.Next(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 1, opens)
	assert.Equal(t, database.FindOptions{
		Sort:       bson.D{{Key: "n", Value: -1}},
		Skip:       2,
		Limit:      5,
		Projection: bson.D{{Key: "n", Value: 1}},
	}, seen)
}

func TestCursor_SkipsUndecodable(t *testing.T) {
	opens := 0
	rows := &mockRows{docs: []bson.D{doc(1), nil, doc(3)}}
	c := New(openRows(rows, &opens, nil), "item", newItem)

	items, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	n, _ := items[1].Int32("n")
	assert.Equal(t, int32(3), n)
	assert.Equal(t, 1, c.Skipped())
	assert.Equal(t, 1, rows.closed)
}

func TestCursor_NarrowAfterStart(t *testing.T) {
	opens := 0
	var seen database.FindOptions
	rows := &mockRows{docs: []bson.D{doc(1), doc(2)}}
	c := New(openRows(rows, &opens, &seen), "item", newItem)

	_, ok := c.Next(context.Background())
	require.True(t, ok)
	c.Limit(1)
	assert.ErrorIs(t, c.Err(), ErrStarted)

	_, ok = c.Next(context.Background())
	assert.True(t, ok, "late limit has no effect")
	assert.Zero(t, seen.Limit)
}

func TestCursor_FirstEmpty(t *testing.T) {
	opens := 0
	rows := &mockRows{}
	c := New(openRows(rows, &opens, nil), "item", newItem)

	_, err := c.First(context.Background())
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, 1, rows.closed)
}

func TestCursor_OpenFailure(t *testing.T) {
	boom := errors.New("down")
	c := New(func(ctx context.Context, opts database.FindOptions) (Rows, error) {
		return nil, boom
	}, "item", newItem)

	_, err := c.First(context.Background())
	assert.ErrorIs(t, err, boom)

	f := Failed[*item]("item", boom)
	items, err := f.Collect(context.Background())
	assert.Empty(t, items)
	assert.ErrorIs(t, err, boom)
}

func TestCursor_BreakCloses(t *testing.T) {
	opens := 0
	rows := &mockRows{docs: []bson.D{doc(1), doc(2), doc(3)}}
	c := New(openRows(rows, &opens, nil), "item", newItem)

	for range c.All(context.Background()) {
		break
	}
	assert.Equal(t, 1, rows.closed)
	_, ok := c.Next(context.Background())
	assert.False(t, ok, "cursors are single-pass")
}

// FEATURE: limit(1) then first
// ACCEPTANCE CRITERIA:
// - at most one entity is decoded even when many documents match
// - the connection hold is released afterwards
func TestCursor_LimitOneFirst_Store(t *testing.T) {
	tdb := testdb.New(t)
	for i := int32(1); i <= 4; i++ {
		tdb.MustInsert("item", bson.D{{Key: "n", Value: i}, {Key: "tag", Value: "x"}})
	}
	sess := tdb.Session()
	ctx := tdb.Ctx()

	decoded := 0
	c := New(func(ctx context.Context, opts database.FindOptions) (Rows, error) {
		st, err := sess.Query(ctx, "item", bson.D{{Key: "tag", Value: "x"}}, opts)
		if err != nil {
			return nil, err
		}
		return st, nil
	}, "item", func() *item {
		decoded++
		return newItem()
	}).Sort(bson.D{{Key: "n", Value: -1}}).Limit(1)

	first, err := c.First(ctx)
	require.NoError(t, err)
	n, _ := first.Int32("n")
	assert.Equal(t, int32(4), n)
	assert.Equal(t, 1, decoded)
	assert.False(t, sess.IsOpen(), "hold released")
}
