package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSession_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	sess := newBadgerManager(t).Session(ctx)

	saved, err := sess.Save(ctx, "product", bson.D{{Key: "name", Value: "anvil"}})
	require.NoError(t, err)
	id, ok := saved[0].Value.(bson.ObjectID)
	require.True(t, ok, "insert assigns an ObjectID")
	assert.Equal(t, "_id", saved[0].Key)

	got, err := sess.Get(ctx, "product", id)
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	n, err := sess.Delete(ctx, "product", bson.D{{Key: "_id", Value: id}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = sess.Get(ctx, "product", id)
	assert.ErrorIs(t, err, ErrNotFound)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "get", opErr.Op)
	assert.Equal(t, "product", opErr.Kind)
}

func TestSession_SaveReplacesByIdentity(t *testing.T) {
	ctx := context.Background()
	sess := newBadgerManager(t).Session(ctx)

	saved, err := sess.Save(ctx, "product", bson.D{{Key: "name", Value: "anvil"}})
	require.NoError(t, err)

	saved = append(saved, bson.E{Key: "price", Value: 10.0})
	_, err = sess.Save(ctx, "product", saved)
	require.NoError(t, err)

	n, err := sess.Count(ctx, "product", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSession_OpenPerCall(t *testing.T) {
	ctx := context.Background()
	d := &mockDriver{}
	sess := newMockManager(t, d).Session(ctx)

	for i := 0; i < 3; i++ {
		_, err := sess.Count(ctx, "product", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, d.opens)
	assert.Equal(t, 3, d.closes)
	assert.False(t, sess.IsOpen())
}

func TestSession_BatchKeepsConnectionOpen(t *testing.T) {
	ctx := context.Background()
	d := &mockDriver{}
	sess := newMockManager(t, d).Session(ctx)

	err := sess.Batch(ctx, func(ctx context.Context) error {
		for i := 0; i < 3; i++ {
			if _, err := sess.Count(ctx, "product", nil); err != nil {
				return err
			}
		}
		assert.True(t, sess.IsOpen())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, d.opens)
	assert.Equal(t, 1, d.closes)
	assert.False(t, sess.IsOpen())
}

func TestSession_StreamHoldsConnection(t *testing.T) {
	ctx := context.Background()
	sess := newBadgerManager(t).Session(ctx)

	for _, name := range []string{"a", "b"} {
		_, err := sess.Save(ctx, "product", bson.D{{Key: "name", Value: name}})
		require.NoError(t, err)
	}

	st, err := sess.Query(ctx, "product", nil, FindOptions{Sort: bson.D{{Key: "name", Value: 1}}})
	require.NoError(t, err)
	assert.True(t, sess.IsOpen(), "open stream holds the connection")

	// a nested round trip must not close the connection under the stream
	_, err = sess.Count(ctx, "product", nil)
	require.NoError(t, err)
	assert.True(t, sess.IsOpen())

	var names []string
	for st.Next(ctx) {
		var doc bson.D
		require.NoError(t, st.Decode(&doc))
		names = append(names, doc[1].Value.(string))
	}
	require.NoError(t, st.Err())
	assert.Equal(t, []string{"a", "b"}, names)
	assert.False(t, sess.IsOpen(), "exhausted stream releases the connection")
}

func TestSession_ForceAcquireReopens(t *testing.T) {
	ctx := context.Background()
	d := &mockDriver{}
	sess := newMockManager(t, d).Session(ctx)

	require.NoError(t, sess.Acquire(ctx, false))
	require.NoError(t, sess.Acquire(ctx, false))
	assert.Equal(t, 1, d.opens)

	require.NoError(t, sess.Acquire(ctx, true))
	assert.Equal(t, 2, d.opens)

	sess.Release(ctx)
	sess.Release(ctx)
	assert.True(t, sess.IsOpen())
	sess.Release(ctx)
	assert.False(t, sess.IsOpen())
}

func TestSession_RetriesTransientFaults(t *testing.T) {
	ctx := context.Background()
	calls := 0
	d := &mockDriver{conn: &mockConn{
		countFunc: func(ctx context.Context, coll string, filter bson.D) (int64, error) {
			calls++
			if calls < 3 {
				return 0, ErrTransient
			}
			return 7, nil
		},
	}}
	sess := newMockManager(t, d).Session(ctx)

	n, err := sess.Count(ctx, "product", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, d.opens, "each attempt reopens the connection")
}

func TestSession_RetryGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	calls := 0
	d := &mockDriver{conn: &mockConn{
		countFunc: func(ctx context.Context, coll string, filter bson.D) (int64, error) {
			calls++
			return 0, ErrTransient
		},
	}}
	sess := newMockManager(t, d).Session(ctx)

	_, err := sess.Count(ctx, "product", nil)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestSession_PermanentFaultNotRetried(t *testing.T) {
	ctx := context.Background()
	calls := 0
	d := &mockDriver{conn: &mockConn{
		countFunc: func(ctx context.Context, coll string, filter bson.D) (int64, error) {
			calls++
			return 0, ErrQuery
		},
	}}
	sess := newMockManager(t, d).Session(ctx)

	_, err := sess.Count(ctx, "product", nil)
	assert.ErrorIs(t, err, ErrQuery)
	assert.Equal(t, 1, calls)
}

func TestSession_OpenFailureRetried(t *testing.T) {
	ctx := context.Background()
	d := &mockDriver{}
	d.openFunc = func(ctx context.Context, creds Credentials) (Conn, error) {
		if d.opens < 2 {
			return nil, ErrConnection
		}
		return &mockConn{driver: d}, nil
	}
	sess := newMockManager(t, d).Session(ctx)

	require.NoError(t, sess.Ping(ctx))
	assert.Equal(t, 2, d.opens)
}

func TestSession_ClosedSessionRejectsUse(t *testing.T) {
	ctx := context.Background()
	sess := newMockManager(t, &mockDriver{}).Session(ctx)
	require.NoError(t, sess.Close(ctx))

	err := sess.Ping(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSession_TransactionsAreNoOps(t *testing.T) {
	ctx := context.Background()
	d := &mockDriver{}
	sess := newMockManager(t, d).Session(ctx)

	assert.NoError(t, sess.StartTransaction(ctx))
	assert.NoError(t, sess.CommitTransaction(ctx))
	assert.NoError(t, sess.RollbackTransaction(ctx))
	assert.Zero(t, d.opens)
}

func TestManager_MaxOpenConnections(t *testing.T) {
	ctx := context.Background()
	d := &mockDriver{openFunc: func(ctx context.Context, creds Credentials) (Conn, error) {
		return &mockConn{}, nil
	}}
	m, err := NewManager(Config{MaxOpenConnections: 1, Retry: RetryConfig{MaxAttempts: 1}},
		WithDriver(d), WithLogger(quietLogger()))
	require.NoError(t, err)

	first := m.NewSession(Credentials{})
	require.NoError(t, first.Acquire(ctx, false))

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	second := m.NewSession(Credentials{})
	assert.ErrorIs(t, second.Acquire(waitCtx, false), ErrConnection)

	first.Release(ctx)
	require.NoError(t, second.Acquire(ctx, false))
	second.Release(ctx)
}

func TestSession_UpdateAndAggregate(t *testing.T) {
	ctx := context.Background()
	sess := newBadgerManager(t).Session(ctx)

	for _, s := range []string{"acme", "acme", "camp"} {
		_, err := sess.Save(ctx, "product", bson.D{{Key: "supplier", Value: s}, {Key: "stock", Value: int32(1)}})
		require.NoError(t, err)
	}

	res, err := sess.UpdateMany(ctx, "product",
		bson.D{{Key: "supplier", Value: "acme"}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "stock", Value: int32(2)}}}})
	require.NoError(t, err)
	assert.Equal(t, UpdateResult{Matched: 2, Modified: 2}, res)

	rows, err := sess.Aggregate(ctx, "product", []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$supplier"},
			{Key: "stock", Value: bson.D{{Key: "$sum", Value: "$stock"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, bson.D{{Key: "_id", Value: "acme"}, {Key: "stock", Value: int32(6)}}, rows[0])

	n, err := sess.DeleteMany(ctx, "product", bson.D{{Key: "supplier", Value: "acme"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStream_CancelReportsError(t *testing.T) {
	sess := newBadgerManager(t).Session(context.Background())
	for _, name := range []string{"a", "b", "c"} {
		_, err := sess.Save(context.Background(), "product", bson.D{{Key: "name", Value: name}})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	st, err := sess.Query(ctx, "product", nil, FindOptions{})
	require.NoError(t, err)
	require.True(t, st.Next(ctx))
	cancel()

	assert.False(t, st.Next(ctx))
	assert.ErrorIs(t, st.Err(), context.Canceled)
	assert.ErrorIs(t, st.Err(), ErrQuery)
	assert.False(t, sess.IsOpen(), "the hold is released")
}
