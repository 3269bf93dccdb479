package database

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// ============================================================================
// Mock Driver
// ============================================================================

type mockDriver struct {
	openFunc func(ctx context.Context, creds Credentials) (Conn, error)
	opens    int
	closes   int
	conn     *mockConn
}

func (d *mockDriver) Name() string { return "mock" }

func (d *mockDriver) Open(ctx context.Context, creds Credentials) (Conn, error) {
	d.opens++
	if d.openFunc != nil {
		return d.openFunc(ctx, creds)
	}
	if d.conn == nil {
		d.conn = &mockConn{}
	}
	d.conn.driver = d
	return d.conn, nil
}

func (d *mockDriver) Close(ctx context.Context) error { return nil }

type mockConn struct {
	driver    *mockDriver
	countFunc func(ctx context.Context, coll string, filter bson.D) (int64, error)
	findFunc  func(ctx context.Context, coll string, filter bson.D, opts FindOptions) (DocCursor, error)
}

func (c *mockConn) Find(ctx context.Context, coll string, filter bson.D, opts FindOptions) (DocCursor, error) {
	if c.findFunc != nil {
		return c.findFunc(ctx, coll, filter, opts)
	}
	return &sliceCursor{pos: -1}, nil
}

func (c *mockConn) Count(ctx context.Context, coll string, filter bson.D) (int64, error) {
	if c.countFunc != nil {
		return c.countFunc(ctx, coll, filter)
	}
	return 0, nil
}

func (c *mockConn) Aggregate(ctx context.Context, coll string, pipeline []bson.D) (DocCursor, error) {
	return &sliceCursor{pos: -1}, nil
}

func (c *mockConn) UpdateOne(ctx context.Context, coll string, filter, update bson.D) (UpdateResult, error) {
	return UpdateResult{}, nil
}

func (c *mockConn) UpdateMany(ctx context.Context, coll string, filter, update bson.D) (UpdateResult, error) {
	return UpdateResult{}, nil
}

func (c *mockConn) Replace(ctx context.Context, coll string, doc bson.D) error { return nil }

func (c *mockConn) Insert(ctx context.Context, coll string, doc bson.D) error { return nil }

func (c *mockConn) DeleteOne(ctx context.Context, coll string, filter bson.D) (int64, error) {
	return 0, nil
}

func (c *mockConn) DeleteMany(ctx context.Context, coll string, filter bson.D) (int64, error) {
	return 0, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (c *mockConn) Close(ctx context.Context) error {
	if c.driver != nil {
		c.driver.closes++
	}
	return nil
}

// ============================================================================
// Helpers
// ============================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func newMockManager(t *testing.T, d *mockDriver) *Manager {
	t.Helper()
	m, err := NewManager(Config{Retry: fastRetry()}, WithDriver(d), WithLogger(quietLogger()))
	require.NoError(t, err)
	return m
}

func newBadgerManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{
		Driver:   DriverBadger,
		InMemory: true,
		Retry:    fastRetry(),
	}, WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}
