// Package testdb provides isolated stores for tests.
//
// By default each TestDB is a fresh in-memory badger store, so tests need
// no running server. Setting TEST_MONGO_URI runs the same tests against
// MongoDB, and TEST_SURREAL_HOST against SurrealDB; each TestDB then gets
// its own database (or namespace) name.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t)
//	    sess := tdb.Session()
//	    n, err := sess.Count(tdb.Ctx(), "product", bson.D{})
//	}
package testdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
)

// TestDB is one isolated store with a manager bound to it.
type TestDB struct {
	Manager  *database.Manager
	Config   database.Config
	Database string
	t        *testing.T
	sess     *database.Session
}

var (
	// counterMu protects the database name counter
	counterMu sync.Mutex
	counter   int64
)

// getTestConfig returns the store config selected by the environment.
func getTestConfig() database.Config {
	retry := database.RetryConfig{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}

	if uri := os.Getenv("TEST_MONGO_URI"); uri != "" {
		return database.Config{Driver: database.DriverMongo, URI: uri, Retry: retry}
	}

	if host := os.Getenv("TEST_SURREAL_HOST"); host != "" {
		port := os.Getenv("TEST_SURREAL_PORT")
		if port == "" {
			port = "8000"
		}
		user := os.Getenv("TEST_SURREAL_USER")
		if user == "" {
			user = "root"
		}
		password := os.Getenv("TEST_SURREAL_PASSWORD")
		if password == "" {
			password = "root"
		}
		return database.Config{
			Driver:   database.DriverSurrealDB,
			Host:     host,
			Port:     port,
			User:     user,
			Password: password,
			Retry:    retry,
		}
	}

	return database.Config{Driver: database.DriverBadger, InMemory: true, Retry: retry}
}

// uniqueName generates a unique database name for test isolation
func uniqueName() string {
	counterMu.Lock()
	defer counterMu.Unlock()
	counter++
	return fmt.Sprintf("test_%d_%d", time.Now().UnixNano(), counter)
}

// New creates an isolated store. It is closed automatically when the test
// ends.
func New(t *testing.T) *TestDB {
	t.Helper()

	cfg := getTestConfig()
	name := uniqueName()
	cfg.Database = name
	cfg.Namespace = name

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("TEST_DB_LOG") != "" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	m, err := database.NewManager(cfg, database.WithLogger(logger))
	if err != nil {
		t.Fatalf("testdb: failed to create manager: %v", err)
	}

	tdb := &TestDB{Manager: m, Config: cfg, Database: name, t: t}
	if err := m.Ping(tdb.Ctx()); err != nil {
		_ = m.Close(context.Background())
		t.Fatalf("testdb: store unreachable: %v", err)
	}
	t.Cleanup(tdb.Close)
	return tdb
}

// Session returns a session shared by the whole test.
func (tdb *TestDB) Session() *database.Session {
	if tdb.sess == nil {
		tdb.sess = tdb.Manager.NewSession(database.Credentials{})
	}
	return tdb.sess
}

// Close empties every registered kind on server-backed stores and
// releases the manager.
func (tdb *TestDB) Close() {
	if tdb.Manager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if tdb.Config.Driver != database.DriverBadger {
		tdb.reset(ctx, entity.Kinds()...)
	}
	if tdb.sess != nil {
		_ = tdb.sess.Close(ctx)
	}
	_ = tdb.Manager.Close(ctx)
	tdb.Manager = nil
}

// Reset deletes every document of kinds.
func (tdb *TestDB) Reset(t *testing.T, kinds ...string) {
	t.Helper()
	tdb.reset(tdb.Ctx(), kinds...)
}

func (tdb *TestDB) reset(ctx context.Context, kinds ...string) {
	for _, kind := range kinds {
		if _, err := tdb.Manager.DeleteMany(ctx, kind, bson.D{}); err != nil {
			tdb.t.Logf("testdb: warning - failed to clear %s: %v", kind, err)
		}
	}
}

// Ctx returns a context with a reasonable timeout for test operations.
func (tdb *TestDB) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tdb.t.Cleanup(cancel)
	return ctx
}

// MustInsert stores docs in kind and fails the test on error.
func (tdb *TestDB) MustInsert(kind string, docs ...bson.D) []bson.D {
	tdb.t.Helper()
	out := make([]bson.D, 0, len(docs))
	for _, d := range docs {
		saved, err := tdb.Manager.Save(tdb.Ctx(), kind, d)
		if err != nil {
			tdb.t.Fatalf("testdb: insert into %s failed: %v", kind, err)
		}
		out = append(out, saved)
	}
	return out
}

// MustCount counts documents of kind matching filter and fails the test
// on error.
func (tdb *TestDB) MustCount(kind string, filter any) int64 {
	tdb.t.Helper()
	n, err := tdb.Manager.Count(tdb.Ctx(), kind, filter)
	if err != nil {
		tdb.t.Fatalf("testdb: count of %s failed: %v", kind, err)
	}
	return n
}
