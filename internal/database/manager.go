package database

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("catalog/database")

// Manager owns the driver and hands out sessions. It is safe for
// concurrent use; the sessions it returns are not.
type Manager struct {
	cfg    Config
	driver Driver
	log    *slog.Logger
	tracer trace.Tracer
	retry  RetryConfig
	sem    *semaphore.Weighted // nil if unlimited
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for faults and lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithDriver overrides the driver chosen from Config.Driver.
func WithDriver(d Driver) Option {
	return func(m *Manager) { m.driver = d }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// NewManager creates a manager for cfg. No connection is opened until a
// session needs one.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		log:    slog.Default(),
		tracer: tracer,
		retry:  cfg.Retry.withDefaults(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.driver == nil {
		d, err := NewDriver(cfg)
		if err != nil {
			return nil, err
		}
		m.driver = d
	}
	if cfg.MaxOpenConnections > 0 {
		m.sem = semaphore.NewWeighted(int64(cfg.MaxOpenConnections))
	}
	m.log = m.log.With(slog.String("driver", m.driver.Name()))
	return m, nil
}

// Close releases driver resources. Sessions must be closed first.
func (m *Manager) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// Driver returns the underlying driver name.
func (m *Manager) Driver() string { return m.driver.Name() }

// Logger returns the manager's logger.
func (m *Manager) Logger() *slog.Logger { return m.log }

func (m *Manager) defaultCredentials() Credentials {
	return Credentials{User: m.cfg.User, Password: m.cfg.Password}
}

// NewSession creates a session that is not cached anywhere.
func (m *Manager) NewSession(creds Credentials) *Session {
	return newSession(m, creds)
}

// Session returns the default-credential session of the scope bound to
// ctx, or a fresh ephemeral session when ctx carries no scope of m.
func (m *Manager) Session(ctx context.Context) *Session {
	if sc, ok := ScopeFrom(ctx); ok && sc.m == m {
		return sc.Default()
	}
	return newSession(m, m.defaultCredentials())
}

// Get fetches one document by identity.
func (m *Manager) Get(ctx context.Context, coll string, id bson.ObjectID) (bson.D, error) {
	return m.Session(ctx).Get(ctx, coll, id)
}

// Query opens a stream over the documents matching filter.
func (m *Manager) Query(ctx context.Context, coll string, filter any, opts FindOptions) (*Stream, error) {
	return m.Session(ctx).Query(ctx, coll, filter, opts)
}

// Count counts the documents matching filter.
func (m *Manager) Count(ctx context.Context, coll string, filter any) (int64, error) {
	return m.Session(ctx).Count(ctx, coll, filter)
}

// Aggregate runs pipeline over coll.
func (m *Manager) Aggregate(ctx context.Context, coll string, pipeline []bson.D) ([]bson.D, error) {
	return m.Session(ctx).Aggregate(ctx, coll, pipeline)
}

// UpdateOne applies update to the first document matching filter.
func (m *Manager) UpdateOne(ctx context.Context, coll string, filter, update any) (UpdateResult, error) {
	return m.Session(ctx).UpdateOne(ctx, coll, filter, update)
}

// UpdateMany applies update to every document matching filter.
func (m *Manager) UpdateMany(ctx context.Context, coll string, filter, update any) (UpdateResult, error) {
	return m.Session(ctx).UpdateMany(ctx, coll, filter, update)
}

// Save replaces doc by identity or inserts it with a new one.
func (m *Manager) Save(ctx context.Context, coll string, doc bson.D) (bson.D, error) {
	return m.Session(ctx).Save(ctx, coll, doc)
}

// Delete removes the first document matching filter.
func (m *Manager) Delete(ctx context.Context, coll string, filter any) (int64, error) {
	return m.Session(ctx).Delete(ctx, coll, filter)
}

// DeleteMany removes every document matching filter.
func (m *Manager) DeleteMany(ctx context.Context, coll string, filter any) (int64, error) {
	return m.Session(ctx).DeleteMany(ctx, coll, filter)
}

// Ping verifies the store is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.Session(ctx).Ping(ctx)
}
