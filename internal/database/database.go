package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Standard errors for database operations.
// Use errors.Is() to check these error types in calling code.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidID indicates an identity that is not a 24-character hex ObjectID.
	ErrInvalidID = errors.New("invalid document id")

	// ErrDuplicate indicates an insert collided with an existing identity.
	ErrDuplicate = errors.New("duplicate document")

	// ErrTransient indicates a fault worth retrying (network, timeout, write conflict).
	ErrTransient = errors.New("transient database error")

	// ErrConnection indicates a failure to connect to or communicate with the store.
	ErrConnection = errors.New("database connection error")

	// ErrQuery indicates a rejected round trip (bad filter, bad update, server error).
	ErrQuery = errors.New("query error")

	// ErrSerialization indicates a document could not be encoded or decoded.
	ErrSerialization = errors.New("serialization error")

	// ErrUnsupported indicates an operation the store cannot perform.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrNoSession indicates a closed session was used.
	ErrNoSession = errors.New("no database session")
)

// OpError records the failing operation and collection while unwrapping to
// one of the sentinel errors above.
type OpError struct {
	Op   string
	Kind string
	Err  error
}

func (e *OpError) Error() string {
	if e.Kind == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Kind + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

// Credentials selects the account a session connects with. The zero value
// means the manager's configured account.
type Credentials struct {
	User     string
	Password string
}

// Driver opens connections to one store backend.
type Driver interface {
	Name() string
	Open(ctx context.Context, creds Credentials) (Conn, error)
	Close(ctx context.Context) error
}

// Conn is one open connection. Collections are named after entity kinds.
type Conn interface {
	Find(ctx context.Context, coll string, filter bson.D, opts FindOptions) (DocCursor, error)
	Count(ctx context.Context, coll string, filter bson.D) (int64, error)
	Aggregate(ctx context.Context, coll string, pipeline []bson.D) (DocCursor, error)
	UpdateOne(ctx context.Context, coll string, filter, update bson.D) (UpdateResult, error)
	UpdateMany(ctx context.Context, coll string, filter, update bson.D) (UpdateResult, error)
	// Replace stores doc under its _id, inserting when absent.
	Replace(ctx context.Context, coll string, doc bson.D) error
	Insert(ctx context.Context, coll string, doc bson.D) error
	DeleteOne(ctx context.Context, coll string, filter bson.D) (int64, error)
	DeleteMany(ctx context.Context, coll string, filter bson.D) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// DocCursor iterates raw documents. *mongo.Cursor satisfies it.
type DocCursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

// FindOptions shapes a Find round trip. Zero values mean "not set".
type FindOptions struct {
	Sort       bson.D
	Skip       int64
	Limit      int64
	Projection bson.D
}

// UpdateResult reports how many documents an update touched.
type UpdateResult struct {
	Matched  int64
	Modified int64
}

// Config holds database configuration
type Config struct {
	Driver    string
	URI       string
	Host      string
	Port      string
	User      string
	Password  string
	Namespace string
	Database  string

	// Path and InMemory apply to the embedded badger driver.
	Path     string
	InMemory bool

	MaxOpenConnections int
	ConnectTimeout     time.Duration
	Retry              RetryConfig
}

// RetryConfig bounds the retry loop around each round trip.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Driver names accepted in Config.Driver.
const (
	DriverMongo     = "mongo"
	DriverSurrealDB = "surrealdb"
	DriverBadger    = "badger"
)

// NewDriver builds the driver named by cfg.Driver.
func NewDriver(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case DriverMongo, "":
		return NewMongoDriver(cfg), nil
	case DriverSurrealDB:
		return NewSurrealDriver(cfg), nil
	case DriverBadger:
		return NewBadgerDriver(cfg), nil
	}
	return nil, fmt.Errorf("%w: driver %q", ErrUnsupported, cfg.Driver)
}

// ParseID parses the 24-character hex form of an identity.
func ParseID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, hex)
	}
	return id, nil
}
