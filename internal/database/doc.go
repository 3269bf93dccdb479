// Package database manages connections to the document store and performs
// every round trip the catalog makes.
//
// # Drivers
//
// A Driver opens connections to one backend:
//
//   - mongo: a MongoDB deployment, one collection per entity kind
//   - surrealdb: a SurrealDB namespace/database, one table per kind
//   - badger: an embedded badger store, on disk or in memory
//
// Filters are plain BSON query documents. MongoDB evaluates them itself;
// the other drivers evaluate or translate them with internal/filter.
//
// # Connection Lifecycle
//
// Connections are opened per call. A Session opens its connection when an
// operation or cursor acquires it and closes it once nothing holds it:
//
//	sess := mgr.Session(ctx)
//	doc, err := sess.Get(ctx, "product", id)
//
// Batch mode keeps the connection open across many operations:
//
//	err := sess.Batch(ctx, func(ctx context.Context) error {
//	    // many round trips, one connection
//	})
//
// # Scopes
//
// A Scope is one unit of work (a CLI command, a job run). It caches one
// Session per credential pair and closes them all on Close:
//
//	ctx, scope := mgr.Scope(ctx)
//	defer scope.Close(ctx)
//
// Manager.Session returns the scope's default session, or a throwaway one
// when ctx carries no scope.
//
// # Retry
//
// Round trips failing with ErrTransient or ErrConnection are retried with
// exponential backoff, reopening the connection on each attempt. Other
// errors return immediately.
//
// # Transactions
//
// Transactions are not supported. StartTransaction, CommitTransaction and
// RollbackTransaction log a warning and do nothing.
//
// # Error Types
//
// Every error wraps one of the sentinels (ErrNotFound, ErrInvalidID,
// ErrDuplicate, ErrTransient, ErrConnection, ErrQuery, ErrSerialization,
// ErrUnsupported, ErrNoSession):
//
//	if errors.Is(err, database.ErrNotFound) {
//	    // Handle missing document
//	}
package database
