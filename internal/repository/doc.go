// Package repository implements per-kind data access for the catalog.
//
// # Repository Pattern
//
// Repository[T] is bound to one entity kind through a constructor:
//
//	products := repository.New(mgr, model.NewProduct)
//	n, err := products.CountWhere(ctx, bson.D{{Key: "visible", Value: true}})
//
// Kinds known only by name use ForKind, which builds entities through
// the entity registry.
//
// # Saving
//
// Save is an upsert keyed on the entity's UniqueFilter: identity by
// default, a natural key for kinds that override it (products use
// supplier + supid). A persisted counterpart is merged with
// entity.Entity.Update, so a payload carrying a changedFields marker only
// alters the named fields.
//
// # Errors
//
// Lookups distinguish "no data" from store failures:
//
//	p, err := products.Get(ctx, id)
//	switch {
//	case errors.Is(err, database.ErrInvalidID), errors.Is(err, database.ErrNotFound):
//	    // render empty
//	case err != nil:
//	    // store failure
//	}
//
// # JSON
//
// ToJSONArray and FromJSONArray exchange relaxed Extended JSON arrays;
// elements that fail to encode or decode are logged and skipped.
package repository
