// Package model defines the catalog's entity kinds.
//
// Each kind embeds entity.Entity, declares a schema and registers itself
// with the entity registry in init, so importing the package makes every
// kind constructible by name:
//
//	m, err := entity.NewOf(model.KindProduct)
//
// # Kinds
//
//   - Product: a catalog item; deduplicated on supplier + supid
//   - Company: a supplier or dealer
//   - Page: a named content page; deduplicated on name
//   - Variant: an embedded product variant with no collection of its own
//
// # Links
//
// Products link to their supplier and dealers by identity. Links are
// resolved on demand through an entity.Fetcher:
//
//	supplier, err := product.Supplier(ctx, mgr.Session(ctx))
package model
