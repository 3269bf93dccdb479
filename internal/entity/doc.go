// Package entity provides the base persisted object of the catalog.
//
// An Entity wraps one BSON document. Each kind embeds Entity and declares
// a Schema of typed fields; fields the schema does not declare are extra
// fields and accept any value:
//
//	var CompanySchema = entity.NewSchema("company",
//	    entity.Field{Name: "name", Kind: entity.KindString},
//	    entity.Field{Name: "website", Kind: entity.KindString, Verbatim: true},
//	)
//
//	type Company struct{ entity.Entity }
//
//	func NewCompany() *Company { return &Company{entity.New(CompanySchema)} }
//
//	func init() {
//	    entity.Register(CompanySchema, func() entity.Model { return NewCompany() })
//	}
//
// # Typed Access
//
// Getters return (value, ok). Numeric reads coerce between the stored
// numeric kinds; every coercion is reported to the CoercionObserver and
// counted on the catalog.entity.coercions OpenTelemetry counter. Failed
// reads are logged and return ok=false.
//
// String setters replace URL-like text with RedactionMarker unless the
// field is website, email, or declared Verbatim.
//
// # Links and Embedded Lists
//
// A link field stores another entity's identity. Link and Links resolve
// them through a Fetcher with one round trip per identity and no caching.
// Embedded lists store raw sub-documents that are materialized into
// entities of the field's Ref kind.
//
// # Merging
//
// Update copies the fields named by the other entity's changedFields
// marker, or every field but the identity when there is no marker.
// UpdateBeforeSave strips client-only markers before a save.
package entity
