// Package testdb manages isolated stores for package tests.
//
// # Setup
//
// Create a store per test; it is closed by t.Cleanup:
//
//	tdb := testdb.New(t)
//	repo := repository.NewProducts(tdb.Manager)
//
// # Backends
//
// The default is an in-memory badger store. Environment variables switch
// to a server:
//
//	TEST_MONGO_URI=mongodb://localhost:27017 go test ./...
//	TEST_SURREAL_HOST=localhost go test ./...
//
// Each TestDB uses a unique database name on the server, and its kinds
// are emptied on Close.
//
// # Helpers
//
//	tdb.MustInsert("product", doc1, doc2)
//	n := tdb.MustCount("product", bson.D{{Key: "supplier", Value: "acme"}})
//	tdb.Reset(t, "product", "company")
package testdb
