// Package fixtures provides test data factories for the catalog.
//
// # Factory Pattern
//
// Create a factory over a test store:
//
//	tdb := testdb.New(t)
//	f := fixtures.New(tdb.Manager)
//
// # Creating Test Data
//
//	supplier := f.CreateSupplier(t)
//	dealer := f.CreateDealer(t)
//	p := f.CreateProduct(t, supplier, fixtures.WithDealers(dealer))
//	page := f.CreatePage(t, "partner")
//
// # Customization
//
// Use option functions for customization:
//
//	p := f.CreateProduct(t, supplier, fixtures.WithTitle("Oak Table"), fixtures.WithSupID("OAK-1"))
//	c := f.CreateCompany(t, func(o *fixtures.CompanyOpts) { o.Name = "Acme" })
//
// Names and supplier ids are random unless set.
package fixtures
