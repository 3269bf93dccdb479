// Package fixtures provides test data factories.
//
// Each factory method creates entities with sensible defaults while allowing
// customization via option functions. Factories save through the
// repositories and return the persisted entities.
//
// Usage:
//
//	tdb := testdb.New(t)
//	f := fixtures.New(tdb.Manager)
//	acme := f.CreateSupplier(t)
//	p := f.CreateProduct(t, acme)
package fixtures

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
	"github.com/forgo/catalog/internal/model"
	"github.com/forgo/catalog/internal/repository"
)

// Factory creates test entities in the store
type Factory struct {
	Companies *repository.CompanyRepository
	Products  *repository.ProductRepository
	Pages     *repository.Repository[*model.Page]
}

// New creates a new fixture factory
func New(db *database.Manager) *Factory {
	companies := repository.NewCompanyRepository(db)
	return &Factory{
		Companies: companies,
		Products:  repository.NewProductRepository(db, companies),
		Pages:     repository.New(db, model.NewPage),
	}
}

// randomID generates a random hex ID
func randomID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

// ============================================================================
// Company Fixtures
// ============================================================================

// CompanyOpts customizes company creation
type CompanyOpts struct {
	Name    string
	Type    model.CompanyType
	Website string
}

// CreateCompany creates a company with optional customizations
func (f *Factory) CreateCompany(t *testing.T, opts ...func(*CompanyOpts)) *model.Company {
	t.Helper()

	o := &CompanyOpts{
		Name:    fmt.Sprintf("company_%s", randomID()),
		Type:    model.CompanyTypeSupplier,
		Website: "https://example.com",
	}
	for _, fn := range opts {
		fn(o)
	}

	c := model.NewCompany()
	if err := c.SetName(o.Name); err != nil {
		t.Fatalf("fixtures: company name: %v", err)
	}
	if err := c.SetType(o.Type); err != nil {
		t.Fatalf("fixtures: company type: %v", err)
	}
	if err := c.SetString("website", o.Website); err != nil {
		t.Fatalf("fixtures: company website: %v", err)
	}

	saved, err := f.Companies.Save(ctx(t), c)
	if err != nil {
		t.Fatalf("fixtures: failed to create company: %v", err)
	}
	return saved
}

// CreateSupplier creates a supplier company
func (f *Factory) CreateSupplier(t *testing.T) *model.Company {
	return f.CreateCompany(t)
}

// CreateDealer creates a dealer company
func (f *Factory) CreateDealer(t *testing.T) *model.Company {
	return f.CreateCompany(t, func(o *CompanyOpts) {
		o.Type = model.CompanyTypeDealer
	})
}

// ============================================================================
// Product Fixtures
// ============================================================================

// ProductOpts customizes product creation
type ProductOpts struct {
	Title   string
	SupID   string
	Price   float64
	Stock   int32
	Visible bool
	Dealers []*model.Company
}

// WithTitle sets the product title
func WithTitle(title string) func(*ProductOpts) {
	return func(o *ProductOpts) { o.Title = title }
}

// WithSupID sets the supplier's product id
func WithSupID(supid string) func(*ProductOpts) {
	return func(o *ProductOpts) { o.SupID = supid }
}

// WithDealers sets the dealers selling the product
func WithDealers(dealers ...*model.Company) func(*ProductOpts) {
	return func(o *ProductOpts) { o.Dealers = dealers }
}

// CreateProduct creates a product supplied by supplier
func (f *Factory) CreateProduct(t *testing.T, supplier *model.Company, opts ...func(*ProductOpts)) *model.Product {
	t.Helper()

	id := randomID()
	o := &ProductOpts{
		Title:   fmt.Sprintf("Product %s", id),
		SupID:   fmt.Sprintf("SUP-%s", id),
		Price:   10,
		Stock:   1,
		Visible: true,
	}
	for _, fn := range opts {
		fn(o)
	}

	p := model.NewProduct()
	for _, err := range []error{
		p.SetTitle(o.Title),
		p.SetSupplierProductID(o.SupID),
		p.SetSupplier(supplier),
		p.SetDouble("price", o.Price),
		p.SetInt32("stock", o.Stock),
		p.SetBool("visible", o.Visible),
	} {
		if err != nil {
			t.Fatalf("fixtures: product field: %v", err)
		}
	}
	if len(o.Dealers) > 0 {
		dealers := make([]entity.Model, 0, len(o.Dealers))
		for _, d := range o.Dealers {
			dealers = append(dealers, d)
		}
		if err := p.SetLinks("dealers", dealers...); err != nil {
			t.Fatalf("fixtures: product dealers: %v", err)
		}
	}

	saved, err := f.Products.Import(ctx(t), p)
	if err != nil {
		t.Fatalf("fixtures: failed to create product: %v", err)
	}
	return saved
}

// ============================================================================
// Page Fixtures
// ============================================================================

// CreatePage creates a visible page named name
func (f *Factory) CreatePage(t *testing.T, name string) *model.Page {
	t.Helper()

	p := model.NewPage()
	if err := p.SetName(name); err != nil {
		t.Fatalf("fixtures: page name: %v", err)
	}
	if err := p.SetBool("visible", true); err != nil {
		t.Fatalf("fixtures: page visible: %v", err)
	}
	saved, err := f.Pages.Save(ctx(t), p)
	if err != nil {
		t.Fatalf("fixtures: failed to create page: %v", err)
	}
	return saved
}
