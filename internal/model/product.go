package model

import (
	"context"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/entity"
)

// KindProduct is the product collection.
const KindProduct = "product"

// Product list fields the storefront expects to exist, even when empty.
var productListFields = []string{
	"mainGroup",
	"group",
	"environment",
	"design",
	"properties",
	"matchingProducts",
	"materialtype",
	"colortype",
}

// ProductSchema declares the typed fields of a product.
var ProductSchema = entity.NewSchema(KindProduct,
	entity.Field{Name: "name", Kind: entity.KindString},
	entity.Field{Name: "title", Kind: entity.KindString},
	entity.Field{Name: "description", Kind: entity.KindString},
	entity.Field{Name: "supid", Kind: entity.KindString, Verbatim: true},
	entity.Field{Name: "supplier", Kind: entity.KindLink, Ref: KindCompany},
	entity.Field{Name: "dealers", Kind: entity.KindLinkList, Ref: KindCompany},
	entity.Field{Name: "matchingProducts", Kind: entity.KindLinkList, Ref: KindProduct},
	entity.Field{Name: "variants", Kind: entity.KindEmbeddedList, Ref: KindVariant},
	entity.Field{Name: "price", Kind: entity.KindDouble},
	entity.Field{Name: "stock", Kind: entity.KindInt32},
	entity.Field{Name: "visible", Kind: entity.KindBool},
	entity.Field{Name: "images", Kind: entity.KindList},
	entity.Field{Name: "mainGroup", Kind: entity.KindList},
	entity.Field{Name: "group", Kind: entity.KindList},
	entity.Field{Name: "environment", Kind: entity.KindList},
	entity.Field{Name: "design", Kind: entity.KindList},
	entity.Field{Name: "properties", Kind: entity.KindList},
	entity.Field{Name: "materialtype", Kind: entity.KindList},
	entity.Field{Name: "colortype", Kind: entity.KindList},
)

// Product is one catalog item offered by a supplier.
type Product struct {
	entity.Entity
}

// NewProduct returns an empty product.
func NewProduct() *Product {
	return &Product{Entity: entity.New(ProductSchema)}
}

func (p *Product) Name() string {
	s, _ := p.String("name")
	return s
}

func (p *Product) SetName(name string) error { return p.SetString("name", name) }

func (p *Product) Title() string {
	s, _ := p.String("title")
	return s
}

func (p *Product) SetTitle(title string) error { return p.SetString("title", title) }

// SupplierProductID returns the supplier's own id for the product.
func (p *Product) SupplierProductID() string {
	s, _ := p.String("supid")
	return s
}

func (p *Product) SetSupplierProductID(id string) error { return p.SetString("supid", id) }

// SetSupplier links the product to the supplying company.
func (p *Product) SetSupplier(c *Company) error { return p.SetLink("supplier", c) }

// Supplier resolves the supplying company.
func (p *Product) Supplier(ctx context.Context, f entity.Fetcher) (*Company, error) {
	return entity.LinkAs[*Company](ctx, f, &p.Entity, "supplier")
}

// Dealers resolves every dealer selling the product.
func (p *Product) Dealers(ctx context.Context, f entity.Fetcher) ([]*Company, error) {
	return entity.LinksAs[*Company](ctx, f, &p.Entity, "dealers")
}

// Variants materializes the embedded variants.
func (p *Product) Variants() ([]*Variant, error) {
	return entity.EmbeddedList[*Variant](&p.Entity, "variants")
}

// SetVariants replaces the embedded variants.
func (p *Product) SetVariants(vs []*Variant) error {
	return entity.SetEmbeddedList(&p.Entity, "variants", vs)
}

// UniqueFilter deduplicates on the supplier and the supplier's product id
// when both are known, and on identity otherwise.
func (p *Product) UniqueFilter() bson.D {
	supid := p.SupplierProductID()
	supplier, ok := p.LinkID("supplier")
	if supid != "" && ok {
		return bson.D{
			{Key: "supid", Value: supid},
			{Key: "supplier", Value: supplier},
		}
	}
	return p.Entity.UniqueFilter()
}

var nameStrip = regexp.MustCompile(`[^a-z0-9/ ]`)

// NameFromTitle derives the url-safe product name from a title.
func NameFromTitle(title string) string {
	s := nameStrip.ReplaceAllString(strings.ToLower(title), "")
	return strings.ReplaceAll(s, " ", "_")
}

// BeforeSave derives a missing name from the title.
func (p *Product) BeforeSave(previous entity.Model) {
	if p.Name() != "" {
		return
	}
	if title := p.Title(); title != "" {
		_ = p.SetName(NameFromTitle(title))
	}
}

// PrepareExport fills the storefront list fields with empty lists.
func (p *Product) PrepareExport() {
	for _, name := range productListFields {
		if !p.Has(name) {
			_ = p.SetList(name, bson.A{})
		}
	}
}

func init() {
	entity.Register(ProductSchema, func() entity.Model { return NewProduct() })
}
