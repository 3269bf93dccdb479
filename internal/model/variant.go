package model

import "github.com/forgo/catalog/internal/entity"

// KindVariant names product variants. Variants are embedded in their
// product and have no collection of their own.
const KindVariant = "variant"

// VariantSchema declares the typed fields of a variant.
var VariantSchema = entity.NewSchema(KindVariant,
	entity.Field{Name: "sku", Kind: entity.KindString, Verbatim: true},
	entity.Field{Name: "color", Kind: entity.KindString},
	entity.Field{Name: "size", Kind: entity.KindString},
	entity.Field{Name: "price", Kind: entity.KindDouble},
	entity.Field{Name: "stock", Kind: entity.KindInt32},
)

// Variant is one orderable version of a product.
type Variant struct {
	entity.Entity
}

// NewVariant returns an empty variant.
func NewVariant() *Variant {
	return &Variant{Entity: entity.New(VariantSchema)}
}

func (v *Variant) SKU() string {
	s, _ := v.String("sku")
	return s
}

func (v *Variant) SetSKU(sku string) error { return v.SetString("sku", sku) }

// Stock returns the units in stock.
func (v *Variant) Stock() int32 {
	n, _ := v.Int32("stock")
	return n
}

func (v *Variant) SetStock(n int32) error { return v.SetInt32("stock", n) }

func init() {
	entity.Register(VariantSchema, func() entity.Model { return NewVariant() })
}
