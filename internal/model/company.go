package model

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/entity"
)

// KindCompany is the collection of suppliers and dealers.
const KindCompany = "company"

// CompanyType distinguishes suppliers from dealers
type CompanyType int32

const (
	CompanyTypeSupplier CompanyType = 1 // Supplies products
	CompanyTypeDealer   CompanyType = 2 // Sells supplied products
)

// IsValid returns true if the type is a known company type
func (c CompanyType) IsValid() bool {
	switch c {
	case CompanyTypeSupplier, CompanyTypeDealer:
		return true
	default:
		return false
	}
}

// CompanySchema declares the typed fields of a company.
var CompanySchema = entity.NewSchema(KindCompany,
	entity.Field{Name: "name", Kind: entity.KindString},
	entity.Field{Name: "otype", Kind: entity.KindInt32},
	entity.Field{Name: "website", Kind: entity.KindString, Verbatim: true},
	entity.Field{Name: "email", Kind: entity.KindString, Verbatim: true},
	entity.Field{Name: "phone", Kind: entity.KindString, Verbatim: true},
	entity.Field{Name: "address", Kind: entity.KindMap},
	entity.Field{Name: "description", Kind: entity.KindString},
)

// Company is a supplier or dealer.
type Company struct {
	entity.Entity
}

// NewCompany returns an empty company.
func NewCompany() *Company {
	return &Company{Entity: entity.New(CompanySchema)}
}

func (c *Company) Name() string {
	s, _ := c.String("name")
	return s
}

func (c *Company) SetName(name string) error { return c.SetString("name", name) }

// Type returns the company type, or 0 if unset.
func (c *Company) Type() CompanyType {
	n, _ := c.Int32("otype")
	return CompanyType(n)
}

func (c *Company) SetType(t CompanyType) error { return c.SetInt32("otype", int32(t)) }

// IsSupplier reports whether the company supplies products.
func (c *Company) IsSupplier() bool { return c.Type() == CompanyTypeSupplier }

// ProductFilter matches the products a company is involved in: the ones
// it supplies, or for a dealer the ones it sells. A company without an
// identity matches nothing.
func (c *Company) ProductFilter() bson.D {
	id, ok := c.ObjectID()
	if !ok {
		return nil
	}
	if c.IsSupplier() {
		return bson.D{{Key: "supplier", Value: id}}
	}
	return bson.D{{Key: "dealers", Value: id}}
}

func init() {
	entity.Register(CompanySchema, func() entity.Model { return NewCompany() })
}
