package model

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/entity"
)

// ============================================================================
// Product Tests
// ============================================================================

func TestProduct_UniqueFilter_NaturalKey(t *testing.T) {
	t.Parallel()

	supplier := NewCompany()
	sid := supplier.EnsureIdentity()

	p := NewProduct()
	require.NoError(t, p.SetSupplierProductID("AB-12"))
	require.NoError(t, p.SetSupplier(supplier))

	assert.Equal(t, bson.D{
		{Key: "supid", Value: "AB-12"},
		{Key: "supplier", Value: sid},
	}, p.UniqueFilter())
}

func TestProduct_UniqueFilter_FallsBackToIdentity(t *testing.T) {
	t.Parallel()

	p := NewProduct()
	require.NoError(t, p.SetSupplierProductID("AB-12"))
	assert.Nil(t, p.UniqueFilter(), "no supplier and no identity")

	id := p.EnsureIdentity()
	assert.Equal(t, bson.D{{Key: "_id", Value: id}}, p.UniqueFilter())
}

func TestNameFromTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		title string
		want  string
	}{
		{"Oak Table", "oak_table"},
		{"Chair (Red) 2/4", "chair_red_2/4"},
		{"Ümlaut Sofa!", "mlaut_sofa"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NameFromTitle(tt.title), tt.title)
	}
}

func TestProduct_BeforeSave(t *testing.T) {
	t.Parallel()

	p := NewProduct()
	require.NoError(t, p.SetTitle("Oak Table"))
	p.BeforeSave(nil)
	assert.Equal(t, "oak_table", p.Name())

	require.NoError(t, p.SetTitle("Pine Table"))
	p.BeforeSave(nil)
	assert.Equal(t, "oak_table", p.Name(), "an existing name is kept")
}

func TestProduct_PrepareExport(t *testing.T) {
	t.Parallel()

	p := NewProduct()
	require.NoError(t, p.SetList("design", bson.A{"modern"}))
	p.PrepareExport()

	for _, name := range productListFields {
		assert.True(t, p.Has(name), name)
	}
	assert.Equal(t, []string{"modern"}, p.Strings("design"))
}

func TestProduct_Variants(t *testing.T) {
	t.Parallel()

	v := NewVariant()
	require.NoError(t, v.SetSKU("AB-12-RED"))
	require.NoError(t, v.SetStock(4))

	p := NewProduct()
	require.NoError(t, p.SetVariants([]*Variant{v}))

	got, err := p.Variants()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "AB-12-RED", got[0].SKU())
	assert.Equal(t, int32(4), got[0].Stock())

	list, _ := p.List("variants")
	require.Len(t, list, 1)
	sub, ok := list[0].(bson.D)
	require.True(t, ok)
	for _, e := range sub {
		assert.NotEqual(t, entity.FieldCreationDate, e.Key, "embedded items carry no lifecycle dates")
	}
}

type companyFetcher map[bson.ObjectID]bson.D

func (f companyFetcher) Get(ctx context.Context, coll string, id bson.ObjectID) (bson.D, error) {
	if coll != KindCompany {
		return nil, fmt.Errorf("%w: collection %s", database.ErrQuery, coll)
	}
	d, ok := f[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return d, nil
}

func TestProduct_Supplier(t *testing.T) {
	t.Parallel()

	sid := bson.NewObjectID()
	f := companyFetcher{sid: {
		{Key: "_id", Value: sid},
		{Key: "name", Value: "Acme"},
		{Key: "otype", Value: int32(CompanyTypeSupplier)},
	}}

	p := NewProduct()
	require.NoError(t, p.SetValue("supplier", sid))

	c, err := p.Supplier(context.Background(), f)
	require.NoError(t, err)
	assert.Equal(t, "Acme", c.Name())
	assert.True(t, c.IsSupplier())
}

// ============================================================================
// Company Tests
// ============================================================================

func TestCompany_ProductFilter(t *testing.T) {
	t.Parallel()

	c := NewCompany()
	assert.Nil(t, c.ProductFilter())

	id := c.EnsureIdentity()
	require.NoError(t, c.SetType(CompanyTypeDealer))
	assert.Equal(t, bson.D{{Key: "dealers", Value: id}}, c.ProductFilter())

	require.NoError(t, c.SetType(CompanyTypeSupplier))
	assert.Equal(t, bson.D{{Key: "supplier", Value: id}}, c.ProductFilter())
}

func TestCompany_VerbatimContactFields(t *testing.T) {
	t.Parallel()

	c := NewCompany()
	require.NoError(t, c.SetString("phone", "+31 20 555 0100"))
	require.NoError(t, c.SetString("website", "https://acme.example.com"))
	require.NoError(t, c.SetString("description", "visit acme.example.com"))

	s, _ := c.String("website")
	assert.Equal(t, "https://acme.example.com", s)
	s, _ = c.String("description")
	assert.Equal(t, "visit "+entity.RedactionMarker, s)
}

func TestCompanyType_IsValid(t *testing.T) {
	t.Parallel()

	assert.True(t, CompanyTypeSupplier.IsValid())
	assert.True(t, CompanyTypeDealer.IsValid())
	assert.False(t, CompanyType(0).IsValid())
}

// ============================================================================
// Page Tests
// ============================================================================

func TestPage_UniqueFilterByName(t *testing.T) {
	t.Parallel()

	p := NewPage()
	require.NoError(t, p.SetName("partner"))
	assert.Equal(t, bson.D{{Key: "name", Value: "partner"}}, p.UniqueFilter())
	assert.False(t, p.Visible())
}

func TestRegistry_KnowsKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{KindProduct, KindCompany, KindPage, KindVariant} {
		m, err := entity.NewOf(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, kind, m.Base().Kind())
	}
}
