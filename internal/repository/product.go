package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/cursor"
	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/model"
)

// ProductRepository handles product data access
type ProductRepository struct {
	*Repository[*model.Product]
	companies *CompanyRepository
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *database.Manager, companies *CompanyRepository) *ProductRepository {
	return &ProductRepository{
		Repository: New(db, model.NewProduct),
		companies:  companies,
	}
}

// FindOneByID finds a product by its external id field.
func (r *ProductRepository) FindOneByID(ctx context.Context, id string) (*model.Product, error) {
	return r.FindWhere(ctx, bson.D{{Key: "id", Value: id}}).Limit(1).First(ctx)
}

// FindOneBySupplierID finds a product by the supplier's own product id.
// When the supplier has no such product, id is tried as an external id.
func (r *ProductRepository) FindOneBySupplierID(ctx context.Context, supid, companyID string) (*model.Product, error) {
	if companyID == "" {
		r.log.Warn("searching for supid without supplier id", "supid", supid)
		return nil, fmt.Errorf("%w: supplier id required", database.ErrInvalidID)
	}
	company, err := r.companies.Get(ctx, companyID)
	if err != nil {
		r.log.Info("could not get company", "company", companyID, "error", err)
		return nil, err
	}
	cid, _ := company.ObjectID()

	p, err := r.FindOne(ctx, bson.D{
		{Key: "supid", Value: supid},
		{Key: "supplier", Value: cid},
	})
	if errors.Is(err, database.ErrNotFound) {
		return r.FindOneByID(ctx, supid)
	}
	return p, err
}

// Get fetches a product by identity, falling back to the external id for
// ids that are not identities or not found.
func (r *ProductRepository) Get(ctx context.Context, id string) (*model.Product, error) {
	p, err := r.Repository.Get(ctx, id)
	if errors.Is(err, database.ErrInvalidID) || errors.Is(err, database.ErrNotFound) {
		return r.FindOneByID(ctx, id)
	}
	return p, err
}

// ForCompany returns the products a company supplies or sells.
func (r *ProductRepository) ForCompany(ctx context.Context, c *model.Company) *cursor.Cursor[*model.Product] {
	f := c.ProductFilter()
	if f == nil {
		return cursor.Failed[*model.Product](model.KindProduct,
			fmt.Errorf("%w: company has no identity", database.ErrInvalidID))
	}
	return r.FindWhere(ctx, f)
}

// Import saves a product received from a supplier feed. It deduplicates
// on supplier and supid like every save.
func (r *ProductRepository) Import(ctx context.Context, p *model.Product) (*model.Product, error) {
	return r.Save(ctx, p)
}
