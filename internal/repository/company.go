package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/cursor"
	"github.com/forgo/catalog/internal/database"
	"github.com/forgo/catalog/internal/model"
)

// CompanyRepository handles company data access
type CompanyRepository struct {
	*Repository[*model.Company]
}

// NewCompanyRepository creates a new company repository
func NewCompanyRepository(db *database.Manager) *CompanyRepository {
	return &CompanyRepository{Repository: New(db, model.NewCompany)}
}

// TypeFilter matches companies of type t.
func TypeFilter(t model.CompanyType) bson.D {
	return bson.D{{Key: "otype", Value: int32(t)}}
}

// Suppliers returns every supplier sorted by name.
func (r *CompanyRepository) Suppliers(ctx context.Context) *cursor.Cursor[*model.Company] {
	return r.FindWhere(ctx, TypeFilter(model.CompanyTypeSupplier)).
		Sort(bson.D{{Key: "name", Value: 1}})
}

// Dealers returns every dealer sorted by name.
func (r *CompanyRepository) Dealers(ctx context.Context) *cursor.Cursor[*model.Company] {
	return r.FindWhere(ctx, TypeFilter(model.CompanyTypeDealer)).
		Sort(bson.D{{Key: "name", Value: 1}})
}

// FindByName finds a company by exact name.
func (r *CompanyRepository) FindByName(ctx context.Context, name string) (*model.Company, error) {
	return r.FindOne(ctx, bson.D{{Key: "name", Value: name}})
}
