package model

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/entity"
)

// KindPage is the collection of content pages.
const KindPage = "page"

// PageSchema declares the typed fields of a page.
var PageSchema = entity.NewSchema(KindPage,
	entity.Field{Name: "name", Kind: entity.KindString},
	entity.Field{Name: "title", Kind: entity.KindString},
	entity.Field{Name: "content", Kind: entity.KindString, Verbatim: true},
	entity.Field{Name: "visible", Kind: entity.KindBool},
	entity.Field{Name: "showProducts", Kind: entity.KindBool},
	entity.Field{Name: "filterValues", Kind: entity.KindMap},
)

// Page is a named content page, optionally listing filtered products.
type Page struct {
	entity.Entity
}

// NewPage returns an empty page.
func NewPage() *Page {
	return &Page{Entity: entity.New(PageSchema)}
}

func (p *Page) Name() string {
	s, _ := p.String("name")
	return s
}

func (p *Page) SetName(name string) error { return p.SetString("name", name) }

// Visible reports whether the page is published. Unset means hidden.
func (p *Page) Visible() bool {
	b, _ := p.Bool("visible")
	return b
}

// FilterValues returns the product filter the page lists, keyed by
// product field.
func (p *Page) FilterValues() map[string]any {
	m, _ := p.Map("filterValues")
	return m
}

// UniqueFilter deduplicates pages on their name.
func (p *Page) UniqueFilter() bson.D {
	if name := p.Name(); name != "" {
		return bson.D{{Key: "name", Value: name}}
	}
	return p.Entity.UniqueFilter()
}

func init() {
	entity.Register(PageSchema, func() entity.Model { return NewPage() })
}
