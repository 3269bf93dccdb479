package entity

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/database"
)

// MarshalJSON encodes the document as relaxed Extended JSON.
func (e *Entity) MarshalJSON() ([]byte, error) {
	doc := e.doc
	if doc == nil {
		doc = bson.D{}
	}
	b, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrSerialization, err)
	}
	return b, nil
}

// UnmarshalJSON replaces the document with the decoded Extended JSON
// object. Both relaxed and canonical forms are accepted.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return fmt.Errorf("%w: %v", database.ErrSerialization, err)
	}
	e.SetDocument(doc)
	return nil
}

// ToJSON returns the relaxed Extended JSON text of the document.
func (e *Entity) ToJSON() (string, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FromJSON decodes data into a new entity of kind.
func FromJSON(kind string, data []byte) (Model, error) {
	m, err := NewOf(kind)
	if err != nil {
		return nil, err
	}
	if err := m.Base().UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return m, nil
}
