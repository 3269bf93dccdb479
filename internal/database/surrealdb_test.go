package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/filter"
)

func TestSurrealRecordRoundTrip(t *testing.T) {
	oid := bson.NewObjectID()
	link := bson.NewObjectID()
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rid, content, err := toRecord(bson.D{
		{Key: "_id", Value: oid},
		{Key: "id", Value: oid.Hex()},
		{Key: "name", Value: "anvil"},
		{Key: "company", Value: link},
		{Key: "creationDate", Value: bson.NewDateTimeFromTime(when)},
	})
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), rid)
	assert.Equal(t, oid.Hex(), content["_oid"])
	assert.Equal(t, oid.Hex(), content["_ext_id"])
	assert.Equal(t, link.Hex(), content["company"], "links are stored as hex")
	assert.Equal(t, when, content["creationDate"])

	// what the server sends back
	row := map[string]any{
		"id":           models.NewRecordID("product", oid.Hex()),
		"_oid":         oid.Hex(),
		"_ext_id":      oid.Hex(),
		"name":         "anvil",
		"company":      link.Hex(),
		"creationDate": models.CustomDateTime{Time: when},
		"stock":        uint64(3),
	}
	doc, err := fromRecord(row)
	require.NoError(t, err)

	assert.Equal(t, "_id", doc[0].Key)
	assert.Equal(t, oid, doc[0].Value)
	v, _ := filter.Lookup(doc, "id")
	assert.Equal(t, oid.Hex(), v)
	v, _ = filter.Lookup(doc, "creationDate")
	assert.Equal(t, bson.NewDateTimeFromTime(when), v)
	v, _ = filter.Lookup(doc, "stock")
	assert.Equal(t, int64(3), v)
}

func TestSurrealRecordRequiresObjectID(t *testing.T) {
	_, _, err := toRecord(bson.D{{Key: "name", Value: "x"}})
	assert.ErrorIs(t, err, ErrQuery)

	_, _, err = toRecord(bson.D{{Key: "_id", Value: "plain"}})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSurrealFilterTranslation(t *testing.T) {
	oid := bson.NewObjectID()
	cond, vars, err := filter.SurrealQL(bson.D{{Key: "_id", Value: oid}}, surrealMapper{})
	require.NoError(t, err)
	assert.Contains(t, cond, "_oid = $p0")
	assert.Equal(t, oid.Hex(), vars["p0"])
}

func TestIsDuplicateError(t *testing.T) {
	assert.True(t, isDuplicateError("Database record `product:abc` already exists"))
	assert.False(t, isDuplicateError("Parse error"))
}
