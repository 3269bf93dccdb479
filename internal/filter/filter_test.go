package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func sampleDocs() []bson.D {
	return []bson.D{
		{{Key: "name", Value: "anvil"}, {Key: "price", Value: 30.5}, {Key: "supplier", Value: "acme"}, {Key: "tags", Value: bson.A{"iron", "heavy"}}},
		{{Key: "name", Value: "rope"}, {Key: "price", Value: int32(4)}, {Key: "supplier", Value: "acme"}, {Key: "tags", Value: bson.A{"outdoor"}}},
		{{Key: "name", Value: "tent"}, {Key: "price", Value: int64(120)}, {Key: "supplier", Value: "camp"}, {Key: "meta", Value: bson.D{{Key: "color", Value: "green"}}}},
	}
}

func TestMatch_Equality(t *testing.T) {
	docs := sampleDocs()

	ok, err := Match(docs[0], bson.D{{Key: "supplier", Value: "acme"}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(docs[2], bson.D{{Key: "supplier", Value: "acme"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatch_ArrayMembership(t *testing.T) {
	ok, err := Match(sampleDocs()[0], bson.D{{Key: "tags", Value: "heavy"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_NumericKindsCompareAsNumbers(t *testing.T) {
	docs := sampleDocs()

	ok, err := Match(docs[1], bson.D{{Key: "price", Value: int64(4)}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(docs[2], bson.D{{Key: "price", Value: bson.D{{Key: "$gte", Value: 100}}}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_DottedPath(t *testing.T) {
	ok, err := Match(sampleDocs()[2], bson.D{{Key: "meta.color", Value: "green"}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_LogicalOperators(t *testing.T) {
	f := bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "name", Value: "rope"}},
		bson.D{{Key: "supplier", Value: "camp"}},
	}}}

	var names []string
	for _, d := range sampleDocs() {
		ok, err := Match(d, f)
		require.NoError(t, err)
		if ok {
			v, _ := Lookup(d, "name")
			names = append(names, v.(string))
		}
	}
	assert.Equal(t, []string{"rope", "tent"}, names)
}

func TestMatch_InExistsRegex(t *testing.T) {
	docs := sampleDocs()

	ok, err := Match(docs[0], bson.D{{Key: "name", Value: bson.D{{Key: "$in", Value: bson.A{"anvil", "hammer"}}}}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(docs[0], bson.D{{Key: "meta", Value: bson.D{{Key: "$exists", Value: false}}}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Match(docs[1], bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^RO"}, {Key: "$options", Value: "i"}}}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatch_UnsupportedOperator(t *testing.T) {
	_, err := Match(sampleDocs()[0], bson.D{{Key: "name", Value: bson.D{{Key: "$where", Value: "1"}}}})
	assert.ErrorIs(t, err, ErrUnsupportedOperator)
}

func TestNormalize(t *testing.T) {
	d, err := Normalize(nil)
	require.NoError(t, err)
	assert.Empty(t, d)

	d, err = Normalize(bson.M{"supid": "X1"})
	require.NoError(t, err)
	v, ok := Lookup(d, "supid")
	assert.True(t, ok)
	assert.Equal(t, "X1", v)
}

func TestSortAndProject(t *testing.T) {
	docs := sampleDocs()
	Sort(docs, bson.D{{Key: "price", Value: -1}})

	got := make([]string, len(docs))
	for i, d := range docs {
		v, _ := Lookup(d, "name")
		got[i] = v.(string)
	}
	assert.Equal(t, []string{"tent", "anvil", "rope"}, got)

	p := Project(docs[0], bson.D{{Key: "name", Value: 1}})
	assert.Len(t, p, 1)

	p = Project(docs[0], bson.D{{Key: "meta", Value: 0}})
	_, has := Lookup(p, "meta")
	assert.False(t, has)
}

func TestApplyUpdate(t *testing.T) {
	doc := sampleDocs()[1]

	out, err := ApplyUpdate(doc, bson.D{
		{Key: "$set", Value: bson.D{{Key: "meta.color", Value: "red"}}},
		{Key: "$inc", Value: bson.D{{Key: "price", Value: 1}}},
		{Key: "$push", Value: bson.D{{Key: "tags", Value: "rope"}}},
		{Key: "$unset", Value: bson.D{{Key: "supplier", Value: ""}}},
	})
	require.NoError(t, err)

	color, _ := Lookup(out, "meta.color")
	assert.Equal(t, "red", color)
	price, _ := Lookup(out, "price")
	assert.Equal(t, int64(5), price)
	tags, _ := Lookup(out, "tags")
	assert.Equal(t, bson.A{"outdoor", "rope"}, tags)
	_, has := Lookup(out, "supplier")
	assert.False(t, has)

	// input untouched
	_, has = Lookup(doc, "meta")
	assert.False(t, has)
}

func TestApplyUpdate_RejectsReplacementDocument(t *testing.T) {
	_, err := ApplyUpdate(sampleDocs()[0], bson.D{{Key: "name", Value: "x"}})
	assert.Error(t, err)

	_, err = ApplyUpdate(sampleDocs()[0], bson.D{{Key: "$set", Value: bson.D{{Key: "_id", Value: "x"}}}})
	assert.Error(t, err)
}

func TestAggregate_GroupAndCount(t *testing.T) {
	out, err := Aggregate(sampleDocs(), []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$supplier"},
			{Key: "n", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "avg", Value: bson.D{{Key: "$avg", Value: "$price"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	id, _ := Lookup(out[0], "_id")
	n, _ := Lookup(out[0], "n")
	avg, _ := Lookup(out[0], "avg")
	assert.Equal(t, "acme", id)
	assert.Equal(t, int64(2), n)
	assert.InDelta(t, 17.25, avg, 1e-9)

	out, err = Aggregate(sampleDocs(), []bson.D{
		{{Key: "$match", Value: bson.D{{Key: "supplier", Value: "acme"}}}},
		{{Key: "$count", Value: "total"}},
	})
	require.NoError(t, err)
	total, _ := Lookup(out[0], "total")
	assert.Equal(t, int64(2), total)
}

func TestCompare_DatesAndKinds(t *testing.T) {
	now := time.Now()
	c, ok := Compare(bson.NewDateTimeFromTime(now), now.Add(time.Hour))
	assert.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare("a", int32(1))
	assert.False(t, ok)
}

type identityMapper struct{}

func (identityMapper) Field(name string) string { return name }
func (identityMapper) Value(v any) any          { return v }

func TestSurrealQL(t *testing.T) {
	cond, vars, err := SurrealQL(bson.D{
		{Key: "supplier", Value: "acme"},
		{Key: "price", Value: bson.D{{Key: "$lt", Value: 50}}},
	}, identityMapper{})
	require.NoError(t, err)

	assert.Equal(t, "((supplier = $p0 OR (type::is::array(supplier) AND supplier CONTAINS $p0)) AND price < $p1)", cond)
	assert.Equal(t, map[string]any{"p0": "acme", "p1": 50}, vars)
}

func TestSurrealQL_EmptyAndUnsupported(t *testing.T) {
	cond, vars, err := SurrealQL(nil, identityMapper{})
	require.NoError(t, err)
	assert.Equal(t, "true", cond)
	assert.Empty(t, vars)

	_, _, err = SurrealQL(bson.D{{Key: "$where", Value: "1"}}, identityMapper{})
	assert.ErrorIs(t, err, ErrUnsupportedOperator)
}

func TestSurrealOrder(t *testing.T) {
	order, err := SurrealOrder(bson.D{{Key: "name", Value: 1}, {Key: "updateDate", Value: -1}}, identityMapper{})
	require.NoError(t, err)
	assert.Equal(t, "name ASC, updateDate DESC", order)
}
