// Package filter evaluates MongoDB-style query documents outside of a MongoDB
// server.
//
// Filters stay opaque to the persistence layer: repositories and sessions pass
// them through untouched. Drivers that talk to a real MongoDB hand them to the
// server; the embedded badger driver evaluates them with Match, Sort, Project,
// ApplyUpdate and Aggregate, and the SurrealDB driver translates them into a
// SurrealQL WHERE clause with SurrealQL.
//
// Supported query operators: $and, $or, $nor, $eq, $ne, $gt, $gte, $lt, $lte,
// $in, $nin, $exists, $regex, $size. Equality against an array field matches
// when any element is equal, as in MongoDB.
package filter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ErrUnsupportedOperator is returned for operators this package does not evaluate.
var ErrUnsupportedOperator = errors.New("unsupported operator")

// Normalize converts any BSON-marshalable filter (bson.D, bson.M, structs)
// into a bson.D. A nil filter matches everything and normalizes to an empty
// document.
func Normalize(f any) (bson.D, error) {
	switch v := f.(type) {
	case nil:
		return bson.D{}, nil
	case bson.D:
		return v, nil
	}

	raw, err := bson.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("normalize filter: %w", err)
	}
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("normalize filter: %w", err)
	}
	return d, nil
}

// Lookup resolves a dotted path inside doc.
func Lookup(doc bson.D, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	for _, e := range doc {
		if e.Key != head {
			continue
		}
		if !nested {
			return e.Value, true
		}
		sub, ok := AsDoc(e.Value)
		if !ok {
			return nil, false
		}
		return Lookup(sub, rest)
	}
	return nil, false
}

// AsDoc returns v as an ordered document if it is any kind of document value.
func AsDoc(v any) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.M:
		return mapToD(d), true
	case map[string]any:
		return mapToD(d), true
	case bson.Raw:
		var out bson.D
		if err := bson.Unmarshal(d, &out); err != nil {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// AsArray returns v as a slice if it is any kind of array value.
func AsArray(v any) ([]any, bool) {
	switch a := v.(type) {
	case bson.A:
		return []any(a), true
	case []any:
		return a, true
	case []string:
		out := make([]any, len(a))
		for i, s := range a {
			out[i] = s
		}
		return out, true
	case []bson.ObjectID:
		out := make([]any, len(a))
		for i, id := range a {
			out[i] = id
		}
		return out, true
	case []bson.D:
		out := make([]any, len(a))
		for i, d := range a {
			out[i] = d
		}
		return out, true
	}
	return nil, false
}

func mapToD(m map[string]any) bson.D {
	d := make(bson.D, 0, len(m))
	for k, v := range m {
		d = append(d, bson.E{Key: k, Value: v})
	}
	return d
}

// number widens any numeric BSON value to float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time(), true
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

// typeRank orders values of different kinds the way MongoDB sorts them.
func typeRank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := number(v); ok {
		return 1
	}
	switch v.(type) {
	case string:
		return 2
	case bson.D, bson.M, map[string]any:
		return 3
	case bson.A, []any:
		return 4
	case bson.ObjectID:
		return 5
	case bool:
		return 6
	case bson.DateTime, time.Time:
		return 7
	}
	return 8
}

// Compare orders a and b. The boolean is false when the values are of
// different kinds; the int then orders them by kind.
func Compare(a, b any) (int, bool) {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1, false
		}
		return 1, false
	}

	switch ra {
	case 0:
		return 0, true
	case 1:
		x, _ := number(a)
		y, _ := number(b)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case 2:
		return strings.Compare(a.(string), b.(string)), true
	case 5:
		x, y := a.(bson.ObjectID), b.(bson.ObjectID)
		return bytes.Compare(x[:], y[:]), true
	case 6:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		}
		return 1, true
	case 7:
		x, _ := timeOf(a)
		y, _ := timeOf(b)
		return x.Compare(y), true
	}

	if Equal(a, b) {
		return 0, true
	}
	return 0, false
}

// Equal reports deep equality between two BSON values, treating all numeric
// kinds as numbers and documents as ordered maps.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && (x == y || (math.IsNaN(x) && math.IsNaN(y)))
	}
	if x, ok := timeOf(a); ok {
		y, ok := timeOf(b)
		return ok && x.Equal(y)
	}
	if x, ok := AsDoc(a); ok {
		y, ok := AsDoc(b)
		if !ok || len(x) != len(y) {
			return false
		}
		for _, e := range x {
			v, found := Lookup(y, e.Key)
			if !found || !Equal(e.Value, v) {
				return false
			}
		}
		return true
	}
	if x, ok := AsArray(a); ok {
		y, ok := AsArray(b)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case bson.ObjectID:
		y, ok := b.(bson.ObjectID)
		return ok && x == y
	}
	return false
}

// Clone returns a deep copy of a document so stored values never alias
// caller-owned slices.
func Clone(doc bson.D) bson.D {
	if doc == nil {
		return nil
	}
	out := make(bson.D, len(doc))
	for i, e := range doc {
		out[i] = bson.E{Key: e.Key, Value: cloneValue(e.Value)}
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case bson.D:
		return Clone(x)
	case bson.M:
		return Clone(mapToD(x))
	case map[string]any:
		return Clone(mapToD(x))
	case bson.A:
		out := make(bson.A, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	case []any:
		out := make(bson.A, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	}
	return v
}
