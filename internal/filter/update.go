package filter

import (
	"fmt"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Sort orders docs in place by a sort specification such as
// {"name": 1, "creationDate": -1}.
func Sort(docs []bson.D, spec bson.D) {
	if len(spec) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, key := range spec {
			dir := 1
			if n, ok := number(key.Value); ok && n < 0 {
				dir = -1
			}
			a, _ := Lookup(docs[i], key.Key)
			b, _ := Lookup(docs[j], key.Key)
			c, _ := Compare(a, b)
			if c != 0 {
				return c*dir < 0
			}
		}
		return false
	})
}

// Project applies an inclusion or exclusion projection. The _id field is
// kept unless excluded explicitly.
func Project(doc bson.D, spec bson.D) bson.D {
	if len(spec) == 0 {
		return doc
	}

	include := map[string]bool{}
	exclude := map[string]bool{}
	for _, e := range spec {
		on := true
		switch v := e.Value.(type) {
		case bool:
			on = v
		default:
			if n, ok := number(v); ok {
				on = n != 0
			}
		}
		if on {
			include[e.Key] = true
		} else {
			exclude[e.Key] = true
		}
	}

	inclusive := len(include) > 0
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		switch {
		case exclude[e.Key]:
		case !inclusive, include[e.Key], e.Key == "_id":
			out = append(out, e)
		}
	}
	return out
}

// ApplyUpdate applies update operators to a copy of doc and returns it.
// Supported: $set, $unset, $inc, $push, $addToSet, $pull.
func ApplyUpdate(doc bson.D, update bson.D) (bson.D, error) {
	if len(update) == 0 {
		return nil, fmt.Errorf("empty update document")
	}
	out := Clone(doc)
	for _, op := range update {
		if !strings.HasPrefix(op.Key, "$") {
			return nil, fmt.Errorf("update document must only contain operators, got %q", op.Key)
		}
		fields, ok := AsDoc(op.Value)
		if !ok {
			return nil, fmt.Errorf("%s requires a document", op.Key)
		}
		for _, f := range fields {
			if f.Key == "_id" && op.Key != "$unset" {
				return nil, fmt.Errorf("cannot modify _id")
			}
			var err error
			switch op.Key {
			case "$set":
				out = setPath(out, f.Key, cloneValue(f.Value))
			case "$unset":
				out = unsetPath(out, f.Key)
			case "$inc":
				out, err = inc(out, f.Key, f.Value)
			case "$push", "$addToSet":
				out, err = push(out, f.Key, f.Value, op.Key == "$addToSet")
			case "$pull":
				out, err = pull(out, f.Key, f.Value)
			default:
				err = fmt.Errorf("%w: %s", ErrUnsupportedOperator, op.Key)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func setPath(doc bson.D, path string, value any) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	for i, e := range doc {
		if e.Key != head {
			continue
		}
		if !nested {
			doc[i].Value = value
			return doc
		}
		sub, _ := AsDoc(e.Value)
		doc[i].Value = setPath(sub, rest, value)
		return doc
	}
	if nested {
		return append(doc, bson.E{Key: head, Value: setPath(bson.D{}, rest, value)})
	}
	return append(doc, bson.E{Key: head, Value: value})
}

func unsetPath(doc bson.D, path string) bson.D {
	head, rest, nested := strings.Cut(path, ".")
	for i, e := range doc {
		if e.Key != head {
			continue
		}
		if !nested {
			return append(doc[:i:i], doc[i+1:]...)
		}
		if sub, ok := AsDoc(e.Value); ok {
			doc[i].Value = unsetPath(sub, rest)
		}
		return doc
	}
	return doc
}

func inc(doc bson.D, path string, delta any) (bson.D, error) {
	if i, ok := delta.(int); ok {
		delta = int64(i)
	}
	d, ok := number(delta)
	if !ok {
		return nil, fmt.Errorf("$inc requires a numeric value for %q", path)
	}
	current, present := Lookup(doc, path)
	if !present || current == nil {
		return setPath(doc, path, delta), nil
	}
	switch c := current.(type) {
	case int32:
		if _, isInt := delta.(int32); isInt {
			return setPath(doc, path, c+delta.(int32)), nil
		}
		if _, isFloat := delta.(float64); !isFloat {
			return setPath(doc, path, int64(c)+int64(d)), nil
		}
	case int64:
		if _, isFloat := delta.(float64); !isFloat {
			return setPath(doc, path, c+int64(d)), nil
		}
	}
	n, ok := number(current)
	if !ok {
		return nil, fmt.Errorf("$inc on non-numeric field %q", path)
	}
	return setPath(doc, path, n+d), nil
}

func push(doc bson.D, path string, value any, unique bool) (bson.D, error) {
	items := []any{value}
	if each, ok := AsDoc(value); ok && len(each) == 1 && each[0].Key == "$each" {
		arr, ok := AsArray(each[0].Value)
		if !ok {
			return nil, fmt.Errorf("$each requires an array")
		}
		items = arr
	}

	current, _ := Lookup(doc, path)
	var arr bson.A
	if current != nil {
		existing, ok := AsArray(current)
		if !ok {
			return nil, fmt.Errorf("cannot push to non-array field %q", path)
		}
		arr = append(arr, existing...)
	}
	for _, item := range items {
		if unique && matchEquals(arr, item) {
			continue
		}
		arr = append(arr, cloneValue(item))
	}
	return setPath(doc, path, arr), nil
}

func pull(doc bson.D, path string, value any) (bson.D, error) {
	current, present := Lookup(doc, path)
	if !present {
		return doc, nil
	}
	existing, ok := AsArray(current)
	if !ok {
		return nil, fmt.Errorf("cannot pull from non-array field %q", path)
	}
	ops, isOps := operatorDoc(value)
	kept := make(bson.A, 0, len(existing))
	for _, el := range existing {
		var drop bool
		if isOps {
			hit, err := matchOperators(el, true, ops)
			if err != nil {
				return nil, err
			}
			drop = hit
		} else {
			drop = Equal(el, value)
		}
		if !drop {
			kept = append(kept, el)
		}
	}
	return setPath(doc, path, kept), nil
}
