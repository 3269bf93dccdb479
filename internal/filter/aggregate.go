package filter

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Aggregate runs a pipeline over docs. Supported stages: $match, $group,
// $sort, $skip, $limit, $project, $count. $group accepts $sum, $avg, $min,
// $max, $first, $last, $push and $addToSet accumulators.
func Aggregate(docs []bson.D, pipeline []bson.D) ([]bson.D, error) {
	out := docs
	for _, stage := range pipeline {
		if len(stage) != 1 {
			return nil, fmt.Errorf("pipeline stage must have exactly one key")
		}
		op, arg := stage[0].Key, stage[0].Value
		var err error
		switch op {
		case "$match":
			f, ok := AsDoc(arg)
			if !ok {
				return nil, fmt.Errorf("$match requires a document")
			}
			out, err = matchAll(out, f)
		case "$group":
			spec, ok := AsDoc(arg)
			if !ok {
				return nil, fmt.Errorf("$group requires a document")
			}
			out, err = group(out, spec)
		case "$sort":
			spec, ok := AsDoc(arg)
			if !ok {
				return nil, fmt.Errorf("$sort requires a document")
			}
			sorted := make([]bson.D, len(out))
			copy(sorted, out)
			Sort(sorted, spec)
			out = sorted
		case "$skip":
			n, ok := number(arg)
			if !ok || n < 0 {
				return nil, fmt.Errorf("$skip requires a non-negative number")
			}
			if int(n) >= len(out) {
				out = nil
			} else {
				out = out[int(n):]
			}
		case "$limit":
			n, ok := number(arg)
			if !ok || n <= 0 {
				return nil, fmt.Errorf("$limit requires a positive number")
			}
			if int(n) < len(out) {
				out = out[:int(n)]
			}
		case "$project":
			spec, ok := AsDoc(arg)
			if !ok {
				return nil, fmt.Errorf("$project requires a document")
			}
			projected := make([]bson.D, len(out))
			for i, d := range out {
				projected[i] = Project(d, spec)
			}
			out = projected
		case "$count":
			name, ok := arg.(string)
			if !ok || name == "" {
				return nil, fmt.Errorf("$count requires a field name")
			}
			out = []bson.D{{{Key: name, Value: int64(len(out))}}}
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func matchAll(docs []bson.D, f bson.D) ([]bson.D, error) {
	var out []bson.D
	for _, d := range docs {
		ok, err := Match(d, f)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

// eval resolves a "$field" reference or returns a literal.
func eval(doc bson.D, expr any) any {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		v, _ := Lookup(doc, s[1:])
		return v
	}
	if d, ok := AsDoc(expr); ok {
		out := make(bson.D, len(d))
		for i, e := range d {
			out[i] = bson.E{Key: e.Key, Value: eval(doc, e.Value)}
		}
		return out
	}
	return expr
}

type groupState struct {
	key   any
	acc   bson.D
	count map[string]int
}

func group(docs []bson.D, spec bson.D) ([]bson.D, error) {
	var idExpr any
	var fields bson.D
	for _, e := range spec {
		if e.Key == "_id" {
			idExpr = e.Value
			continue
		}
		acc, ok := AsDoc(e.Value)
		if !ok || len(acc) != 1 {
			return nil, fmt.Errorf("$group field %q requires one accumulator", e.Key)
		}
		fields = append(fields, e)
	}

	var groups []*groupState
	for _, doc := range docs {
		key := eval(doc, idExpr)
		var g *groupState
		for _, candidate := range groups {
			if Equal(candidate.key, key) {
				g = candidate
				break
			}
		}
		if g == nil {
			g = &groupState{key: key, count: map[string]int{}}
			groups = append(groups, g)
		}
		for _, f := range fields {
			acc, _ := AsDoc(f.Value)
			if err := accumulate(g, f.Key, acc[0].Key, eval(doc, acc[0].Value)); err != nil {
				return nil, err
			}
		}
	}

	out := make([]bson.D, 0, len(groups))
	for _, g := range groups {
		row := bson.D{{Key: "_id", Value: g.key}}
		for _, f := range fields {
			v, _ := Lookup(g.acc, f.Key)
			acc, _ := AsDoc(f.Value)
			if acc[0].Key == "$avg" {
				if n := g.count[f.Key]; n > 0 {
					sum, _ := number(v)
					v = sum / float64(n)
				} else {
					v = nil
				}
			}
			row = append(row, bson.E{Key: f.Key, Value: v})
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(g *groupState, field, op string, v any) error {
	current, seen := Lookup(g.acc, field)
	switch op {
	case "$sum", "$avg":
		if _, ok := number(v); !ok {
			if op == "$sum" && !seen {
				g.acc = setPath(g.acc, field, int64(0))
			}
			return nil
		}
		g.count[field]++
		if i, ok := v.(int); ok {
			v = int64(i)
		}
		if !seen {
			g.acc = setPath(g.acc, field, v)
			return nil
		}
		updated, err := inc(g.acc, field, v)
		if err != nil {
			return err
		}
		g.acc = updated
	case "$min", "$max":
		if v == nil {
			return nil
		}
		c, _ := Compare(v, current)
		if !seen || current == nil || (op == "$min" && c < 0) || (op == "$max" && c > 0) {
			g.acc = setPath(g.acc, field, v)
		}
	case "$first":
		if !seen {
			g.acc = setPath(g.acc, field, v)
		}
	case "$last":
		g.acc = setPath(g.acc, field, v)
	case "$push", "$addToSet":
		arr, _ := AsArray(current)
		if op == "$addToSet" && matchEquals(bson.A(arr), v) {
			return nil
		}
		g.acc = setPath(g.acc, field, append(bson.A(arr), v))
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}
	return nil
}
