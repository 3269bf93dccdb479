package filter

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Mapper adapts field paths and values for a target store.
type Mapper interface {
	Field(name string) string
	Value(v any) any
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SurrealQL translates f into a SurrealQL condition and its bound variables.
// An empty filter translates to "true".
func SurrealQL(f bson.D, m Mapper) (string, map[string]any, error) {
	t := &translator{m: m, vars: map[string]any{}}
	cond, err := t.doc(f)
	if err != nil {
		return "", nil, err
	}
	return cond, t.vars, nil
}

type translator struct {
	m    Mapper
	vars map[string]any
	n    int
}

func (t *translator) bind(v any) string {
	name := fmt.Sprintf("p%d", t.n)
	t.n++
	t.vars[name] = t.m.Value(v)
	return "$" + name
}

func (t *translator) field(path string) (string, error) {
	parts := strings.Split(t.m.Field(path), ".")
	for i, p := range parts {
		if !identRe.MatchString(p) {
			p = "`" + strings.ReplaceAll(p, "`", "") + "`"
		}
		parts[i] = p
	}
	return strings.Join(parts, "."), nil
}

func (t *translator) doc(f bson.D) (string, error) {
	if len(f) == 0 {
		return "true", nil
	}
	clauses := make([]string, 0, len(f))
	for _, e := range f {
		c, err := t.element(e)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return "(" + strings.Join(clauses, " AND ") + ")", nil
}

func (t *translator) element(e bson.E) (string, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		items, ok := AsArray(e.Value)
		if !ok || len(items) == 0 {
			return "", fmt.Errorf("%s requires a non-empty array", e.Key)
		}
		parts := make([]string, 0, len(items))
		for _, item := range items {
			sub, ok := AsDoc(item)
			if !ok {
				return "", fmt.Errorf("%s clause must be a document", e.Key)
			}
			c, err := t.doc(sub)
			if err != nil {
				return "", err
			}
			parts = append(parts, c)
		}
		switch e.Key {
		case "$and":
			return "(" + strings.Join(parts, " AND ") + ")", nil
		case "$or":
			return "(" + strings.Join(parts, " OR ") + ")", nil
		}
		return "!(" + strings.Join(parts, " OR ") + ")", nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOperator, e.Key)
	}

	f, err := t.field(e.Key)
	if err != nil {
		return "", err
	}
	if ops, ok := operatorDoc(e.Value); ok {
		return t.operators(f, ops)
	}
	return t.equals(f, e.Value), nil
}

func (t *translator) equals(f string, v any) string {
	if v == nil {
		return fmt.Sprintf("(%s IS NONE OR %s IS NULL)", f, f)
	}
	p := t.bind(v)
	return fmt.Sprintf("(%s = %s OR (type::is::array(%s) AND %s CONTAINS %s))", f, p, f, f, p)
}

func (t *translator) operators(f string, ops bson.D) (string, error) {
	parts := make([]string, 0, len(ops))
	for _, op := range ops {
		var c string
		switch op.Key {
		case "$eq":
			c = t.equals(f, op.Value)
		case "$ne":
			c = "!" + t.equals(f, op.Value)
		case "$gt":
			c = fmt.Sprintf("%s > %s", f, t.bind(op.Value))
		case "$gte":
			c = fmt.Sprintf("%s >= %s", f, t.bind(op.Value))
		case "$lt":
			c = fmt.Sprintf("%s < %s", f, t.bind(op.Value))
		case "$lte":
			c = fmt.Sprintf("%s <= %s", f, t.bind(op.Value))
		case "$in", "$nin":
			items, ok := AsArray(op.Value)
			if !ok {
				return "", fmt.Errorf("%s requires an array", op.Key)
			}
			mapped := make([]any, len(items))
			for i, item := range items {
				mapped[i] = t.m.Value(item)
			}
			name := fmt.Sprintf("p%d", t.n)
			t.n++
			t.vars[name] = mapped
			c = fmt.Sprintf("(%s INSIDE $%s OR (type::is::array(%s) AND %s CONTAINSANY $%s))", f, name, f, f, name)
			if op.Key == "$nin" {
				c = "!" + c
			}
		case "$exists":
			want, _ := op.Value.(bool)
			if n, ok := number(op.Value); ok {
				want = n != 0
			}
			if want {
				c = fmt.Sprintf("%s IS NOT NONE", f)
			} else {
				c = fmt.Sprintf("%s IS NONE", f)
			}
		case "$size":
			c = fmt.Sprintf("array::len(%s) = %s", f, t.bind(op.Value))
		case "$regex":
			pattern, ok := op.Value.(string)
			if !ok {
				return "", fmt.Errorf("$regex requires a string pattern")
			}
			c = fmt.Sprintf("string::matches(%s, %s)", f, t.bind(pattern))
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedOperator, op.Key)
		}
		parts = append(parts, c)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}

// SurrealOrder translates a sort specification into an ORDER BY list.
func SurrealOrder(spec bson.D, m Mapper) (string, error) {
	t := &translator{m: m}
	parts := make([]string, 0, len(spec))
	for _, e := range spec {
		f, err := t.field(e.Key)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if n, ok := number(e.Value); ok && n < 0 {
			dir = "DESC"
		}
		parts = append(parts, f+" "+dir)
	}
	return strings.Join(parts, ", "), nil
}
