package filter

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Match reports whether doc satisfies the query document f.
func Match(doc bson.D, f bson.D) (bool, error) {
	for _, e := range f {
		ok, err := matchElement(doc, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchElement(doc bson.D, e bson.E) (bool, error) {
	switch e.Key {
	case "$and", "$or", "$nor":
		clauses, ok := AsArray(e.Value)
		if !ok || len(clauses) == 0 {
			return false, fmt.Errorf("%s requires a non-empty array", e.Key)
		}
		for _, c := range clauses {
			sub, ok := AsDoc(c)
			if !ok {
				return false, fmt.Errorf("%s clause must be a document", e.Key)
			}
			hit, err := Match(doc, sub)
			if err != nil {
				return false, err
			}
			switch {
			case e.Key == "$and" && !hit:
				return false, nil
			case e.Key == "$or" && hit:
				return true, nil
			case e.Key == "$nor" && hit:
				return false, nil
			}
		}
		return e.Key != "$or", nil
	}
	if strings.HasPrefix(e.Key, "$") {
		return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, e.Key)
	}

	value, present := Lookup(doc, e.Key)
	if ops, ok := operatorDoc(e.Value); ok {
		return matchOperators(value, present, ops)
	}
	return matchEquals(value, e.Value), nil
}

// operatorDoc reports whether v is a document of query operators
// ({"$gt": 1}) rather than a literal sub-document to compare against.
func operatorDoc(v any) (bson.D, bool) {
	d, ok := AsDoc(v)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

func matchEquals(value, want any) bool {
	if Equal(value, want) {
		return true
	}
	if arr, ok := AsArray(value); ok {
		for _, el := range arr {
			if Equal(el, want) {
				return true
			}
		}
	}
	return false
}

// matchCompare applies cmp to value or, for arrays, to any element.
func matchCompare(value, operand any, cmp func(int) bool) bool {
	if c, ok := Compare(value, operand); ok && cmp(c) {
		return true
	}
	if arr, ok := AsArray(value); ok {
		for _, el := range arr {
			if c, ok := Compare(el, operand); ok && cmp(c) {
				return true
			}
		}
	}
	return false
}

func matchOperators(value any, present bool, ops bson.D) (bool, error) {
	for _, op := range ops {
		var hit bool
		switch op.Key {
		case "$eq":
			hit = matchEquals(value, op.Value)
		case "$ne":
			hit = !matchEquals(value, op.Value)
		case "$gt":
			hit = matchCompare(value, op.Value, func(c int) bool { return c > 0 })
		case "$gte":
			hit = matchCompare(value, op.Value, func(c int) bool { return c >= 0 })
		case "$lt":
			hit = matchCompare(value, op.Value, func(c int) bool { return c < 0 })
		case "$lte":
			hit = matchCompare(value, op.Value, func(c int) bool { return c <= 0 })
		case "$in", "$nin":
			candidates, ok := AsArray(op.Value)
			if !ok {
				return false, fmt.Errorf("%s requires an array", op.Key)
			}
			for _, c := range candidates {
				if matchEquals(value, c) {
					hit = true
					break
				}
			}
			if op.Key == "$nin" {
				hit = !hit
			}
		case "$exists":
			want, _ := op.Value.(bool)
			if n, ok := number(op.Value); ok {
				want = n != 0
			}
			hit = present == want
		case "$size":
			n, ok := number(op.Value)
			arr, isArr := AsArray(value)
			hit = ok && isArr && float64(len(arr)) == n
		case "$regex":
			re, err := compileRegex(op.Value, ops)
			if err != nil {
				return false, err
			}
			s, ok := value.(string)
			hit = ok && re.MatchString(s)
		case "$options":
			hit = true
		case "$not":
			sub, ok := operatorDoc(op.Value)
			if !ok {
				return false, fmt.Errorf("$not requires an operator document")
			}
			inner, err := matchOperators(value, present, sub)
			if err != nil {
				return false, err
			}
			hit = !inner
		default:
			return false, fmt.Errorf("%w: %s", ErrUnsupportedOperator, op.Key)
		}
		if !hit {
			return false, nil
		}
	}
	return true, nil
}

func compileRegex(pattern any, ops bson.D) (*regexp.Regexp, error) {
	var expr, flags string
	switch p := pattern.(type) {
	case string:
		expr = p
	case bson.Regex:
		expr, flags = p.Pattern, p.Options
	default:
		return nil, fmt.Errorf("$regex requires a string pattern")
	}
	for _, op := range ops {
		if op.Key == "$options" {
			if s, ok := op.Value.(string); ok {
				flags = s
			}
		}
	}

	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			prefix.WriteRune(f)
		}
	}
	if prefix.Len() > 0 {
		expr = "(?" + prefix.String() + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("$regex: %w", err)
	}
	return re, nil
}
