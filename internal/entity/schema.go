package entity

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Errors returned by setters and the kind registry.
var (
	// ErrFieldKind indicates a value of the wrong kind for a declared field.
	ErrFieldKind = errors.New("field kind mismatch")

	// ErrIdentityImmutable indicates an attempt to change an assigned identity.
	ErrIdentityImmutable = errors.New("identity cannot change once assigned")

	// ErrUnknownKind indicates a kind missing from the registry.
	ErrUnknownKind = errors.New("unknown entity kind")
)

// FieldKind is the declared value kind of a schema field.
type FieldKind int

const (
	KindAny FieldKind = iota
	KindString
	KindBool
	KindInt32
	KindInt64
	KindDouble
	KindDate
	KindObjectID
	KindList
	KindMap
	KindLink
	KindLinkList
	KindEmbeddedList
)

var kindNames = map[FieldKind]string{
	KindAny:          "any",
	KindString:       "string",
	KindBool:         "bool",
	KindInt32:        "int32",
	KindInt64:        "int64",
	KindDouble:       "double",
	KindDate:         "date",
	KindObjectID:     "objectid",
	KindList:         "list",
	KindMap:          "map",
	KindLink:         "link",
	KindLinkList:     "linklist",
	KindEmbeddedList: "embeddedlist",
}

func (k FieldKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// Field declares one typed field of a kind.
type Field struct {
	Name string
	Kind FieldKind

	// Verbatim exempts a string field from URL redaction.
	Verbatim bool

	// Ref names the target kind of a link, link list or embedded list.
	Ref string
}

// Schema is the typed-field registry of one entity kind. Fields not
// declared are extra fields and accept any value.
type Schema struct {
	Kind   string
	fields map[string]Field
	order  []string
}

// Reserved fields present on every kind.
const (
	FieldObjectID      = "_id"
	FieldID            = "id"
	FieldCreationDate  = "creationDate"
	FieldUpdateDate    = "updateDate"
	FieldChangedFields = "changedFields"
	FieldHashKey       = "$$hashKey"
)

var reservedFields = []Field{
	{Name: FieldObjectID, Kind: KindObjectID},
	{Name: FieldID, Kind: KindString, Verbatim: true},
	{Name: FieldCreationDate, Kind: KindDate},
	{Name: FieldUpdateDate, Kind: KindDate},
	{Name: FieldChangedFields, Kind: KindList},
}

// NewSchema declares kind with the reserved fields plus fields.
func NewSchema(kind string, fields ...Field) *Schema {
	s := &Schema{Kind: kind, fields: make(map[string]Field)}
	for _, f := range reservedFields {
		s.add(f)
	}
	for _, f := range fields {
		s.add(f)
	}
	return s
}

func (s *Schema) add(f Field) {
	if _, ok := s.fields[f.Name]; !ok {
		s.order = append(s.order, f.Name)
	}
	s.fields[f.Name] = f
}

// Field returns the declaration of name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns the declared fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// valueKind classifies a stored value.
func valueKind(v any) FieldKind {
	switch v.(type) {
	case string:
		return KindString
	case bool:
		return KindBool
	case int32:
		return KindInt32
	case int64, int:
		return KindInt64
	case float64, float32:
		return KindDouble
	case bson.DateTime, time.Time:
		return KindDate
	case bson.ObjectID:
		return KindObjectID
	case bson.A, []any, []string, []bson.ObjectID, []bson.D:
		return KindList
	case bson.D, bson.M, map[string]any:
		return KindMap
	}
	return KindAny
}

func isNumeric(k FieldKind) bool {
	return k == KindInt32 || k == KindInt64 || k == KindDouble
}

// accepts reports whether a field declared as want may hold a value of
// kind got. Numeric kinds are interchangeable; reads coerce them.
func accepts(want, got FieldKind) bool {
	switch {
	case want == KindAny, got == KindAny, want == got:
		return true
	case isNumeric(want) && isNumeric(got):
		return true
	case want == KindLink:
		return got == KindObjectID || got == KindString
	case want == KindLinkList, want == KindEmbeddedList:
		return got == KindList
	}
	return false
}

// check validates value against the declaration of name. nil always
// passes; it removes the field.
func (s *Schema) check(name string, value any) error {
	if value == nil || s == nil {
		return nil
	}
	f, ok := s.fields[name]
	if !ok {
		return nil
	}
	if got := valueKind(value); !accepts(f.Kind, got) {
		return fmt.Errorf("%w: %s.%s is %s, got %s", ErrFieldKind, s.Kind, name, f.Kind, got)
	}
	return nil
}

// Validate reports every stored value that does not fit its declared
// field. It is advisory; saves do not enforce it.
func (s *Schema) Validate(doc bson.D) error {
	var errs []error
	for _, e := range doc {
		if err := s.check(e.Key, e.Value); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
