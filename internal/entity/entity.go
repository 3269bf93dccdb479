package entity

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/forgo/catalog/internal/filter"
)

// RedactionMarker replaces URL-like text in free-text string fields.
const RedactionMarker = "!!LINKS NOT ALLOWED!!"

var urlPattern = regexp.MustCompile(`(https?://.)?(www\.)?[-a-zA-Z0-9@:%._+~#=]{2,256}\.[a-z]{2,6}\b([-a-zA-Z0-9@:%_+.~#?&/=]*)`)

// Fields that never get URL redaction, whatever their schema says.
var verbatimFields = map[string]bool{
	"website": true,
	"email":   true,
}

// Model is implemented by every persisted kind. Kinds embed Entity, which
// provides both methods; a kind overrides UniqueFilter to deduplicate on
// a natural key.
type Model interface {
	Base() *Entity
	UniqueFilter() bson.D
}

// BeforeSaver is implemented by kinds that normalize themselves before
// each save, after the common UpdateBeforeSave steps.
type BeforeSaver interface {
	BeforeSave(previous Model)
}

// Entity wraps one document of a kind.
type Entity struct {
	schema *Schema
	doc    bson.D
}

// New returns an empty entity of the schema's kind with its creation date
// stamped.
func New(s *Schema) Entity {
	e := Entity{schema: s, doc: bson.D{}}
	_ = e.SetDate(FieldCreationDate, time.Now())
	return e
}

// FromDocument wraps an existing document.
func FromDocument(s *Schema, doc bson.D) Entity {
	if doc == nil {
		doc = bson.D{}
	}
	return Entity{schema: s, doc: doc}
}

// Base returns e; it makes every embedding kind a Model.
func (e *Entity) Base() *Entity { return e }

// Kind returns the kind name, which is also the collection name.
func (e *Entity) Kind() string {
	if e.schema == nil {
		return ""
	}
	return e.schema.Kind
}

// Schema returns the kind's schema.
func (e *Entity) Schema() *Schema { return e.schema }

// Document returns the wrapped document. Callers must not modify it.
func (e *Entity) Document() bson.D { return e.doc }

// SetDocument replaces the wrapped document.
func (e *Entity) SetDocument(doc bson.D) {
	if doc == nil {
		doc = bson.D{}
	}
	e.doc = doc
}

// IsEmpty reports whether the document has no fields.
func (e *Entity) IsEmpty() bool { return len(e.doc) == 0 }

// Validate checks stored values against the schema.
func (e *Entity) Validate() error {
	if e.schema == nil {
		return nil
	}
	return e.schema.Validate(e.doc)
}

func (e *Entity) index(name string) int {
	for i, el := range e.doc {
		if el.Key == name {
			return i
		}
	}
	return -1
}

// Value returns the raw stored value of name.
func (e *Entity) Value(name string) (any, bool) {
	if i := e.index(name); i >= 0 {
		return e.doc[i].Value, true
	}
	return nil, false
}

// Has reports whether name holds a non-nil value.
func (e *Entity) Has(name string) bool {
	v, ok := e.Value(name)
	return ok && v != nil
}

// HasRealValue reports whether name holds something other than nil, an
// empty string or an empty collection.
func (e *Entity) HasRealValue(name string) bool {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	if a, ok := filter.AsArray(v); ok {
		return len(a) > 0
	}
	if d, ok := filter.AsDoc(v); ok {
		return len(d) > 0
	}
	return true
}

// set stores value under name, replacing in place. nil removes the field.
func (e *Entity) set(name string, value any) error {
	if err := e.schema.check(name, value); err != nil {
		slog.Warn("rejected field value",
			"kind", e.Kind(),
			"field", name,
			"error", err)
		return err
	}
	return e.put(name, value)
}

// put stores value without checking its declared kind. Update and
// Duplicate copy through it.
func (e *Entity) put(name string, value any) error {
	if name == FieldObjectID {
		if cur, ok := e.ObjectID(); ok {
			if id, isID := value.(bson.ObjectID); !isID || id != cur {
				return fmt.Errorf("%w: %s", ErrIdentityImmutable, cur.Hex())
			}
		}
	}
	i := e.index(name)
	switch {
	case value == nil && i >= 0:
		e.doc = append(e.doc[:i:i], e.doc[i+1:]...)
	case value == nil:
	case i >= 0:
		e.doc[i].Value = value
	default:
		e.doc = append(e.doc, bson.E{Key: name, Value: value})
	}
	return nil
}

// SetValue stores a raw value; nil removes the field.
func (e *Entity) SetValue(name string, value any) error {
	return e.set(name, value)
}

// RemoveField deletes name.
func (e *Entity) RemoveField(name string) {
	if name == FieldObjectID {
		return
	}
	_ = e.set(name, nil)
}

func (e *Entity) isVerbatim(name string) bool {
	if verbatimFields[name] {
		return true
	}
	if e.schema != nil {
		if f, ok := e.schema.Field(name); ok && f.Verbatim {
			return true
		}
	}
	return false
}

// Redact replaces every URL-like substring of s with RedactionMarker.
func Redact(s string) string {
	return urlPattern.ReplaceAllString(s, RedactionMarker)
}

// SetString stores s, redacting URL-like text unless the field is exempt.
func (e *Entity) SetString(name, s string) error {
	if !e.isVerbatim(name) {
		s = Redact(s)
	}
	return e.set(name, s)
}

// SetStringVerbatim stores s without redaction.
func (e *Entity) SetStringVerbatim(name, s string) error {
	return e.set(name, s)
}

func (e *Entity) SetBool(name string, b bool) error            { return e.set(name, b) }
func (e *Entity) SetInt32(name string, n int32) error          { return e.set(name, n) }
func (e *Entity) SetInt64(name string, n int64) error          { return e.set(name, n) }
func (e *Entity) SetDouble(name string, f float64) error       { return e.set(name, f) }
func (e *Entity) SetList(name string, list bson.A) error       { return e.set(name, list) }
func (e *Entity) SetDocumentValue(name string, d bson.D) error { return e.set(name, d) }

// SetDate stores t with millisecond precision.
func (e *Entity) SetDate(name string, t time.Time) error {
	return e.set(name, bson.NewDateTimeFromTime(t))
}

// SetMap stores m as a document with sorted keys.
func (e *Entity) SetMap(name string, m map[string]any) error {
	if m == nil {
		return e.set(name, nil)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := make(bson.D, 0, len(keys))
	for _, k := range keys {
		d = append(d, bson.E{Key: k, Value: m[k]})
	}
	return e.set(name, d)
}

// String reads a string field.
func (e *Entity) String(name string) (string, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		e.readFailed(name, KindString, v)
	}
	return s, ok
}

// Bool reads a bool field.
func (e *Entity) Bool(name string) (bool, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return false, false
	}
	b, ok := v.(bool)
	if !ok {
		e.readFailed(name, KindBool, v)
	}
	return b, ok
}

// Date reads a date field.
func (e *Entity) Date(name string) (time.Time, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time(), true
	case time.Time:
		return t, true
	}
	e.readFailed(name, KindDate, v)
	return time.Time{}, false
}

// List reads a list field.
func (e *Entity) List(name string) (bson.A, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return nil, false
	}
	a, ok := filter.AsArray(v)
	if !ok {
		e.readFailed(name, KindList, v)
		return nil, false
	}
	return bson.A(a), true
}

// Strings reads a list field whose elements are strings. Non-string
// elements are skipped.
func (e *Entity) Strings(name string) []string {
	a, _ := e.List(name)
	out := make([]string, 0, len(a))
	for _, v := range a {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DocumentValue reads a nested document field.
func (e *Entity) DocumentValue(name string) (bson.D, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return nil, false
	}
	d, ok := filter.AsDoc(v)
	if !ok {
		e.readFailed(name, KindMap, v)
	}
	return d, ok
}

// Map reads a nested document field as a map.
func (e *Entity) Map(name string) (map[string]any, bool) {
	d, ok := e.DocumentValue(name)
	if !ok {
		return nil, false
	}
	m := make(map[string]any, len(d))
	for _, el := range d {
		m[el.Key] = el.Value
	}
	return m, true
}

// AddListValue appends v unless an equal value is already present. A
// missing list is created.
func (e *Entity) AddListValue(name string, v any) error {
	list, _ := e.List(name)
	for _, el := range list {
		if filter.Equal(el, v) {
			return nil
		}
	}
	return e.set(name, append(append(bson.A{}, list...), v))
}

// RemoveListValue removes every element equal to v.
func (e *Entity) RemoveListValue(name string, v any) error {
	list, ok := e.List(name)
	if !ok {
		return nil
	}
	kept := make(bson.A, 0, len(list))
	for _, el := range list {
		if !filter.Equal(el, v) {
			kept = append(kept, el)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	return e.set(name, kept)
}

// PutMapEntry sets key inside the nested document name, creating it.
func (e *Entity) PutMapEntry(name, key string, v any) error {
	d, _ := e.DocumentValue(name)
	d = filter.Clone(d)
	for i := range d {
		if d[i].Key == key {
			d[i].Value = v
			return e.set(name, d)
		}
	}
	return e.set(name, append(d, bson.E{Key: key, Value: v}))
}

// RemoveMapEntry deletes key from the nested document name.
func (e *Entity) RemoveMapEntry(name, key string) error {
	d, ok := e.DocumentValue(name)
	if !ok {
		return nil
	}
	out := make(bson.D, 0, len(d))
	for _, el := range d {
		if el.Key != key {
			out = append(out, el)
		}
	}
	return e.set(name, out)
}

// ObjectID returns the identity if one is assigned.
func (e *Entity) ObjectID() (bson.ObjectID, bool) {
	v, _ := e.Value(FieldObjectID)
	id, ok := v.(bson.ObjectID)
	return id, ok && !id.IsZero()
}

// HasIdentity reports whether an identity is assigned.
func (e *Entity) HasIdentity() bool {
	_, ok := e.ObjectID()
	return ok
}

// SetObjectID assigns the identity. Changing an assigned identity fails.
func (e *Entity) SetObjectID(id bson.ObjectID) error {
	if id.IsZero() {
		return fmt.Errorf("%w: zero identity", ErrFieldKind)
	}
	return e.set(FieldObjectID, id)
}

// EnsureIdentity assigns a new identity if none is set and returns it.
func (e *Entity) EnsureIdentity() bson.ObjectID {
	if id, ok := e.ObjectID(); ok {
		return id
	}
	id := bson.NewObjectID()
	e.doc = append(bson.D{{Key: FieldObjectID, Value: id}}, e.withoutField(FieldObjectID)...)
	return id
}

func (e *Entity) withoutField(name string) bson.D {
	out := make(bson.D, 0, len(e.doc))
	for _, el := range e.doc {
		if el.Key != name {
			out = append(out, el)
		}
	}
	return out
}

// ID returns the external id: the "id" field, or the identity's hex form.
func (e *Entity) ID() string {
	if s, ok := e.Value(FieldID); ok {
		if str, isStr := s.(string); isStr && str != "" {
			return str
		}
	}
	if id, ok := e.ObjectID(); ok {
		return id.Hex()
	}
	return ""
}

// SetID stores the external id.
func (e *Entity) SetID(id string) error {
	return e.SetStringVerbatim(FieldID, id)
}

// GenerateID assigns a random UUID external id when none is set. It is
// used for records imported from systems without ObjectIDs.
func (e *Entity) GenerateID() {
	if !e.Has(FieldID) {
		_ = e.SetID(uuid.NewString())
	}
}

// CreationDate returns the creation timestamp.
func (e *Entity) CreationDate() (time.Time, bool) { return e.Date(FieldCreationDate) }

// SetCreationDate stores the creation timestamp.
func (e *Entity) SetCreationDate(t time.Time) error { return e.SetDate(FieldCreationDate, t) }

// UpdateDate returns the last save timestamp.
func (e *Entity) UpdateDate() (time.Time, bool) { return e.Date(FieldUpdateDate) }

// SetUpdateDate stores the last save timestamp.
func (e *Entity) SetUpdateDate(t time.Time) error { return e.SetDate(FieldUpdateDate, t) }

// ChangedFields returns the changed-fields marker and whether it is set.
func (e *Entity) ChangedFields() ([]string, bool) {
	if !e.Has(FieldChangedFields) {
		return nil, false
	}
	return e.Strings(FieldChangedFields), true
}

// SetChangedFields marks which fields a partial update carries.
func (e *Entity) SetChangedFields(names ...string) error {
	list := make(bson.A, len(names))
	for i, n := range names {
		list[i] = n
	}
	return e.set(FieldChangedFields, list)
}

// UniqueFilter matches the persisted counterpart by identity. Kinds with a
// natural key override it.
func (e *Entity) UniqueFilter() bson.D {
	id, ok := e.ObjectID()
	if !ok {
		return nil
	}
	return bson.D{{Key: FieldObjectID, Value: id}}
}

// Duplicate copies every field of other onto e. The identity is copied
// only with copyID set.
func (e *Entity) Duplicate(other Model, copyID bool) error {
	for _, el := range other.Base().doc {
		if el.Key == FieldObjectID && !copyID {
			continue
		}
		if err := e.put(el.Key, filter.Clone(bson.D{el})[0].Value); err != nil {
			return err
		}
	}
	return nil
}

// Update merges other onto e. With a changed-fields marker only the named
// fields are copied (a field absent from other is removed); otherwise all
// fields except the identity are.
func (e *Entity) Update(other Model) error {
	changed, ok := other.Base().ChangedFields()
	if !ok {
		return e.Duplicate(other, false)
	}
	for _, name := range changed {
		if name == FieldObjectID {
			continue
		}
		v, _ := other.Base().Value(name)
		if err := e.put(name, filter.Clone(bson.D{{Key: name, Value: v}})[0].Value); err != nil {
			return err
		}
	}
	return nil
}

// UpdateBeforeSave strips client-only markers, keeps the creation date of
// previous (the persisted copy, if any) or stamps a missing one, and
// mirrors the identity into the external id.
func (e *Entity) UpdateBeforeSave(previous Model) {
	e.RemoveField(FieldHashKey)
	e.RemoveField(FieldChangedFields)
	if id, ok := e.ObjectID(); ok {
		_ = e.SetID(id.Hex())
	}
	if previous != nil {
		if created, ok := previous.Base().CreationDate(); ok {
			_ = e.SetCreationDate(created)
			return
		}
	}
	if _, ok := e.CreationDate(); !ok {
		_ = e.SetCreationDate(time.Now())
	}
}

// Equal reports whether e and other denote the same persisted document.
// Without identities only the same instance is equal.
func (e *Entity) Equal(other Model) bool {
	if other == nil {
		return false
	}
	o := other.Base()
	a, aok := e.ObjectID()
	b, bok := o.ObjectID()
	if aok && bok {
		return a == b
	}
	return e == o
}

// ExportValue renders name for flat exports: string lists joined with
// ";", booleans as yes/no, dates as dd-mm-yyyy.
func (e *Entity) ExportValue(name string) any {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return nil
	}
	switch x := v.(type) {
	case bool:
		if x {
			return "yes"
		}
		return "no"
	case bson.DateTime:
		return x.Time().Format("02-01-2006")
	case time.Time:
		return x.Format("02-01-2006")
	}
	if list, ok := filter.AsArray(v); ok {
		if len(list) == 0 {
			return ""
		}
		if _, isStr := list[0].(string); !isStr {
			return ""
		}
		parts := make([]string, 0, len(list))
		for _, el := range list {
			if s, ok := el.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ";")
	}
	return v
}

// SplitList splits a ";"-separated export value back into a list.
func SplitList(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ";")
}
