package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"

	"github.com/forgo/catalog/internal/database"
)

// exportPreparer is implemented by kinds that normalize themselves for
// export, such as filling list fields a client expects.
type exportPreparer interface {
	PrepareExport()
}

func (r *Repository[T]) encode(m T) ([]byte, error) {
	r.Clean(m)
	if p, ok := any(m).(exportPreparer); ok {
		p.PrepareExport()
	}
	return m.Base().MarshalJSON()
}

// ToJSON cleans m and encodes it as relaxed Extended JSON.
func (r *Repository[T]) ToJSON(m T) (string, error) {
	if isNil(m) {
		return "", ErrNilEntity
	}
	b, err := r.encode(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONArray encodes seq as a JSON array. Entities that are empty or fail
// to encode are logged and left out.
func (r *Repository[T]) ToJSONArray(seq iter.Seq[T]) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	n := 0
	for m := range seq {
		if isNil(m) || m.Base().IsEmpty() {
			r.log.Warn("skipping empty entity in export")
			continue
		}
		b, err := r.encode(m)
		if err != nil {
			r.log.Warn("skipping entity that failed to encode",
				slog.String("id", m.Base().ID()),
				slog.Any("error", err))
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
		n++
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// FromJSON decodes one entity of the kind. On a parse failure the zero
// value and an error wrapping database.ErrSerialization are returned.
func (r *Repository[T]) FromJSON(data []byte) (T, error) {
	t := r.newT()
	if err := t.Base().UnmarshalJSON(data); err != nil {
		var zero T
		return zero, err
	}
	return t, nil
}

// FromJSONArray decodes a JSON array of entities. Elements that fail to
// decode are logged and skipped; a malformed array is an error.
func (r *Repository[T]) FromJSONArray(data []byte) ([]T, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", database.ErrSerialization, err)
	}
	out := make([]T, 0, len(raw))
	for i, el := range raw {
		t, err := r.FromJSON(el)
		if err != nil {
			r.log.Warn("skipping element that failed to decode",
				slog.Int("index", i),
				slog.Any("error", err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
