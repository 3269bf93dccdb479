package entity

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Coercion describes one typed read that succeeded through a fallback,
// such as an int32 read of a stored double.
type Coercion struct {
	Kind  string
	Field string
	From  FieldKind
	To    FieldKind
}

// CoercionObserver is notified of every coercion.
type CoercionObserver interface {
	OnCoercion(c Coercion)
}

// CoercionObserverFunc adapts a function to CoercionObserver.
type CoercionObserverFunc func(c Coercion)

func (f CoercionObserverFunc) OnCoercion(c Coercion) { f(c) }

var observer atomic.Pointer[CoercionObserver]

// SetCoercionObserver installs o; nil removes the current observer.
func SetCoercionObserver(o CoercionObserver) {
	if o == nil {
		observer.Store(nil)
		return
	}
	observer.Store(&o)
}

var coercionCounter = sync.OnceValue(func() metric.Int64Counter {
	c, err := otel.Meter("catalog/entity").Int64Counter("catalog.entity.coercions",
		metric.WithDescription("Typed field reads that needed a fallback conversion"))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
})

func (e *Entity) coerced(field string, from, to FieldKind) {
	c := Coercion{Kind: e.Kind(), Field: field, From: from, To: to}
	coercionCounter().Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", c.Kind),
		attribute.String("field", field),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
	if o := observer.Load(); o != nil {
		(*o).OnCoercion(c)
	}
}

func (e *Entity) readFailed(field string, want FieldKind, v any) {
	slog.Warn("could not read field",
		"kind", e.Kind(),
		"field", field,
		"id", e.ID(),
		"want", want.String(),
		"got", valueKind(v).String())
}

// Int32 reads an int32. A stored int64 within range or a stored double
// is accepted as a coercion. Doubles round half away from zero, so -2.5
// reads as -3.
func (e *Entity) Int32(name string) (int32, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int32:
		return n, true
	case int64:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			e.coerced(name, KindInt64, KindInt32)
			return int32(n), true
		}
	case int:
		if n >= math.MinInt32 && n <= math.MaxInt32 {
			e.coerced(name, KindInt64, KindInt32)
			return int32(n), true
		}
	case float64:
		r := math.Round(n)
		if !math.IsNaN(r) && r >= math.MinInt32 && r <= math.MaxInt32 {
			e.coerced(name, KindDouble, KindInt32)
			return int32(r), true
		}
	}
	e.readFailed(name, KindInt32, v)
	return 0, false
}

// Int64 reads an int64, widening an int32 or rounding a double.
func (e *Entity) Int64(name string) (int64, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		e.coerced(name, KindInt32, KindInt64)
		return int64(n), true
	case float64:
		r := math.Round(n)
		if !math.IsNaN(r) && r >= math.MinInt64 && r < math.MaxInt64 {
			e.coerced(name, KindDouble, KindInt64)
			return int64(r), true
		}
	}
	e.readFailed(name, KindInt64, v)
	return 0, false
}

// Double reads a float64, widening a stored integer.
func (e *Entity) Double(name string) (float64, bool) {
	v, ok := e.Value(name)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int32:
		e.coerced(name, KindInt32, KindDouble)
		return float64(n), true
	case int64:
		e.coerced(name, KindInt64, KindDouble)
		return float64(n), true
	case int:
		e.coerced(name, KindInt64, KindDouble)
		return float64(n), true
	}
	e.readFailed(name, KindDouble, v)
	return 0, false
}
