package rpc

import (
	"errors"
	"reflect"
)

// Resources is the per-call bag of typed dependencies a handler may ask for,
// such as the caller's auth context or a model manager.
//
// A Resources value is immutable; With returns an extended copy. The zero
// value is an empty bag.
type Resources struct {
	vals []any
}

// NewResources returns a bag holding vals. Nil values are ignored.
func NewResources(vals ...any) Resources {
	return Resources{}.With(vals...)
}

// With returns a copy of r with vals appended. Values added later do not
// shadow earlier values of the same type; Extract returns the first match.
func (r Resources) With(vals ...any) Resources {
	out := make([]any, 0, len(r.vals)+len(vals))
	out = append(out, r.vals...)
	for _, v := range vals {
		if v != nil {
			out = append(out, v)
		}
	}
	return Resources{vals: out}
}

// Len returns the number of values in the bag.
func (r Resources) Len() int {
	return len(r.vals)
}

// Lookup finds a value for t in the bag: first an exact type match, then the
// first value assignable to t.
func (r Resources) Lookup(t reflect.Type) (any, bool) {
	for _, v := range r.vals {
		if reflect.TypeOf(v) == t {
			return v, true
		}
	}
	for _, v := range r.vals {
		if reflect.TypeOf(v).AssignableTo(t) {
			return v, true
		}
	}
	return nil, false
}

// FromResources is implemented by resource types that build themselves from
// the bag rather than being looked up by type. The method is called on a
// pointer to a zero value.
type FromResources interface {
	FromResources(res Resources) error
}

var errResourceMissing = errors.New("not in resources")

// Extract produces the T a handler declared from res.
func Extract[T any](res Resources) (T, error) {
	var t T
	return t, extractInto(reflect.ValueOf(&t).Elem(), res)
}

// extractInto fills v (settable) from res.
func extractInto(v reflect.Value, res Resources) error {
	typ := v.Type()
	if fr, ok := v.Addr().Interface().(FromResources); ok {
		if err := fr.FromResources(res); err != nil {
			return newError(KindResourceExtraction, typ.String(), err)
		}
		return nil
	}
	val, ok := res.Lookup(typ)
	if !ok {
		return &Error{Kind: KindResourceExtraction, Type: typ.String(), Cause: errResourceMissing}
	}
	v.Set(reflect.ValueOf(val))
	return nil
}
