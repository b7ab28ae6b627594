package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Defaulter marks a params type that has a well-defined value when the
// request carries no params.
//
// When params are absent, DecodeParams starts from the zero value and calls
// SetDefaults on it instead of failing with ErrMissingParams. List and query
// style params, which are meaningfully empty, implement it; create and update
// style params do not.
type Defaulter interface {
	SetDefaults()
}

// ParamsDecoder lets a params type take over decoding entirely. raw is nil
// when the request carried no params.
type ParamsDecoder interface {
	DecodeParams(raw json.RawMessage) error
}

// NoParams is the params type for methods that take none. It accepts absent
// params and an empty object or array.
type NoParams struct{}

func (*NoParams) SetDefaults() {}

// Absent reports whether raw represents "no params": empty, or the JSON null
// literal.
func Absent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// DecodeParams converts an optional raw payload into a P.
//
// Objects are decoded by field name. Arrays are decoded positionally into the
// struct fields in declaration order. Top-level struct fields are required
// unless they are pointers, slices, maps or interfaces, or are tagged
// omitempty/omitzero.
func DecodeParams[P any](raw json.RawMessage) (P, error) {
	var p P
	err := decodeParamsInto(reflect.ValueOf(&p).Elem(), raw)
	return p, err
}

// decodeParamsInto is DecodeParams for a settable reflect.Value.
func decodeParamsInto(v reflect.Value, raw json.RawMessage) error {
	typ := v.Type().String()

	// A *T params type gets the capabilities of *T, not of **T.
	target := v.Addr().Interface()
	if v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Struct {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		target = v.Interface()
	}

	if d, ok := target.(ParamsDecoder); ok {
		if Absent(raw) {
			raw = nil
		}
		if err := d.DecodeParams(raw); err != nil {
			return newError(KindParamsParsing, typ, err)
		}
		return nil
	}

	if Absent(raw) {
		if d, ok := target.(Defaulter); ok {
			d.SetDefaults()
			return nil
		}
		return &Error{Kind: KindMissingParams, Type: typ}
	}

	if err := decodeValue(v, bytes.TrimSpace(raw)); err != nil {
		return &Error{Kind: KindParamsParsing, Type: typ, Cause: err}
	}
	return nil
}

// decodeValue decodes raw into v, which must be settable.
func decodeValue(v reflect.Value, raw []byte) error {
	target := v
	if target.Kind() == reflect.Pointer && target.Type().Elem().Kind() == reflect.Struct {
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct {
		return json.Unmarshal(raw, v.Addr().Interface())
	}

	fields := structFields(target.Type())
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		if len(list) != len(fields) {
			return fmt.Errorf("invalid number of params: got %d, want %d", len(list), len(fields))
		}
		for i, elem := range list {
			fv := target.FieldByIndex(fields[i].index)
			if err := json.Unmarshal(elem, fv.Addr().Interface()); err != nil {
				return fmt.Errorf("param %d (%s): %w", i, fields[i].name, err)
			}
		}
		return nil
	case '{':
		if err := json.Unmarshal(raw, target.Addr().Interface()); err != nil {
			return err
		}
		var present map[string]json.RawMessage
		if err := json.Unmarshal(raw, &present); err != nil {
			return err
		}
		for _, f := range fields {
			if f.required && !hasKey(present, f.name) {
				return fmt.Errorf("missing field %s", f.name)
			}
		}
		return nil
	}
	// Scalars are left to encoding/json, which reports the type mismatch.
	return json.Unmarshal(raw, target.Addr().Interface())
}

// hasKey matches keys the way encoding/json matches field names.
func hasKey(m map[string]json.RawMessage, name string) bool {
	if _, ok := m[name]; ok {
		return true
	}
	for k := range m {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

type paramField struct {
	index    []int
	name     string
	required bool
}

var fieldCache sync.Map // reflect.Type -> []paramField

func structFields(t reflect.Type) []paramField {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]paramField)
	}
	fields := collectFields(t, nil)
	fieldCache.Store(t, fields)
	return fields
}

func collectFields(t reflect.Type, prefix []int) []paramField {
	var out []paramField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		tag := sf.Tag.Get("json")
		name, opts, _ := strings.Cut(tag, ",")
		if name == "-" && opts == "" {
			continue
		}

		// Untagged embedded structs are flattened, as encoding/json does.
		if sf.Anonymous && name == "" && sf.Type.Kind() == reflect.Struct {
			out = append(out, collectFields(sf.Type, index)...)
			continue
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}

		optional := strings.Contains(opts, "omitempty") || strings.Contains(opts, "omitzero")
		switch sf.Type.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
			optional = true
		}
		out = append(out, paramField{index: index, name: name, required: !optional})
	}
	return out
}
