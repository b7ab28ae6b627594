package endpoint

import (
	"encoding"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// Limits applied when a field has no maxLength tag.
var (
	defaultFieldLimit       = 16 * 1024
	defaultBodyLimit  int64 = 1 << 20
)

// Unmarshal fills dst, a pointer to a struct (or to a pointer to a struct),
// from r.
//
// Supported struct tags:
//   - `body:""` the raw request body ([]byte, string, or any type with the
//     json flag)
//   - `query:"name"` a URL query parameter
//   - `header:"name"` a request header
//   - `cookie:"name"` a cookie value
//   - `maxLength:"n"` the maximum byte length of the value; "0" disables the
//     limit. The default is 16KB, and 1MB for the body.
//
// An empty name defaults to the lowercased field name. The flags "json",
// "base64" and "base64url" may follow the name. Slice fields collect every
// value of a repeated query parameter, header or cookie. Fields with no data
// in the request are left unchanged.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return Error(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct"))
	}

	t := root.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		for _, src := range sources {
			tag, ok, err := parseSourceTag(sf, src.key)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			set, err := setField(root.Field(i), tag, src.fetch(r, tag), sf.Name)
			if err != nil {
				return err
			}
			if set {
				break
			}
		}
	}
	return nil
}

type fetchFunc func(name string) ([][]byte, bool, error)

// sources in order of precedence.
var sources = []struct {
	key   string
	fetch func(r *http.Request, tag sourceTag) fetchFunc
}{
	{"query", fetchQuery},
	{"body", fetchBody},
	{"header", fetchHeader},
	{"cookie", fetchCookie},
}

func fetchQuery(r *http.Request, _ sourceTag) fetchFunc {
	return func(name string) ([][]byte, bool, error) {
		if r.URL == nil {
			return nil, false, nil
		}
		return toBytes(r.URL.Query()[name])
	}
}

func fetchBody(r *http.Request, tag sourceTag) fetchFunc {
	return func(string) ([][]byte, bool, error) {
		if r.Body == nil || r.Body == http.NoBody {
			return nil, false, nil
		}
		if tag.Encoding == "json" && !IsJSON(r) {
			return nil, false, Error(http.StatusUnsupportedMediaType, "", fmt.Errorf("endpoint: decode: body: unsupported media type %q", r.Header.Get("Content-Type")))
		}
		var body io.Reader = r.Body
		if tag.MaxLength > 0 {
			// One extra byte distinguishes "at the limit" from "over it".
			body = io.LimitReader(r.Body, int64(tag.MaxLength)+1)
		}
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, false, Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
		}
		return [][]byte{b}, true, nil
	}
}

func fetchHeader(r *http.Request, _ sourceTag) fetchFunc {
	return func(name string) ([][]byte, bool, error) {
		return toBytes(r.Header[http.CanonicalHeaderKey(name)])
	}
}

func fetchCookie(r *http.Request, _ sourceTag) fetchFunc {
	return func(name string) ([][]byte, bool, error) {
		var vals []string
		for _, c := range r.Cookies() {
			if c.Name == name {
				vals = append(vals, c.Value)
			}
		}
		return toBytes(vals)
	}
}

func toBytes(vals []string) ([][]byte, bool, error) {
	if len(vals) == 0 {
		return nil, false, nil
	}
	out := make([][]byte, len(vals))
	for i, s := range vals {
		out[i] = []byte(s)
	}
	return out, true, nil
}

// IsJSON reports whether the request body is declared as JSON.
func IsJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

type sourceTag struct {
	Source    string
	Name      string
	Encoding  string
	MaxLength int
}

func parseSourceTag(sf reflect.StructField, key string) (sourceTag, bool, error) {
	val, ok := sf.Tag.Lookup(key)
	if !ok {
		return sourceTag{}, false, nil
	}
	name, flags, _ := strings.Cut(val, ",")
	name = strings.TrimSpace(name)
	if name == "-" {
		return sourceTag{}, false, nil
	}
	if name == "" {
		name = strings.ToLower(sf.Name)
	}
	tag := sourceTag{Source: key, Name: name}

	for _, f := range strings.Split(flags, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		switch f {
		case "":
		case "json", "base64", "base64url":
			if tag.Encoding != "" {
				return sourceTag{}, false, Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: %s: multiple encoding flags", sf.Name))
			}
			tag.Encoding = f
		default:
			return sourceTag{}, false, Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: %s: unknown %s flag %q", sf.Name, key, f))
		}
	}

	limit, err := lengthLimit(sf, key)
	if err != nil {
		return sourceTag{}, false, err
	}
	tag.MaxLength = limit
	return tag, true, nil
}

func lengthLimit(sf reflect.StructField, key string) (int, error) {
	val, ok := sf.Tag.Lookup("maxLength")
	if !ok {
		if key == "body" {
			return int(defaultBodyLimit), nil
		}
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, Error(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: %s: invalid maxLength %q", sf.Name, val))
	}
	return n, nil
}

func setField(field reflect.Value, tag sourceTag, fetch fetchFunc, fieldName string) (bool, error) {
	raw, ok, err := fetch(tag.Name)
	if err != nil || !ok {
		return false, err
	}
	for _, b := range raw {
		if tag.MaxLength > 0 && len(b) > tag.MaxLength {
			status := http.StatusBadRequest
			if tag.Source == "body" {
				status = http.StatusRequestEntityTooLarge
			}
			return false, Error(status, "", fmt.Errorf("endpoint: decode: %s %q -> %s: value exceeds max length %d", tag.Source, tag.Name, fieldName, tag.MaxLength))
		}
	}
	if err := setValues(field, raw, tag.Encoding); err != nil {
		return false, Error(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: %s %q -> %s: %w", tag.Source, tag.Name, fieldName, err))
	}
	return true, nil
}

func setValues(v reflect.Value, values [][]byte, encoding string) error {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	isBytes := v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8
	if v.Kind() == reflect.Slice && !isBytes && encoding != "json" {
		slice := reflect.MakeSlice(v.Type(), 0, len(values))
		for _, b := range values {
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := setValue(elem, b, encoding); err != nil {
				return err
			}
			slice = reflect.Append(slice, elem)
		}
		v.Set(slice)
		return nil
	}
	return setValue(v, values[0], encoding)
}

func setValue(v reflect.Value, b []byte, enc string) error {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return setValue(v.Elem(), b, enc)
	}

	switch enc {
	case "json":
		return json.Unmarshal(b, v.Addr().Interface())
	case "base64", "base64url":
		if v.Kind() != reflect.Slice || v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("encoding %q not supported for type %s", enc, v.Type())
		}
		codec := base64.StdEncoding
		if enc == "base64url" {
			codec = base64.RawURLEncoding
		}
		out, err := codec.DecodeString(strings.TrimSpace(string(b)))
		if err != nil {
			return err
		}
		v.SetBytes(out)
		return nil
	}

	if u, ok := v.Addr().Interface().(encoding.TextUnmarshaler); ok {
		return u.UnmarshalText(b)
	}

	s := string(b)
	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return fmt.Errorf("unsupported type %s", v.Type())
		}
		v.SetBytes(b)
	case reflect.Bool:
		x, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(x)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(x)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		x, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Float32, reflect.Float64:
		x, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(x)
	default:
		return fmt.Errorf("unsupported type %s", v.Type())
	}
	return nil
}
