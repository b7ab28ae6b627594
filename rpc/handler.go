package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

// Handler is the type-erased form of a method handler as stored in a Router.
//
// Call extracts the handler's resources from res, decodes params, runs the
// handler and encodes its result. Resource and params failures are *Error
// values; errors returned by the handler itself come back unchanged.
type Handler interface {
	Call(ctx context.Context, res Resources, params json.RawMessage) (json.RawMessage, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, res Resources, params json.RawMessage) (json.RawMessage, error)

func (f HandlerFunc) Call(ctx context.Context, res Resources, params json.RawMessage) (json.RawMessage, error) {
	return f(ctx, res, params)
}

// Func wraps a handler that needs no resources.
func Func[P, R any](fn func(ctx context.Context, params P) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, _ Resources, raw json.RawMessage) (json.RawMessage, error) {
		p, err := DecodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, p)
		if err != nil {
			return nil, err
		}
		return encodeResult(out)
	})
}

// Func1 wraps a handler that takes one resource.
func Func1[A, P, R any](fn func(ctx context.Context, a A, params P) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, res Resources, raw json.RawMessage) (json.RawMessage, error) {
		a, err := Extract[A](res)
		if err != nil {
			return nil, err
		}
		p, err := DecodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, a, p)
		if err != nil {
			return nil, err
		}
		return encodeResult(out)
	})
}

// Func2 wraps a handler that takes two resources.
func Func2[A, B, P, R any](fn func(ctx context.Context, a A, b B, params P) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, res Resources, raw json.RawMessage) (json.RawMessage, error) {
		a, err := Extract[A](res)
		if err != nil {
			return nil, err
		}
		b, err := Extract[B](res)
		if err != nil {
			return nil, err
		}
		p, err := DecodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, a, b, p)
		if err != nil {
			return nil, err
		}
		return encodeResult(out)
	})
}

// Func3 wraps a handler that takes three resources.
func Func3[A, B, C, P, R any](fn func(ctx context.Context, a A, b B, c C, params P) (R, error)) Handler {
	return HandlerFunc(func(ctx context.Context, res Resources, raw json.RawMessage) (json.RawMessage, error) {
		a, err := Extract[A](res)
		if err != nil {
			return nil, err
		}
		b, err := Extract[B](res)
		if err != nil {
			return nil, err
		}
		c, err := Extract[C](res)
		if err != nil {
			return nil, err
		}
		p, err := DecodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		out, err := fn(ctx, a, b, c, p)
		if err != nil {
			return nil, err
		}
		return encodeResult(out)
	})
}

func encodeResult(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, &Error{Kind: KindSerialization, Type: fmt.Sprintf("%T", v), Cause: err}
	}
	return b, nil
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// reflectHandler calls a function value of shape
// func(ctx, resources..., params) (result, error).
type reflectHandler struct {
	fn         reflect.Value
	resources  []reflect.Type
	paramsType reflect.Type
}

// Reflect wraps fn, which must have the shape
//
//	func(ctx context.Context, r1 R1, ..., rn Rn, params P) (R, error)
//
// with any number of resources. The shape is checked once, here.
func Reflect(fn any) (Handler, error) {
	if fn == nil {
		return nil, errors.New("rpc: handler cannot be nil")
	}
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("rpc: handler must be a function, got %T", fn)
	}
	if v.IsNil() {
		return nil, errors.New("rpc: handler function cannot be nil")
	}
	return newReflectHandler(v)
}

// MustReflect is like Reflect but panics on an invalid shape. It is meant for
// route tables built at startup.
func MustReflect(fn any) Handler {
	h, err := Reflect(fn)
	if err != nil {
		panic(err)
	}
	return h
}

func newReflectHandler(v reflect.Value) (*reflectHandler, error) {
	ft := v.Type()
	if ft.NumIn() < 2 {
		return nil, fmt.Errorf("rpc: handler %s must take (ctx, [resources...], params)", ft)
	}
	if ft.In(0) != contextType {
		return nil, fmt.Errorf("rpc: handler %s must take context.Context first", ft)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("rpc: handler %s must not be variadic", ft)
	}
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return nil, fmt.Errorf("rpc: handler %s must return (result, error)", ft)
	}

	h := &reflectHandler{fn: v, paramsType: ft.In(ft.NumIn() - 1)}
	for i := 1; i < ft.NumIn()-1; i++ {
		h.resources = append(h.resources, ft.In(i))
	}
	return h, nil
}

func (h *reflectHandler) Call(ctx context.Context, res Resources, raw json.RawMessage) (json.RawMessage, error) {
	args := make([]reflect.Value, 0, len(h.resources)+2)
	args = append(args, reflect.ValueOf(&ctx).Elem())

	for _, t := range h.resources {
		rv := reflect.New(t).Elem()
		if err := extractInto(rv, res); err != nil {
			return nil, err
		}
		args = append(args, rv)
	}

	pv := reflect.New(h.paramsType).Elem()
	if err := decodeParamsInto(pv, raw); err != nil {
		return nil, err
	}
	args = append(args, pv)

	results := h.fn.Call(args)
	if errV := results[1]; !errV.IsNil() {
		return nil, errV.Interface().(error)
	}
	return encodeResult(results[0].Interface())
}
