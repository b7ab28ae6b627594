package rpc

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
)

// Request is the decoded shape of an incoming call. ID is passed through by
// transports and never interpreted here.
type Request struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Middleware wraps the handler registered for method. Middleware is applied
// when a Builder is built, so it runs for every call of every method.
type Middleware func(method string, next Handler) Handler

// Builder collects routes. It is the mutable, single-goroutine half of a
// router; Build freezes the routes into a Router that can be shared.
type Builder struct {
	routes     map[string]Handler
	middleware []Middleware
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{routes: make(map[string]Handler)}
}

// Add registers h under name. Registering a name twice replaces the earlier
// handler; the last registration wins.
func (b *Builder) Add(name string, h Handler) *Builder {
	if h == nil {
		panic("rpc: nil handler for method " + name)
	}
	b.routes[name] = h
	return b
}

// Extend merges the routes of other into b. On a name collision the route
// from other wins, so routers extended later override earlier ones.
func (b *Builder) Extend(other *Router) *Builder {
	if other == nil {
		return b
	}
	for name, h := range other.routes {
		b.routes[name] = h
	}
	return b
}

// Use appends dispatch middleware. The first middleware added is the
// outermost.
func (b *Builder) Use(mw ...Middleware) *Builder {
	b.middleware = append(b.middleware, mw...)
	return b
}

// AddMethods registers every exported method of receiver whose shape is
// accepted by Reflect. Methods of other shapes are skipped.
//
// The method name is the Go method name, unless the params struct has a
// `_` field with a `jsonrpc:"name"` tag. A non-empty namespace is joined to
// the name with a dot ("project" + "Create" -> "project.Create").
func (b *Builder) AddMethods(namespace string, receiver any) *Builder {
	if receiver == nil {
		panic("rpc: nil receiver for namespace " + namespace)
	}
	val := reflect.ValueOf(receiver)
	typ := val.Type()
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if !m.IsExported() {
			continue
		}
		h, err := newReflectHandler(val.Method(i))
		if err != nil {
			continue
		}
		name := m.Name
		if override := methodNameTag(h.paramsType); override != "" {
			name = override
		}
		if namespace != "" {
			name = namespace + "." + name
		}
		b.routes[name] = h
	}
	return b
}

func methodNameTag(t reflect.Type) string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return ""
	}
	sf, ok := t.FieldByName("_")
	if !ok {
		return ""
	}
	return sf.Tag.Get("jsonrpc")
}

// Build returns a Router holding a snapshot of the routes, each wrapped in
// the builder's middleware. Later changes to b do not affect the Router.
func (b *Builder) Build() *Router {
	routes := make(map[string]Handler, len(b.routes))
	for name, h := range b.routes {
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](name, h)
		}
		routes[name] = h
	}
	return &Router{routes: routes}
}

// Router dispatches calls by method name. A Router is read-only and safe
// for concurrent use; lookups take no locks.
type Router struct {
	routes map[string]Handler
}

// Call dispatches to the handler registered for method. It fails with an
// ErrMethodUnknown *Error when there is none; otherwise the handler's result
// and error are returned as is.
func (r *Router) Call(ctx context.Context, method string, res Resources, params json.RawMessage) (json.RawMessage, error) {
	h, ok := r.Lookup(method)
	if !ok {
		return nil, methodUnknown(method)
	}
	return h.Call(ctx, res, params)
}

// Lookup returns the handler registered for method.
func (r *Router) Lookup(method string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	h, ok := r.routes[method]
	return h, ok
}

// Methods returns the registered method names, sorted.
func (r *Router) Methods() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered methods.
func (r *Router) Len() int {
	if r == nil {
		return 0
	}
	return len(r.routes)
}
