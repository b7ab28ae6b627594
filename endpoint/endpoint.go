// Package endpoint turns typed functions into http.Handlers.
//
// A request goes through three phases:
//
//  1. Decode: the EndpointHandler fills a typed params struct from the
//     request (body, query, headers, cookies) using struct tags.
//  2. Endpoint: the EndpointFunc runs with the decoded params and returns a
//     Renderer. It never writes the response itself.
//  3. Render: the Renderer writes status, headers and body.
//
// Processors run before decoding and may wrap the request, annotate its
// context or stop it with an error. Errors of type *EndpointError choose the
// HTTP status of the error response; any other error is a 500.
package endpoint

import (
	"context"
	"errors"
	"io"
	"net/http"
)

// EndpointError is an error that carries the HTTP status to respond with.
type EndpointError struct {
	Status int
	// Message is a short description written as the response body.
	Message string
	Cause   error
}

func (e *EndpointError) Error() string {
	if e == nil {
		return "endpoint: error: <nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
		if msg == "" {
			msg = "unknown error"
		}
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *EndpointError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Error returns an *EndpointError. If err already is (or wraps) one, err is
// returned unchanged.
func Error(status int, message string, err error) error {
	var ee *EndpointError
	if errors.As(err, &ee) {
		return err
	}
	return &EndpointError{Status: status, Message: message, Cause: err}
}

// Renderer writes a response.
//
// A Renderer must call w.WriteHeader. It may set Content-Type before doing
// so. A returned error means the response could not be written.
type Renderer interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(w http.ResponseWriter, r *http.Request) error

func (f RendererFunc) Render(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Processor runs before the endpoint.
//
// A Processor must call next unless it rejects the request, in which case it
// returns an error. It must not write the response.
type Processor interface {
	Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error
}

// ProcessorFunc adapts a function to a Processor.
type ProcessorFunc func(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error

func (f ProcessorFunc) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	return f(w, r, next)
}

// EndpointFunc holds the logic of one endpoint. params is decoded by the
// handler before the call; the returned Renderer writes the response.
type EndpointFunc[P any] func(w http.ResponseWriter, r *http.Request, params P) (Renderer, error)

// EndpointHandler is the http.Handler for an EndpointFunc.
type EndpointHandler[P any] struct {
	Endpoint   EndpointFunc[P]
	Processors []Processor
}

// Handler constructs an EndpointHandler, inferring P from fn.
func Handler[P any](fn EndpointFunc[P], processors ...Processor) *EndpointHandler[P] {
	return &EndpointHandler[P]{Endpoint: fn, Processors: processors}
}

// HandleFunc is Handler as an http.HandlerFunc.
func HandleFunc[P any](fn EndpointFunc[P], processors ...Processor) http.HandlerFunc {
	return Handler(fn, processors...).ServeHTTP
}

type hooksKey struct{}

// Defer registers fn to run just before the response headers are written.
// Outside an EndpointHandler it does nothing.
func Defer(ctx context.Context, fn func(http.ResponseWriter)) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if ok && hooks != nil {
		*hooks = append(*hooks, fn)
	}
}

// commit runs the deferred hooks, most recent first, once.
func commit(ctx context.Context, w http.ResponseWriter) {
	hooks, ok := ctx.Value(hooksKey{}).(*[]func(http.ResponseWriter))
	if !ok || hooks == nil {
		return
	}
	for i := len(*hooks) - 1; i >= 0; i-- {
		(*hooks)[i](w)
	}
	*hooks = nil
}

// ServeHTTP implements http.Handler.
func (h *EndpointHandler[P]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Endpoint == nil {
		http.Error(w, "endpoint: nil EndpointFunc", http.StatusInternalServerError)
		return
	}

	if r.Context().Value(hooksKey{}) == nil {
		var hooks []func(http.ResponseWriter)
		r = r.WithContext(context.WithValue(r.Context(), hooksKey{}, &hooks))
	}

	var run func(i int, w2 http.ResponseWriter, r2 *http.Request) error
	run = func(i int, w2 http.ResponseWriter, r2 *http.Request) error {
		if i < len(h.Processors) {
			if h.Processors[i] == nil {
				return errors.New("endpoint: nil processor")
			}
			return h.Processors[i].Process(w2, r2, func(w3 http.ResponseWriter, r3 *http.Request) error {
				return run(i+1, w3, r3)
			})
		}

		var params P
		if err := Unmarshal(r2, &params); err != nil {
			return err
		}
		renderer, err := h.Endpoint(w2, r2, params)
		if err != nil {
			return err
		}
		if renderer == nil {
			return errors.New("endpoint: nil renderer")
		}
		if c, ok := renderer.(io.Closer); ok {
			defer c.Close()
		}
		commit(r2.Context(), w2)
		return renderer.Render(w2, r2)
	}

	if err := run(0, w, r); err != nil {
		status := http.StatusInternalServerError
		message := err.Error()
		var ee *EndpointError
		if errors.As(err, &ee) && ee != nil {
			if ee.Status >= 100 {
				status = ee.Status
			}
			message = ee.Message
			if message == "" {
				message = http.StatusText(status)
			}
		}
		commit(r.Context(), w)
		http.Error(w, message, status)
	}
}
