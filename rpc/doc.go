// Package rpc maps a method name and an untyped params payload to a typed
// handler call.
//
// It knows nothing about HTTP or any other transport: a caller hands it a
// method name, a raw JSON params value (possibly absent) and a Resources bag,
// and gets back raw JSON or an error. See package jsonrpc for the HTTP side.
//
// # Basic Usage
//
// Build a router from typed handler functions, then call it:
//
//	type ParamsIded struct {
//	    ID int64 `json:"id"`
//	}
//
//	func echoID(ctx context.Context, p ParamsIded) (map[string]int64, error) {
//	    return map[string]int64{"echoed": p.ID}, nil
//	}
//
//	router := rpc.NewBuilder().
//	    Add("echo_id", rpc.Func(echoID)).
//	    Build()
//
//	out, err := router.Call(ctx, "echo_id", rpc.Resources{}, json.RawMessage(`{"id":7}`))
//	// out == {"echoed":7}
//
// # Handler Signatures
//
// Handlers take a context, zero or more resources, and one params value:
//
//	func(ctx context.Context, r1 R1, ..., params P) (R, error)
//
// Func, Func1, Func2 and Func3 wrap handlers with zero to three resources
// and are checked by the compiler. Reflect wraps any number of resources and
// checks the shape at registration.
//
// Resources are pulled from the Resources bag by type, left to right,
// before params are decoded. A type can instead implement FromResources to
// build itself from the bag:
//
//	func (c *Ctx) FromResources(res rpc.Resources) error
//
// # Params
//
// Params are decoded with encoding/json. Objects match fields by json tag;
// arrays fill struct fields in declaration order. Non-pointer fields are
// required unless tagged omitempty.
//
// Absent params (no payload or JSON null) fail with ErrMissingParams, unless
// the params type implements Defaulter:
//
//	type ParamsList struct {
//	    Filter *Filter `json:"filter"`
//	}
//
//	func (p *ParamsList) SetDefaults() {}
//
// Types needing full control implement ParamsDecoder.
//
// # Composition
//
// Routes are registered on a Builder and frozen by Build. Registering a name
// twice keeps the last handler. Extend merges another Router in, and the
// merged-in routes win on collisions:
//
//	router := rpc.NewBuilder().
//	    Extend(taskRouter).
//	    Extend(projectRouter).
//	    Build()
//
// A built Router is never modified and may be shared by any number of
// goroutines.
//
// # Errors
//
// Failures of the dispatch itself are *Error values with a Kind:
//   - KindMethodUnknown
//   - KindMissingParams
//   - KindParamsParsing
//   - KindResourceExtraction
//   - KindSerialization
//
// Use errors.Is with the Err* sentinels, or KindOf. Handler errors are
// returned exactly as the handler returned them.
package rpc
