// Package jsonrpc serves an rpc.Router as a JSON-RPC 2.0 endpoint on top of
// the endpoint package's processor chain.
//
// It implements JSON-RPC 2.0 (https://www.jsonrpc.org/specification) over
// HTTP POST, including batches and notifications.
//
// # Basic Usage
//
//	router := rpc.NewBuilder().
//	    AddMethods("math", MathMethods{}).
//	    Build()
//
//	e := jsonrpc.NewEndpoint(router, jsonrpc.WithLogger(logger))
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint))
//
// # Resources
//
// WithResources builds the rpc.Resources bag from the HTTP request, once per
// request. The Info of the call is appended to the bag of each call, so a
// handler can declare it as a resource:
//
//	func whoami(ctx context.Context, info jsonrpc.Info, _ rpc.NoParams) (string, error)
//
// # Error Handling
//
// Router errors are mapped to JSON-RPC codes:
//   - unknown method: CodeMethodNotFound (-32601)
//   - missing or invalid params: CodeInvalidParams (-32602)
//   - unavailable resource: the resource error's code if it implements Coder,
//     otherwise CodeInternalError (-32603)
//   - result encoding: CodeInternalError, "result encoding failed"
//
// Handlers return *Error, or any error implementing Coder, to choose the
// code:
//
//	return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "division by zero")
//
// Any other handler error becomes CodeInternalError with the error's text.
// Panics are recovered and reported as CodeInternalError.
//
// # Processor Integration
//
// Processors passed to endpoint.Handler run before the JSON-RPC layer:
//
//	http.Handle("/rpc", endpoint.Handler(e.Endpoint, authProcessor, rateLimit))
//
// Processor errors are HTTP error responses, not JSON-RPC errors.
package jsonrpc
