// Package middleware holds dispatch middleware (logging and metrics around
// router calls) and endpoint processors (rate limiting, API headers) used by
// the JSON-RPC server.
package middleware
