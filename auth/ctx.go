package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"

	"github.com/mnehpets/onerpc/jsonrpc"
	"github.com/mnehpets/onerpc/rpc"
)

// Ctx identifies the caller of a method. Handlers that need an
// authenticated caller declare a Ctx resource.
type Ctx struct {
	userID int64
}

// ErrReservedUserID is returned by NewCtx for user id 0, which belongs to
// RootCtx.
var ErrReservedUserID = errors.New("auth: user id 0 is reserved")

// RootCtx returns the context of the system itself. It is not scoped to an
// owner; in-process callers put it in the Resources bag directly.
func RootCtx() Ctx {
	return Ctx{}
}

// NewCtx returns the context of a regular user.
func NewCtx(userID int64) (Ctx, error) {
	if userID == 0 {
		return Ctx{}, ErrReservedUserID
	}
	if userID < 0 {
		return Ctx{}, fmt.Errorf("auth: invalid user id %d", userID)
	}
	return Ctx{userID: userID}, nil
}

// UserID returns the caller's user id. It is 0 for RootCtx.
func (c Ctx) UserID() int64 {
	return c.userID
}

// IsRoot reports whether c is RootCtx.
func (c Ctx) IsRoot() bool {
	return c.userID == 0
}

// Error is an authentication failure. It reports JSON-RPC code -32001.
type Error struct {
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// RPCCode implements jsonrpc.Coder.
func (e *Error) RPCCode() int { return jsonrpc.CodeUnauthorized }

// ErrNoCredentials means the request carried neither a session cookie nor a
// bearer token.
var ErrNoCredentials = &Error{Msg: "authentication required"}

// Result is the outcome of authenticating one request. Exactly one of Ctx
// and Err is meaningful.
type Result struct {
	Ctx    Ctx
	Err    error
	Source string // "cookie" or "bearer"
}

var (
	ctxType    = reflect.TypeFor[Ctx]()
	resultType = reflect.TypeFor[Result]()
)

// FromResources implements rpc.FromResources. A Ctx placed in the bag
// directly, as in-process callers do, is used as is. Otherwise the Result
// of the request decides: the extraction fails with the authentication
// error when the request was not authenticated, so only methods that
// declare a Ctx reject anonymous callers.
func (c *Ctx) FromResources(res rpc.Resources) error {
	if v, ok := res.Lookup(ctxType); ok {
		*c = v.(Ctx)
		return nil
	}
	v, ok := res.Lookup(resultType)
	if !ok {
		return ErrNoCredentials
	}
	r := v.(Result)
	if r.Err != nil {
		return r.Err
	}
	*c = r.Ctx
	return nil
}

type resultKey struct{}

// WithResult returns a copy of ctx carrying r.
func WithResult(ctx context.Context, r Result) context.Context {
	return context.WithValue(ctx, resultKey{}, r)
}

// FromContext returns the Result stored by the Processor. Without one it
// returns a Result failing with ErrNoCredentials.
func FromContext(ctx context.Context) Result {
	if r, ok := ctx.Value(resultKey{}).(Result); ok {
		return r
	}
	return Result{Err: ErrNoCredentials}
}

// Resources is a jsonrpc.ResourcesFunc that puts the request's Result, plus
// extra, into the resource bag.
func Resources(extra ...any) jsonrpc.ResourcesFunc {
	return func(r *http.Request) (rpc.Resources, error) {
		return rpc.NewResources(extra...).With(FromContext(r.Context())), nil
	}
}
