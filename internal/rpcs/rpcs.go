package rpcs

import "github.com/mnehpets/onerpc/rpc"

// Router composes every sub-router, wrapped in mw.
func Router(mw ...rpc.Middleware) *rpc.Router {
	return rpc.NewBuilder().
		Extend(ProjectRouter()).
		Extend(TaskRouter()).
		Use(mw...).
		Build()
}
