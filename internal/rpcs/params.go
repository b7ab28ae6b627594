// Package rpcs holds the JSON-RPC methods of the server, one sub-router per
// model.
package rpcs

import "github.com/mnehpets/onerpc/internal/model"

// ParamsForCreate is the params of create methods.
type ParamsForCreate[D any] struct {
	Data D `json:"data"`
}

// ParamsForUpdate is the params of update methods.
type ParamsForUpdate[D any] struct {
	ID   int64 `json:"id"`
	Data D     `json:"data"`
}

// ParamsIded is the params of methods acting on one entity.
type ParamsIded struct {
	ID int64 `json:"id"`
}

// ParamsList is the params of list methods. Both fields are optional, and a
// call without params lists with the defaults.
type ParamsList[F any] struct {
	Filter      *F                 `json:"filter,omitempty"`
	ListOptions *model.ListOptions `json:"list_options,omitempty"`
}

func (*ParamsList[F]) SetDefaults() {}

func (p ParamsList[F]) options() model.ListOptions {
	if p.ListOptions == nil {
		return model.ListOptions{}
	}
	return *p.ListOptions
}
