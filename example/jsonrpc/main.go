package main

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mnehpets/onerpc/endpoint"
	"github.com/mnehpets/onerpc/jsonrpc"
	"github.com/mnehpets/onerpc/rpc"
)

type MathMethods struct{}

type pair struct {
	A int `json:"a"`
	B int `json:"b"`
}

// Add accepts {"a":1,"b":2} or [1,2].
func (m *MathMethods) Add(ctx context.Context, p pair) (int, error) {
	return p.A + p.B, nil
}

func (m *MathMethods) Sub(ctx context.Context, p pair) (int, error) {
	return p.A - p.B, nil
}

type divParams struct {
	_ struct{} `jsonrpc:"divide"`
	pair
}

func (m *MathMethods) Div(ctx context.Context, p divParams) (int, error) {
	if p.B == 0 {
		return 0, jsonrpc.NewError(jsonrpc.CodeInvalidParams, "division by zero")
	}
	return p.A / p.B, nil
}

func main() {
	logger := zap.Must(zap.NewDevelopment())
	defer logger.Sync()

	router := rpc.NewBuilder().
		AddMethods("math", &MathMethods{}).
		Add("ping", rpc.Func(func(ctx context.Context, _ rpc.NoParams) (string, error) {
			return "pong", nil
		})).
		Build()

	e := jsonrpc.NewEndpoint(router, jsonrpc.WithLogger(logger))
	http.Handle("/rpc", endpoint.Handler(e.Endpoint))

	logger.Info("starting server", zap.String("addr", ":8080"), zap.Strings("methods", router.Methods()))
	if err := http.ListenAndServe(":8080", nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
